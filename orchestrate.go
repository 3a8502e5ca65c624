package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// CreateWorkflowSpec is one child workflow to spawn.
type CreateWorkflowSpec struct {
	WorkflowTemplateID string         `json:"workflowTemplateId"`
	Data               map[string]any `json:"data"`
}

type createWorkflowMessage struct {
	WorkflowID         string         `json:"workflowId"`
	WorkflowTemplateID string         `json:"workflowTemplateId"`
	ParentWorkflowID   string         `json:"parentWorkflowId"`
	Data               map[string]any `json:"data"`
}

// CreateWorkflows spawns child workflows by recording one creation message
// per child on the queue. The children are linked back to the parent through
// the message payload; actual instantiation belongs to the workflow engine
// consuming the topic.
func (e *Engine) CreateWorkflows(ctx context.Context, parentWorkflowID string, specs []CreateWorkflowSpec) (*WorkflowResult, error) {
	var ids []string
	for _, spec := range specs {
		msg := createWorkflowMessage{
			WorkflowID:         uuid.New().String(),
			WorkflowTemplateID: spec.WorkflowTemplateID,
			ParentWorkflowID:   parentWorkflowID,
			Data:               spec.Data,
		}

		payload, err := Marshal(&msg)
		if err != nil {
			return nil, err
		}

		err = e.clients.Queue.Send(ctx, TopicCreateWorkflow, msg.WorkflowID, payload)
		if err != nil {
			e.logger.Error(ctx, errors.Wrap(err, "child workflow enqueue failed", j.MKV{
				"type":                 "send-error",
				"parent_workflow_id":   parentWorkflowID,
				"workflow_template_id": spec.WorkflowTemplateID,
			}))
			return nil, err
		}

		ids = append(ids, msg.WorkflowID)
	}

	return &WorkflowResult{
		Operation:   "createWorkflows",
		WorkflowIDs: ids,
		IsHandled:   true,
	}, nil
}

// SendStatus propagates a named status up to the parent workflow. The name is
// looked up in the parent's template status map; an unconfigured name fails
// the operation.
func (e *Engine) SendStatus(ctx context.Context, workflowID, status string) (*WorkflowResult, error) {
	current, err := e.stores.Workflows.Lookup(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if current.ParentWorkflowID == "" {
		return nil, errors.Wrap(ErrWorkflowNotFound, "workflow has no parent", j.KV("workflow_id", workflowID))
	}

	parent, err := e.stores.Workflows.Lookup(ctx, current.ParentWorkflowID)
	if err != nil {
		return nil, err
	}

	tmpl, err := e.stores.Templates.WorkflowTemplate(ctx, parent.WorkflowTemplateID)
	if err != nil {
		return nil, err
	}

	statusID, ok := tmpl.Statuses[status]
	if !ok {
		return nil, errors.Wrap(ErrStatusNotConfigured, "", j.MKV{
			"status":               status,
			"parent_workflow_id":   parent.ID,
			"workflow_template_id": tmpl.ID,
		})
	}

	err = e.stores.Workflows.SetStatus(ctx, parent.ID, statusID)
	if err != nil {
		return nil, err
	}

	return &WorkflowResult{
		Operation:   "sendStatus",
		WorkflowIDs: []string{parent.ID},
		Status:      status,
		IsHandled:   true,
	}, nil
}

// SetNewTasksPerformers reassigns the given tasks to a new performer list. An
// empty task-ID list is rejected.
func (e *Engine) SetNewTasksPerformers(ctx context.Context, taskIDs, performers []string) (*WorkflowResult, error) {
	if len(taskIDs) == 0 {
		return nil, errors.Wrap(ErrEmptyTaskList, "")
	}

	err := e.stores.Tasks.SetPerformers(ctx, taskIDs, performers)
	if err != nil {
		return nil, err
	}

	return &WorkflowResult{
		Operation: "setNewTasksPerformers",
		TaskIDs:   taskIDs,
		IsHandled: true,
	}, nil
}

// handleWorkflow routes the mutually exclusive orchestration sub-operations,
// keyed by which schema field is present.
func (e *Engine) handleWorkflow(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	if v, ok := tmpl.Schema["createWorkflows"]; ok {
		specs, err := e.resolveWorkflowSpecs(v, docs, events)
		if err != nil {
			return outcome{}, err
		}

		res, err := e.CreateWorkflows(ctx, m.WorkflowID, specs)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resultKey: "workflow", result: res, done: true}, nil
	}

	if section, ok := schemaSection(tmpl.Schema, "createWorkflowsExternal"); ok {
		res, err := e.sendExternal(ctx, "createWorkflowsExternal", section, docs, events)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resultKey: "workflow", result: res, done: true}, nil
	}

	if section, ok := schemaSection(tmpl.Schema, "sendStatusExternal"); ok {
		res, err := e.sendExternal(ctx, "sendStatusExternal", section, docs, events)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resultKey: "workflow", result: res, done: true}, nil
	}

	if v, ok := tmpl.Schema["sendStatus"]; ok {
		status, err := e.evaluator.resolveString(v, docs, events)
		if err != nil {
			return outcome{}, err
		}

		res, err := e.SendStatus(ctx, m.WorkflowID, status)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resultKey: "workflow", result: res, done: true}, nil
	}

	if section, ok := schemaSection(tmpl.Schema, "setNewTasksPerformers"); ok {
		taskIDs, err := e.evaluator.resolveStrings(section["taskIds"], docs, events)
		if err != nil {
			return outcome{}, err
		}

		performers, err := e.evaluator.resolveStrings(section["performers"], docs, events)
		if err != nil {
			return outcome{}, err
		}

		res, err := e.SetNewTasksPerformers(ctx, taskIDs, performers)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resultKey: "workflow", result: res, done: true}, nil
	}

	return outcome{}, errors.Wrap(ErrUnknownOperation, "no workflow operation present", j.KV("event_template_id", tmpl.ID))
}

// sendExternal pushes a workflow-level payload to the configured external
// system through the generic external-service provider.
func (e *Engine) sendExternal(ctx context.Context, operation string, section map[string]any, docs, events []map[string]any) (*WorkflowResult, error) {
	provider, err := e.evaluator.resolveString(section["providerName"], docs, events)
	if err != nil {
		return nil, err
	}

	service, err := e.evaluator.resolveString(section["service"], docs, events)
	if err != nil {
		return nil, err
	}

	method, err := e.evaluator.resolveString(section["method"], docs, events)
	if err != nil {
		return nil, err
	}

	data, err := e.resolveData(section, docs, events)
	if err != nil {
		return nil, err
	}

	_, err = e.DoRequest(ctx, ProviderExternalService, ProviderRequest{
		Verb:     VerbCreate,
		Data:     data,
		Provider: provider,
		Service:  service,
		Method:   method,
	})
	if err != nil {
		return nil, err
	}

	return &WorkflowResult{
		Operation: operation,
		IsHandled: true,
	}, nil
}

func (e *Engine) resolveWorkflowSpecs(v any, docs, events []map[string]any) ([]CreateWorkflowSpec, error) {
	resolved, err := e.evaluator.resolveValue(v, docs, events)
	if err != nil {
		return nil, err
	}

	items, ok := resolved.([]any)
	if !ok {
		return nil, errors.Wrap(ErrUnknownOperation, "createWorkflows must be a list")
	}

	specs := make([]CreateWorkflowSpec, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Wrap(ErrUnknownOperation, "createWorkflows item must be an object")
		}

		spec := CreateWorkflowSpec{
			WorkflowTemplateID: schemaString(obj, "workflowTemplateId"),
		}
		if data, ok := schemaSection(obj, "data"); ok {
			spec.Data = data
		}
		specs = append(specs, spec)
	}

	return specs, nil
}
