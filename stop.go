package engine

import (
	"context"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine/internal/sets"
)

// Stop cancels every in-progress task and event of a workflow, excluding the
// triggering event template, optionally narrowed by template-ID filters. An
// empty filter means all. Both sub-stops are logged before rethrow; a failure
// in either phase aborts the whole stop, with whatever was already committed
// per record staying committed.
func (e *Engine) Stop(ctx context.Context, workflowID, triggeringEventTemplateID string, taskTemplateIDs, eventTemplateIDs []string) (*StopResult, error) {
	res := &StopResult{
		WorkflowID:            workflowID,
		TaskTemplateIDFilter:  taskTemplateIDs,
		EventTemplateIDFilter: eventTemplateIDs,
	}

	err := e.stopTasks(ctx, res)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "stop tasks failed", j.MKV{
			"type":        "stop-result",
			"workflow_id": workflowID,
		}))
		return res, err
	}

	err = e.stopEvents(ctx, res, triggeringEventTemplateID)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "stop events failed", j.MKV{
			"type":        "stop-result",
			"workflow_id": workflowID,
		}))
		return res, err
	}

	res.IsHandled = true
	e.debug(ctx, "stop-result", MKV{
		"workflow_id":    workflowID,
		"stopped_tasks":  strings.Join(res.StoppedTaskIDs, ","),
		"stopped_events": strings.Join(res.StoppedEventIDs, ","),
	})

	return res, nil
}

func (e *Engine) stopTasks(ctx context.Context, res *StopResult) error {
	tasks, err := e.stores.Tasks.ListInProgress(ctx, res.WorkflowID)
	if err != nil {
		return err
	}

	var taskIDs, documentIDs []string
	for _, task := range tasks {
		if len(res.TaskTemplateIDFilter) > 0 && !sets.Contains(res.TaskTemplateIDFilter, task.TaskTemplateID) {
			continue
		}

		taskIDs = append(taskIDs, task.ID)
		if task.DocumentID != "" {
			documentIDs = append(documentIDs, task.DocumentID)
		}
	}

	if len(taskIDs) == 0 {
		return nil
	}

	err = e.stores.Tasks.SetCancelled(ctx, taskIDs)
	if err != nil {
		return err
	}

	if len(documentIDs) > 0 {
		err = e.stores.Documents.SetCancelled(ctx, documentIDs)
		if err != nil {
			return err
		}
	}

	res.StoppedTaskIDs = taskIDs
	return nil
}

func (e *Engine) stopEvents(ctx context.Context, res *StopResult, triggeringEventTemplateID string) error {
	events, err := e.stores.Events.ListInProgress(ctx, res.WorkflowID)
	if err != nil {
		return err
	}

	var eventIDs []string
	for _, event := range events {
		// The stop event must never cancel itself.
		if event.EventTemplateID == triggeringEventTemplateID {
			continue
		}
		if len(res.EventTemplateIDFilter) > 0 && !sets.Contains(res.EventTemplateIDFilter, event.EventTemplateID) {
			continue
		}

		eventIDs = append(eventIDs, event.ID)
	}

	if len(eventIDs) == 0 {
		return nil
	}

	err = e.stores.Events.SetCancelled(ctx, eventIDs, CancellationStopped)
	if err != nil {
		return err
	}

	res.StoppedEventIDs = eventIDs
	return nil
}

func (e *Engine) handleStop(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	section, _ := schemaSection(tmpl.Schema, "stop")

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	taskTemplateIDs, err := e.evaluator.resolveStrings(section["taskTemplateIds"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	eventTemplateIDs, err := e.evaluator.resolveStrings(section["eventTemplateIds"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	res, err := e.Stop(ctx, m.WorkflowID, tmpl.ID, taskTemplateIDs, eventTemplateIDs)
	if err != nil {
		return outcome{}, err
	}

	return outcome{
		resultKey: "stop",
		result:    res,
		done:      true,
	}, nil
}
