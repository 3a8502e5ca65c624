package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine/internal/metrics"
)

// outcome is what a handler hands back to the dispatcher: the envelope to
// persist under Event.Data.Result and the terminal state of the row. A
// handler that completed an existing pending row sets completeEventID instead
// and no new row is created.
type outcome struct {
	resultKey  string
	result     any
	done       bool
	dueDate    *time.Time
	documentID *string

	completeEventID string
}

// Process executes the effect of one inbound message and reports the
// per-message outcome the queue consumer acts on: true consumes the message,
// false leaves it for redelivery. A malformed message is consumed since there
// is nothing coherent to retry.
func (e *Engine) Process(ctx context.Context, m Message) bool {
	ctx = ContextWithTraceID(ctx, m.TraceID)

	err := e.process(ctx, m)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "event processing failed", j.MKV{
			"workflow_id":       m.WorkflowID,
			"event_template_id": m.EventTemplateID,
		}))
		return false
	}

	return true
}

func (e *Engine) process(ctx context.Context, m Message) error {
	if m.WorkflowID == "" || m.EventTemplateID == "" {
		// NoReturnErr: nothing coherent to retry; consume the message.
		e.logger.Error(ctx, errors.New("malformed event message", j.MKV{
			"type":              "unknown-event-error",
			"workflow_id":       m.WorkflowID,
			"event_template_id": m.EventTemplateID,
		}))
		return nil
	}

	tmpl, err := e.stores.Templates.EventTemplate(ctx, m.EventTemplateID)
	if err != nil {
		return err
	}

	t0 := e.clock.Now()
	res, handlerErr := e.dispatch(ctx, m, tmpl)
	metrics.HandlerLatency.WithLabelValues(tmpl.EventTypeID.String()).Observe(e.clock.Since(t0).Seconds())

	if handlerErr != nil {
		if !schemaBool(tmpl.Schema, "notFailOnError") {
			metrics.HandlerErrors.WithLabelValues(tmpl.EventTypeID.String()).Inc()
			// No event row is persisted for this firing; upstream
			// redelivery retries it.
			return handlerErr
		}

		metrics.ToleratedErrors.WithLabelValues(tmpl.EventTypeID.String()).Inc()
		e.debug(ctx, "handler error tolerated", MKV{
			"event_type":        tmpl.EventTypeID.String(),
			"event_template_id": tmpl.ID,
			"error":             handlerErr.Error(),
		})

		return e.persistEvent(ctx, m, tmpl, outcome{done: true}, handlerErr)
	}

	metrics.EventsProcessed.WithLabelValues(tmpl.EventTypeID.String()).Inc()

	if res.completeEventID != "" {
		return e.stores.Events.Complete(ctx, res.completeEventID)
	}

	return e.persistEvent(ctx, m, tmpl, res, nil)
}

// dispatch routes the message to exactly one handler based on the template's
// declared type.
func (e *Engine) dispatch(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	e.debug(ctx, "dispatching event", MKV{
		"event_type":        tmpl.EventTypeID.String(),
		"workflow_id":       m.WorkflowID,
		"event_template_id": tmpl.ID,
	})

	switch tmpl.EventTypeID {
	case EventTypeNotification:
		return e.handleNotify(ctx, m, tmpl)
	case EventTypeDelay:
		return e.handleDelay(ctx, m, tmpl)
	case EventTypeRequest:
		return e.handleRequest(ctx, m, tmpl)
	case EventTypeStop:
		return e.handleStop(ctx, m, tmpl)
	case EventTypeUnit:
		return e.handleUnit(ctx, m, tmpl)
	case EventTypeWorkflow:
		return e.handleWorkflow(ctx, m, tmpl)
	case EventTypeClear:
		return e.handleClear(ctx, m, tmpl)
	case EventTypeMeta:
		return e.handleMeta(ctx, m, tmpl)
	case EventTypeFile:
		return e.handleFile(ctx, m, tmpl)
	default:
		return outcome{}, errors.Wrap(ErrUnknownEventType, "", j.MKV{
			"event_type_id":     tmpl.EventTypeID.String(),
			"event_template_id": tmpl.ID,
		})
	}
}

func (e *Engine) persistEvent(ctx context.Context, m Message, tmpl *EventTemplate, res outcome, handlerErr error) error {
	now := e.clock.Now()

	data := EventData{Result: map[string]any{}}
	if handlerErr != nil {
		data.Error = handlerErr.Error()
	} else if res.resultKey != "" {
		data.Result[res.resultKey] = res.result
	}
	if res.dueDate != nil {
		data.DueDate = res.dueDate.Format(TimeFormat)
	}

	event := &Event{
		ID:              uuid.New().String(),
		WorkflowID:      m.WorkflowID,
		EventTemplateID: tmpl.ID,
		EventTypeID:     tmpl.EventTypeID,
		Done:            res.done,
		DueDate:         res.dueDate,
		DocumentID:      res.documentID,
		Data:            data,
		CreatedBy:       m.InitUserID,
		UpdatedBy:       m.InitUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return e.stores.Events.Create(ctx, event)
}

// handleDelay computes the due date and persists the event in a pending
// state; a later redelivery, once the due date has elapsed, completes the
// pending row instead of creating another one.
func (e *Engine) handleDelay(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	now := e.clock.Now()

	pending, err := e.pendingDelayEvent(ctx, m.WorkflowID, tmpl.ID)
	if err != nil {
		return outcome{}, err
	}
	if pending != nil {
		if pending.DueDate != nil && !pending.DueDate.After(now) {
			return outcome{completeEventID: pending.ID}, nil
		}

		// Redelivered early: keep waiting on the existing row.
		return outcome{}, errors.Wrap(ErrEventNotDue, "", j.MKV{
			"event_id": pending.ID,
		})
	}

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	spec, err := e.evaluator.resolveString(tmpl.Schema["delay"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	due, err := DueDate(spec, now)
	if err != nil {
		return outcome{}, err
	}

	return outcome{
		resultKey: "delay",
		result:    map[string]any{"dueDate": due.Format(TimeFormat)},
		done:      false,
		dueDate:   &due,
	}, nil
}

func (e *Engine) pendingDelayEvent(ctx context.Context, workflowID, eventTemplateID string) (*Event, error) {
	inProgress, err := e.stores.Events.ListInProgress(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	for _, ev := range inProgress {
		if ev.EventTemplateID == eventTemplateID && ev.EventTypeID == EventTypeDelay {
			pending := ev
			return &pending, nil
		}
	}

	return nil, nil
}

// handleMeta resolves the meta section's values and records them on the event
// row. The effect is purely informational; downstream consumers read it off
// the persisted result.
func (e *Engine) handleMeta(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	section, _ := schemaSection(tmpl.Schema, "meta")

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	resolved := make(map[string]any, len(section))
	for key, value := range section {
		v, verr := e.evaluator.resolveValue(value, docs, events)
		if verr != nil {
			return outcome{}, verr
		}
		resolved[key] = v
	}

	return outcome{resultKey: "meta", result: resolved, done: true}, nil
}
