package engine

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Notify resolves the recipient list, subject and body, each possibly an
// expression, and dispatches the message on the declared channel. Send
// failures are logged and rethrown; the dispatcher's error policy decides
// whether the event survives.
func (e *Engine) Notify(ctx context.Context, n Notification) (*NotifyResult, error) {
	err := e.clients.Messenger.Send(ctx, n)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "notification send failed", j.MKV{
			"type":    "send-error",
			"channel": n.Channel,
		}))
		return nil, err
	}

	return &NotifyResult{
		Channel:    n.Channel,
		Recipients: n.Recipients,
		IsHandled:  true,
	}, nil
}

func (e *Engine) handleNotify(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	section, ok := schemaSection(tmpl.Schema, "notification")
	if !ok {
		return outcome{}, errors.Wrap(ErrUnknownOperation, "notification schema section missing", j.KV("event_template_id", tmpl.ID))
	}

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	channel := schemaString(section, "channel")
	if channel == "" {
		channel = ChannelEmail
	}

	recipients, err := e.evaluator.resolveStrings(section["recipients"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	subject, err := e.evaluator.resolveString(section["subject"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	body, err := e.evaluator.resolveString(section["body"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	messageID, err := e.evaluator.resolveString(section["messageId"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	res, err := e.Notify(ctx, Notification{
		Channel:    channel,
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		MessageID:  messageID,
	})
	if err != nil {
		return outcome{}, err
	}

	return outcome{resultKey: "notification", result: res, done: true}, nil
}
