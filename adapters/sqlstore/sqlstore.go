// Package sqlstore implements the event and task stores on MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine"
)

type EventStore struct {
	writer *sql.DB
	reader *sql.DB

	tableName    string
	cols         string
	selectPrefix string
}

func NewEventStore(writer *sql.DB, reader *sql.DB, tableName string) *EventStore {
	s := &EventStore{
		writer:    writer,
		reader:    reader,
		tableName: tableName,
	}

	s.cols = " `id`, `workflow_id`, `event_template_id`, `event_type_id`, `done`, `due_date`, `cancellation_type`, `document_id`, `data`, `created_by`, `updated_by`, `created_at`, `updated_at` "
	s.selectPrefix = " select " + s.cols + " from " + s.tableName + " where "

	return s
}

var _ engine.EventStore = (*EventStore)(nil)

func (s *EventStore) Create(ctx context.Context, event *engine.Event) error {
	data, err := engine.Marshal(&event.Data)
	if err != nil {
		return err
	}

	_, err = s.writer.ExecContext(ctx, "insert into "+s.tableName+" set "+
		" id=?, workflow_id=?, event_template_id=?, event_type_id=?, done=?, due_date=?, cancellation_type=?, document_id=?, data=?, created_by=?, updated_by=?, created_at=now(3), updated_at=now(3) ",
		event.ID,
		event.WorkflowID,
		event.EventTemplateID,
		int(event.EventTypeID),
		event.Done,
		event.DueDate,
		event.CancellationType,
		event.DocumentID,
		data,
		event.CreatedBy,
		event.UpdatedBy,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create event", j.MKV{
			"eventID":         event.ID,
			"workflowID":      event.WorkflowID,
			"eventTemplateID": event.EventTemplateID,
		})
	}

	return nil
}

func (s *EventStore) Lookup(ctx context.Context, id string) (*engine.Event, error) {
	return s.lookupWhere(ctx, s.reader, "id=?", id)
}

func (s *EventStore) ListInProgress(ctx context.Context, workflowID string) ([]engine.Event, error) {
	return s.listWhere(ctx, s.reader, "workflow_id=? and done=? order by created_at asc, id asc", workflowID, false)
}

func (s *EventStore) ListByWorkflow(ctx context.Context, workflowID string) ([]engine.Event, error) {
	return s.listWhere(ctx, s.reader, "workflow_id=? order by created_at asc, id asc", workflowID)
}

func (s *EventStore) ListDueBefore(ctx context.Context, t time.Time, limit int) ([]engine.Event, error) {
	return s.listWhere(ctx, s.reader, "done=? and due_date is not null and due_date<=? order by due_date asc limit ?", false, t, limit)
}

func (s *EventStore) SetCancelled(ctx context.Context, ids []string, cancellationType int) error {
	if len(ids) == 0 {
		return nil
	}

	args := []any{cancellationType}
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" done=true, cancellation_type=?, updated_at=now(3) where id in ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return errors.Wrap(err, "failed to cancel events", j.KV("count", len(ids)))
	}

	return nil
}

func (s *EventStore) Complete(ctx context.Context, id string) error {
	res, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" done=true, updated_at=now(3) where id=?", id)
	if err != nil {
		return errors.Wrap(err, "failed to complete event", j.KV("eventID", id))
	}

	return requireRow(res, engine.ErrEventNotFound, id)
}

func (s *EventStore) SetDocumentID(ctx context.Context, workflowID, eventTemplateID, documentID string) error {
	_, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" document_id=?, updated_at=now(3) where workflow_id=? and event_template_id=?",
		documentID, workflowID, eventTemplateID)
	if err != nil {
		return errors.Wrap(err, "failed to link document", j.MKV{
			"workflowID":      workflowID,
			"eventTemplateID": eventTemplateID,
		})
	}

	return nil
}

func (s *EventStore) SetData(ctx context.Context, id string, data engine.EventData) error {
	b, err := engine.Marshal(&data)
	if err != nil {
		return err
	}

	res, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" data=?, updated_at=now(3) where id=?", b, id)
	if err != nil {
		return errors.Wrap(err, "failed to set event data", j.KV("eventID", id))
	}

	return requireRow(res, engine.ErrEventNotFound, id)
}

func (s *EventStore) lookupWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) (*engine.Event, error) {
	return eventScan(dbc.QueryRowContext(ctx, s.selectPrefix+where, args...))
}

func (s *EventStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]engine.Event, error) {
	rows, err := dbc.QueryContext(ctx, s.selectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listWhere")
	}
	defer rows.Close()

	var res []engine.Event
	for rows.Next() {
		e, err := eventScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
