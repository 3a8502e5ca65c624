package sqlstore

import (
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine"
)

func eventScan(row row) (*engine.Event, error) {
	var (
		e                engine.Event
		typeID           int
		dueDate          sql.NullTime
		cancellationType sql.NullInt64
		documentID       sql.NullString
		data             []byte
	)
	err := row.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.EventTemplateID,
		&typeID,
		&e.Done,
		&dueDate,
		&cancellationType,
		&documentID,
		&data,
		&e.CreatedBy,
		&e.UpdatedBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(engine.ErrEventNotFound, "")
	} else if err != nil {
		return nil, errors.Wrap(err, "eventScan")
	}

	e.EventTypeID = engine.EventType(typeID)
	if dueDate.Valid {
		t := dueDate.Time
		e.DueDate = &t
	}
	if cancellationType.Valid {
		ct := int(cancellationType.Int64)
		e.CancellationType = &ct
	}
	if documentID.Valid {
		id := documentID.String
		e.DocumentID = &id
	}

	err = engine.Unmarshal(data, &e.Data)
	if err != nil {
		return nil, errors.Wrap(err, "eventScan data", j.KV("eventID", e.ID))
	}

	return &e, nil
}

func taskScan(row row) (*engine.Task, error) {
	var (
		t          engine.Task
		performers []byte
		meta       []byte
	)
	err := row.Scan(
		&t.ID,
		&t.WorkflowID,
		&t.TaskTemplateID,
		&t.DocumentID,
		&performers,
		&t.Finished,
		&t.Cancelled,
		&meta,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(engine.ErrTaskNotFound, "")
	} else if err != nil {
		return nil, errors.Wrap(err, "taskScan")
	}

	err = engine.Unmarshal(performers, &t.Performers)
	if err != nil {
		return nil, errors.Wrap(err, "taskScan performers", j.KV("taskID", t.ID))
	}
	err = engine.Unmarshal(meta, &t.Meta)
	if err != nil {
		return nil, errors.Wrap(err, "taskScan meta", j.KV("taskID", t.ID))
	}

	return &t, nil
}

func requireRow(res sql.Result, sentinel error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrap(sentinel, "", j.KV("id", id))
	}

	return nil
}

// row is a common interface for *sql.Rows and *sql.Row.
type row interface {
	Scan(dest ...any) error
}
