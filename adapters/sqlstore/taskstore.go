package sqlstore

import (
	"context"
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine"
)

// TaskStore keeps tasks in one table and the unit each performer was
// assigned from in a side table, so RemovePerformer can find the tasks a
// unit membership change affects.
type TaskStore struct {
	writer *sql.DB
	reader *sql.DB

	tableName      string
	performerTable string
	cols           string
	selectPrefix   string
}

func NewTaskStore(writer *sql.DB, reader *sql.DB, tableName, performerTable string) *TaskStore {
	s := &TaskStore{
		writer:         writer,
		reader:         reader,
		tableName:      tableName,
		performerTable: performerTable,
	}

	s.cols = " `id`, `workflow_id`, `task_template_id`, `document_id`, `performers`, `finished`, `cancelled`, `meta` "
	s.selectPrefix = " select " + s.cols + " from " + s.tableName + " where "

	return s
}

var _ engine.TaskStore = (*TaskStore)(nil)

func (s *TaskStore) Lookup(ctx context.Context, id string) (*engine.Task, error) {
	return taskScan(s.reader.QueryRowContext(ctx, s.selectPrefix+"id=?", id))
}

func (s *TaskStore) ListInProgress(ctx context.Context, workflowID string) ([]engine.Task, error) {
	return s.listWhere(ctx, s.reader, "workflow_id=? and finished=? and cancelled=? order by id asc", workflowID, false, false)
}

func (s *TaskStore) ListByWorkflow(ctx context.Context, workflowID string) ([]engine.Task, error) {
	return s.listWhere(ctx, s.reader, "workflow_id=? order by id asc", workflowID)
}

func (s *TaskStore) SetCancelled(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" cancelled=true where id in ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return errors.Wrap(err, "failed to cancel tasks", j.KV("count", len(ids)))
	}

	return nil
}

func (s *TaskStore) SetPerformers(ctx context.Context, ids []string, performers []string) error {
	b, err := engine.Marshal(&performers)
	if err != nil {
		return err
	}

	for _, id := range ids {
		_, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
			" performers=? where id=?", b, id)
		if err != nil {
			return errors.Wrap(err, "failed to set performers", j.KV("taskID", id))
		}

		// Reassignment invalidates recorded performer origins.
		_, err = s.writer.ExecContext(ctx, "delete from "+s.performerTable+" where task_id=?", id)
		if err != nil {
			return errors.Wrap(err, "failed to clear performer units", j.KV("taskID", id))
		}
	}

	return nil
}

func (s *TaskStore) RemovePerformer(ctx context.Context, unitID, userID string) error {
	tasks, err := s.listWhere(ctx, s.reader,
		"finished=? and cancelled=? and id in (select task_id from "+s.performerTable+" where unit_id=? and user_id=?) order by id asc",
		false, false, unitID, userID)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		var kept []string
		for _, p := range task.Performers {
			if p != userID {
				kept = append(kept, p)
			}
		}

		b, err := engine.Marshal(&kept)
		if err != nil {
			return err
		}

		_, err = s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
			" performers=? where id=?", b, task.ID)
		if err != nil {
			return errors.Wrap(err, "failed to remove performer", j.MKV{
				"taskID": task.ID,
				"userID": userID,
			})
		}

		_, err = s.writer.ExecContext(ctx, "delete from "+s.performerTable+" where task_id=? and unit_id=? and user_id=?",
			task.ID, unitID, userID)
		if err != nil {
			return errors.Wrap(err, "failed to clear performer unit", j.KV("taskID", task.ID))
		}
	}

	return nil
}

func (s *TaskStore) SetMeta(ctx context.Context, id string, meta map[string]any) error {
	b, err := engine.Marshal(&meta)
	if err != nil {
		return err
	}

	res, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" meta=? where id=?", b, id)
	if err != nil {
		return errors.Wrap(err, "failed to set task meta", j.KV("taskID", id))
	}

	return requireRow(res, engine.ErrTaskNotFound, id)
}

// SeedTask and SeedPerformerUnit exist for tests; task creation and
// assignment are owned elsewhere.
func (s *TaskStore) SeedTask(ctx context.Context, task *engine.Task) error {
	performers, err := engine.Marshal(&task.Performers)
	if err != nil {
		return err
	}
	meta, err := engine.Marshal(&task.Meta)
	if err != nil {
		return err
	}

	_, err = s.writer.ExecContext(ctx, "insert into "+s.tableName+" set "+
		" id=?, workflow_id=?, task_template_id=?, document_id=?, performers=?, finished=?, cancelled=?, meta=? ",
		task.ID,
		task.WorkflowID,
		task.TaskTemplateID,
		task.DocumentID,
		performers,
		task.Finished,
		task.Cancelled,
		meta,
	)

	return errors.Wrap(err, "")
}

func (s *TaskStore) SeedPerformerUnit(ctx context.Context, taskID, unitID, userID string) error {
	_, err := s.writer.ExecContext(ctx, "insert into "+s.performerTable+" set "+
		" task_id=?, unit_id=?, user_id=? ", taskID, unitID, userID)

	return errors.Wrap(err, "")
}

func (s *TaskStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]engine.Task, error) {
	rows, err := dbc.QueryContext(ctx, s.selectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listWhere")
	}
	defer rows.Close()

	var res []engine.Task
	for rows.Next() {
		task, err := taskScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *task)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}
