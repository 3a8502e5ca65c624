package engine

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Clean redacts a workflow's data in place: task performer lists are
// stripped (a cleaned marker stays behind), documents lose their data and
// stored files, and every event's data is blanked. Rows themselves are kept;
// the audit trail survives, its payloads do not.
func (e *Engine) Clean(ctx context.Context, workflowID string) (*CleanResult, error) {
	res := &CleanResult{WorkflowID: workflowID}

	tasks, err := e.stores.Tasks.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		err = e.stores.Tasks.SetPerformers(ctx, []string{task.ID}, nil)
		if err != nil {
			return nil, err
		}

		meta := task.Meta
		if meta == nil {
			meta = make(map[string]any)
		}
		meta["cleaned"] = true
		err = e.stores.Tasks.SetMeta(ctx, task.ID, meta)
		if err != nil {
			return nil, err
		}
		res.CleanedTasks++
	}

	docs, err := e.stores.Documents.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		err = e.cleanDocument(ctx, &doc)
		if err != nil {
			return nil, err
		}
		res.CleanedDocuments++
	}

	events, err := e.stores.Events.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		// Events that generated a document mirror the document cleanup.
		if event.DocumentID != nil && *event.DocumentID != "" {
			doc, derr := e.stores.Documents.Lookup(ctx, *event.DocumentID)
			if derr != nil && !errors.Is(derr, ErrDocumentNotFound) {
				return nil, derr
			}
			if derr == nil && !cleaned(doc) {
				err = e.cleanDocument(ctx, doc)
				if err != nil {
					return nil, err
				}
			}
		}

		err = e.stores.Events.SetData(ctx, event.ID, EventData{
			Result: map[string]any{"cleaned": true},
		})
		if err != nil {
			return nil, err
		}
		res.CleanedEvents++
	}

	res.IsHandled = true
	return res, nil
}

// cleanDocument deletes the document's stored files, attachments and
// signatures, then blanks its data. The file-store adapters tolerate
// already-deleted files, so retrying a partially cleaned workflow is safe.
func (e *Engine) cleanDocument(ctx context.Context, doc *Document) error {
	fileIDs := append([]string{}, doc.Attachments...)
	if doc.FileID != "" {
		fileIDs = append(fileIDs, doc.FileID)
	}

	for _, fileID := range fileIDs {
		err := e.clients.Files.DeleteSignatureByFileID(ctx, fileID)
		if err != nil {
			return e.cleanError(ctx, err, doc)
		}

		err = e.clients.Files.DeleteP7sSignatureByFileID(ctx, fileID)
		if err != nil {
			return e.cleanError(ctx, err, doc)
		}

		err = e.clients.Files.DeleteFile(ctx, fileID)
		if err != nil {
			return e.cleanError(ctx, err, doc)
		}
	}

	doc.Data = map[string]any{"cleaned": true}
	doc.FileID = ""
	doc.Attachments = nil
	doc.Signatures = nil

	return e.stores.Documents.Update(ctx, doc)
}

func cleaned(doc *Document) bool {
	v, ok := doc.Data["cleaned"]
	if !ok {
		return false
	}

	b, _ := v.(bool)
	return b
}

func (e *Engine) cleanError(ctx context.Context, err error, doc *Document) error {
	e.logger.Error(ctx, errors.Wrap(err, "document cleanup failed", j.MKV{
		"type":        "event-cleaner-error",
		"document_id": doc.ID,
	}))
	return err
}

func (e *Engine) handleClear(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	res, err := e.Clean(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	return outcome{resultKey: "clear", result: res, done: true}, nil
}
