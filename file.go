package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/xuri/excelize/v2"
)

// Export file types.
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// GenerateFile builds a CSV or XLSX export out of mapped row data, uploads
// the bytes, verifies the storage echoed the expected content type, creates a
// document row pointing at the upload, and returns the link for the event.
// data is what a mapping expression returns: a list of rows or a map of sheet
// name to rows.
func (e *Engine) GenerateFile(ctx context.Context, workflowID, fileType, name string, data any) (*FileResult, error) {
	rows, err := normalizeRows(data)
	if err != nil {
		return nil, err
	}

	var (
		content     []byte
		contentType string
	)
	switch fileType {
	case FileTypeCSV:
		content, err = renderCSV(rows)
		contentType = contentTypeCSV
	case FileTypeXLSX:
		content, err = renderXLSX(rows)
		contentType = contentTypeXLSX
	default:
		return nil, errors.Wrap(ErrUnknownOperation, "", j.MKV{
			"event_type": EventTypeFile.String(),
			"operation":  fileType,
		})
	}
	if err != nil {
		return nil, err
	}

	info, err := e.clients.Files.UploadFromStream(ctx, bytes.NewReader(content), name, "", contentType, int64(len(content)))
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "export upload failed", j.MKV{
			"type":      "external-service-error|send-error",
			"file_name": name,
		}))
		return nil, err
	}

	if info.ContentType != contentType {
		return nil, errors.Wrap(ErrContentTypeMismatch, "", j.MKV{
			"expected": contentType,
			"got":      info.ContentType,
		})
	}

	doc := &Document{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		FileID:      info.ID,
		FileName:    name,
		ContentType: contentType,
	}
	err = e.stores.Documents.Create(ctx, doc)
	if err != nil {
		return nil, err
	}

	return &FileResult{
		FileID:      info.ID,
		FileName:    name,
		ContentType: contentType,
		DocumentID:  doc.ID,
		Rows:        rows.count(),
		IsHandled:   true,
	}, nil
}

// exportRows is the normalized mapping output: one sheet for CSV, one or more
// for XLSX. Sheet order is kept stable by name.
type exportRows struct {
	sheets map[string][][]string
}

func (r exportRows) count() int {
	var n int
	for _, rows := range r.sheets {
		n += len(rows)
	}
	return n
}

func (r exportRows) sheetNames() []string {
	names := make([]string, 0, len(r.sheets))
	for name := range r.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const defaultSheet = "Sheet1"

// normalizeRows accepts what mapping expressions return: a list of rows, each
// row a list of cells, or a map of sheet name to such a list. Cells are
// stringified.
func normalizeRows(v any) (exportRows, error) {
	switch val := v.(type) {
	case map[string]any:
		sheets := make(map[string][][]string, len(val))
		for name, sheetRows := range val {
			rows, err := normalizeSheet(sheetRows)
			if err != nil {
				return exportRows{}, err
			}
			sheets[name] = rows
		}
		return exportRows{sheets: sheets}, nil
	default:
		rows, err := normalizeSheet(v)
		if err != nil {
			return exportRows{}, err
		}
		return exportRows{sheets: map[string][][]string{defaultSheet: rows}}, nil
	}
}

func normalizeSheet(v any) ([][]string, error) {
	switch val := v.(type) {
	case [][]string:
		return val, nil
	case []any:
		rows := make([][]string, 0, len(val))
		for _, rawRow := range val {
			switch row := rawRow.(type) {
			case []string:
				rows = append(rows, row)
			case []any:
				cells := make([]string, 0, len(row))
				for _, cell := range row {
					cells = append(cells, fmt.Sprint(cell))
				}
				rows = append(rows, cells)
			default:
				return nil, errors.Wrap(ErrEvaluateSchemaFunction, "map expression row is not a list",
					j.KV("got", fmt.Sprintf("%T", rawRow)))
			}
		}
		return rows, nil
	default:
		return nil, errors.Wrap(ErrEvaluateSchemaFunction, "map expression did not return rows",
			j.KV("got", fmt.Sprintf("%T", v)))
	}
}

func renderCSV(rows exportRows) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, name := range rows.sheetNames() {
		for _, row := range rows.sheets[name] {
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func renderXLSX(rows exportRows) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range rows.sheetNames() {
		if i == 0 {
			// Reuse the workbook's default sheet for the first export sheet.
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, err
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
		}

		for rowIdx, row := range rows.sheets[name] {
			cells := make([]any, len(row))
			for c, cell := range row {
				cells[c] = cell
			}
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", rowIdx+1), &cells); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (e *Engine) handleFile(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	section, ok := schemaSection(tmpl.Schema, "file")
	if !ok {
		return outcome{}, errors.Wrap(ErrUnknownOperation, "file schema section missing", j.KV("event_template_id", tmpl.ID))
	}

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	fileType := schemaString(section, "type")
	if fileType == "" {
		fileType = FileTypeCSV
	}

	name, err := e.evaluator.resolveString(section["name"], docs, events)
	if err != nil {
		return outcome{}, err
	}
	if name == "" {
		name = "export." + fileType
	}

	mapped, err := e.evaluator.resolveValue(section["map"], docs, events)
	if err != nil {
		return outcome{}, err
	}

	res, err := e.GenerateFile(ctx, m.WorkflowID, fileType, name, mapped)
	if err != nil {
		return outcome{}, err
	}

	// The generated document is linked back onto the originating event.
	err = e.stores.Events.SetDocumentID(ctx, m.WorkflowID, tmpl.ID, res.DocumentID)
	if err != nil {
		return outcome{}, err
	}

	return outcome{
		resultKey:  "file",
		result:     res,
		done:       true,
		documentID: &res.DocumentID,
	}, nil
}
