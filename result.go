package engine

// Result envelopes are what handlers hand back to the dispatcher. Each is
// JSON-serializable and is written into Event.Data.Result under the handler's
// key. IsHandled reports whether the handler completed its whole sequence;
// partially applied mutations can exist without it (see the per-handler
// contracts).

// StopResult is stored inside the stop event's data under "stop". It is not
// persisted as its own row.
type StopResult struct {
	WorkflowID            string   `json:"workflowId"`
	TaskTemplateIDFilter  []string `json:"taskTemplateIds,omitempty"`
	EventTemplateIDFilter []string `json:"eventTemplateIds,omitempty"`
	StoppedTaskIDs        []string `json:"stoppedTaskIds"`
	StoppedEventIDs       []string `json:"stoppedEventIds"`
	IsHandled             bool     `json:"isHandled"`
}

// UnitResult reports a unit create or update.
type UnitResult struct {
	Operation string `json:"operation"`
	UnitID    string `json:"unitId"`
	Unit      *Unit  `json:"unit,omitempty"`
	Error     string `json:"error,omitempty"`
	IsHandled bool   `json:"isHandled"`
}

// UserResult reports a membership mutation. Errors tolerated per-user (an
// ambiguous personal code, an existing relation) land in Errors without
// aborting the batch.
type UserResult struct {
	Operation string            `json:"operation"`
	UnitID    string            `json:"unitId"`
	UserIDs   []string          `json:"userIds,omitempty"`
	Ipns      []string          `json:"ipns,omitempty"`
	Unit      *Unit             `json:"unit,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	IsHandled bool              `json:"isHandled"`
}

// RequestResult wraps the raw provider response.
type RequestResult struct {
	Provider  string `json:"provider"`
	Method    string `json:"method"`
	Response  any    `json:"response,omitempty"`
	IsHandled bool   `json:"isHandled"`
}

// NotifyResult lists what got sent per channel.
type NotifyResult struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients"`
	IsHandled  bool     `json:"isHandled"`
}

// WorkflowResult reports an orchestration sub-operation.
type WorkflowResult struct {
	Operation   string   `json:"operation"`
	WorkflowIDs []string `json:"workflowIds,omitempty"`
	TaskIDs     []string `json:"taskIds,omitempty"`
	Status      string   `json:"status,omitempty"`
	IsHandled   bool     `json:"isHandled"`
}

// CleanResult reports how much of a workflow's data got redacted.
type CleanResult struct {
	WorkflowID       string `json:"workflowId"`
	CleanedTasks     int    `json:"cleanedTasks"`
	CleanedDocuments int    `json:"cleanedDocuments"`
	CleanedEvents    int    `json:"cleanedEvents"`
	IsHandled        bool   `json:"isHandled"`
}

// FileResult points at the uploaded export and its document row.
type FileResult struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	DocumentID  string `json:"documentId"`
	Rows        int    `json:"rows"`
	IsHandled   bool   `json:"isHandled"`
}
