package engine

import (
	"context"
	"fmt"
	"time"
)

// EventType identifies which effect handler processes an event. The set is
// closed: templates declare one of these values and the dispatcher routes on
// it.
type EventType int

const (
	EventTypeUnknown      EventType = 0
	EventTypeNotification EventType = 1
	EventTypeDelay        EventType = 2
	EventTypeRequest      EventType = 3
	EventTypeStop         EventType = 4
	EventTypeUnit         EventType = 5
	EventTypeWorkflow     EventType = 6
	EventTypeClear        EventType = 7
	EventTypeMeta         EventType = 8
	EventTypeFile         EventType = 9
	eventTypeSentinel     EventType = 10
)

func (t EventType) String() string {
	switch t {
	case EventTypeNotification:
		return "Notification"
	case EventTypeDelay:
		return "Delay"
	case EventTypeRequest:
		return "Request"
	case EventTypeStop:
		return "Stop"
	case EventTypeUnit:
		return "Unit"
	case EventTypeWorkflow:
		return "Workflow"
	case EventTypeClear:
		return "Clear"
	case EventTypeMeta:
		return "Meta"
	case EventTypeFile:
		return "File"
	default:
		return fmt.Sprintf("EventType(%d)", t)
	}
}

func (t EventType) Valid() bool {
	return t > EventTypeUnknown && t < eventTypeSentinel
}

// CancellationStopped is the only cancellation type the engine writes. A
// cancelled event is always done.
const CancellationStopped = 1

// Event is one firing of an event template's effect for a workflow instance.
// Rows are never deleted; they form the audit trail of effect execution.
type Event struct {
	ID              string
	WorkflowID      string
	EventTemplateID string
	EventTypeID     EventType

	// Done is false only while the event awaits its DueDate (delay type) or
	// is mid external processing.
	Done             bool
	DueDate          *time.Time
	CancellationType *int
	DocumentID       *string
	Data             EventData

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventData is persisted as JSON on the event row. Result is always present
// once processing completes; Error only when the handler failed and the
// template tolerates continuing.
type EventData struct {
	Result  map[string]any `json:"result"`
	Error   string         `json:"error,omitempty"`
	DueDate string         `json:"dueDate,omitempty"`
}

// EventTemplate is the declarative definition of an effect. Schema leaf
// values may be literal data or expression strings evaluated at fire time.
// Templates are immutable at runtime.
type EventTemplate struct {
	ID          string
	EventTypeID EventType
	Schema      map[string]any
}

// Message is one inbound firing request as delivered by the message-queue
// consumer that owns the dispatch entrypoint.
type Message struct {
	WorkflowID      string `json:"workflowId"`
	EventTemplateID string `json:"eventTemplateId"`
	InitUserID      string `json:"initUserId,omitempty"`
	InitUserName    string `json:"initUserName,omitempty"`
	TraceID         string `json:"traceId,omitempty"`
}

type traceIDKey struct{}

// ContextWithTraceID stamps the message's trace id on the context so outbound
// HTTP adapters can propagate it.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace id set by ContextWithTraceID, or empty.
func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}

// Task is an in-progress unit of human work under a workflow. The engine only
// ever cancels tasks, detaches performers, or reassigns them; task advancement
// is owned elsewhere.
type Task struct {
	ID             string
	WorkflowID     string
	TaskTemplateID string
	DocumentID     string
	Performers     []string
	Finished       bool
	Cancelled      bool
	Meta           map[string]any
}

// Document holds the data captured by a task or generated by a file event.
type Document struct {
	ID          string
	WorkflowID  string
	FileID      string
	FileName    string
	ContentType string
	Data        map[string]any
	Attachments []string
	Signatures  []string
	Cancelled   bool
}

// Workflow is referenced, not owned: the engine reads parentage and template
// linkage and can set a named status on a parent.
type Workflow struct {
	ID                 string
	WorkflowTemplateID string
	ParentWorkflowID   string
	StatusID           int
	Data               map[string]any
}

// WorkflowTemplate carries the named-status map used by sendStatus
// propagation.
type WorkflowTemplate struct {
	ID       string
	Statuses map[string]int
}

// Unit is an organizational group addressable by internal user ID or by
// external personal code (ipn). Membership changes cascade to every unit
// listed in BasedOn.
type Unit struct {
	ID               string
	Name             string
	Heads            []string
	Members          []string
	HeadsIpn         []string
	MembersIpn       []string
	BasedOn          []string
	RequestedMembers []string
}

// DirectoryUser is the identity-service projection of a user.
type DirectoryUser struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Ipn      string   `json:"ipn"`
	Edrpou   string   `json:"edrpou"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	UnitIDs  []string `json:"unitIds"`
	IsActive bool     `json:"isActive"`
}

// AccessHistoryRecord is one append-only audit row for a unit membership
// mutation. CurrentUser is the acting user when one was supplied with the
// inbound message.
type AccessHistoryRecord struct {
	OperationType string
	User          string
	CurrentUser   string
	UnitID        string
	WorkflowID    string
	CreatedAt     time.Time
}

// Access history operation tags.
const (
	OpAddedToMemberUnit     = "added-to-member-unit"
	OpAddedToHeadUnit       = "added-to-head-unit"
	OpRemovedFromMemberUnit = "removed-from-member-unit"
	OpRemovedFromHeadUnit   = "removed-from-head-unit"
)
