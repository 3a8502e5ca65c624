package engine

import (
	"context"
	"io"
	"time"
)

// The engine owns none of its persistence. Every store below is an injected
// capability supplied once at construction; implementations decide the
// persistence mechanism. There is no cross-call transaction boundary: a
// failure mid-sequence leaves prior writes committed, so handlers must be
// treated as at-least-once and partially idempotent.

// EventStore persists event rows. Rows are never deleted.
type EventStore interface {
	Create(ctx context.Context, event *Event) error
	Lookup(ctx context.Context, id string) (*Event, error)

	// ListInProgress returns events with done=false for the workflow.
	ListInProgress(ctx context.Context, workflowID string) ([]Event, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]Event, error)

	// ListDueBefore returns pending delay events whose due date has elapsed.
	ListDueBefore(ctx context.Context, t time.Time, limit int) ([]Event, error)

	// SetCancelled marks the events done with the given cancellation type.
	SetCancelled(ctx context.Context, ids []string, cancellationType int) error

	// Complete marks a pending event done without cancelling it.
	Complete(ctx context.Context, id string) error

	// SetDocumentID links a generated document onto the event identified by
	// workflow and event template.
	SetDocumentID(ctx context.Context, workflowID, eventTemplateID, documentID string) error

	SetData(ctx context.Context, id string, data EventData) error
}

// TaskStore exposes the bulk task operations the handlers need.
type TaskStore interface {
	Lookup(ctx context.Context, id string) (*Task, error)
	ListInProgress(ctx context.Context, workflowID string) ([]Task, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]Task, error)
	SetCancelled(ctx context.Context, ids []string) error
	SetPerformers(ctx context.Context, ids []string, performers []string) error

	// RemovePerformer detaches the user from every unfinished task attached
	// to the unit.
	RemovePerformer(ctx context.Context, unitID, userID string) error

	SetMeta(ctx context.Context, id string, meta map[string]any) error
}

type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Lookup(ctx context.Context, id string) (*Document, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]Document, error)
	SetCancelled(ctx context.Context, ids []string) error
	Update(ctx context.Context, doc *Document) error
}

// UnitStore mutates organizational units. Membership operations are
// fine-grained so implementations can make each one a single write.
type UnitStore interface {
	Create(ctx context.Context, unit *Unit) error
	Lookup(ctx context.Context, id string) (*Unit, error)
	Update(ctx context.Context, unit *Unit) error

	AddMember(ctx context.Context, unitID, userID string) error
	RemoveMember(ctx context.Context, unitID, userID string) error
	AddHead(ctx context.Context, unitID, userID string) error
	RemoveHead(ctx context.Context, unitID, userID string) error
	AddMemberIpn(ctx context.Context, unitID, ipn string) error
	RemoveMemberIpn(ctx context.Context, unitID, ipn string) error
	AddHeadIpn(ctx context.Context, unitID, ipn string) error
	RemoveHeadIpn(ctx context.Context, unitID, ipn string) error
}

// AccessHistoryStore is append only.
type AccessHistoryStore interface {
	Save(ctx context.Context, record *AccessHistoryRecord) error
}

// UnitRuleStore is read only to the engine.
type UnitRuleStore interface {
	// ExclusiveGroups returns unit-ID groups; a user may not simultaneously
	// belong, as head or member, to two units of the same group.
	ExclusiveGroups(ctx context.Context) ([][]string, error)
}

type WorkflowStore interface {
	Lookup(ctx context.Context, id string) (*Workflow, error)
	SetStatus(ctx context.Context, id string, statusID int) error
}

// TemplateStore provides read-only access to event and workflow templates.
type TemplateStore interface {
	EventTemplate(ctx context.Context, id string) (*EventTemplate, error)
	WorkflowTemplate(ctx context.Context, id string) (*WorkflowTemplate, error)
}

// Directory is the external identity service. All calls require the
// configured auth and propagate the trace ID carried on the context.
type Directory interface {
	UsersByID(ctx context.Context, ids []string) ([]DirectoryUser, error)
	UsersByIpn(ctx context.Context, ipn string) ([]DirectoryUser, error)
	UsersByEdrpou(ctx context.Context, edrpou string) ([]DirectoryUser, error)
	Search(ctx context.Context, text string) ([]DirectoryUser, error)
	UpdateUser(ctx context.Context, id string, data map[string]any) error
}

// FileInfo is what file storage reports back for an upload.
type FileInfo struct {
	ID          string
	ContentType string
	Name        string
	Hash        string
}

// FileStore is the external file storage capability. The delete methods must
// tolerate the storage's "cannot delete" response for already-deleted files
// and report it as a nil error.
type FileStore interface {
	UploadFromStream(ctx context.Context, r io.Reader, name, description, contentType string, contentLength int64) (*FileInfo, error)
	DeleteFile(ctx context.Context, fileID string) error
	DeleteSignatureByFileID(ctx context.Context, fileID string) error
	DeleteP7sSignatureByFileID(ctx context.Context, fileID string) error
}

// Queue is the producer side of the message queue. The engine uses it to
// enqueue child-workflow creation and to re-deliver elapsed delay events.
type Queue interface {
	Send(ctx context.Context, topic string, key string, payload []byte) error
}

// Queue topics produced by the engine.
const (
	TopicCreateWorkflow = "workflow.create"
	TopicEventFire      = "event.fire"
)

// Notification is one resolved message for a channel.
type Notification struct {
	Channel    string
	Recipients []string
	Subject    string
	Body       string
	MessageID  string
}

// Notification channels.
const (
	ChannelEmail       = "email"
	ChannelSMS         = "sms"
	ChannelDigest      = "digest"
	ChannelHideMessage = "hide-important-message"
)

// Messenger delivers resolved notifications. One implementation covers all
// channels; unknown channels must error.
type Messenger interface {
	Send(ctx context.Context, n Notification) error
}
