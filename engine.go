package engine

import (
	"context"
	"os"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/openbp/engine/internal/logger"
)

// Stores groups the persistence capabilities the engine consumes. All fields
// are required.
type Stores struct {
	Events        EventStore
	Tasks         TaskStore
	Documents     DocumentStore
	Units         UnitStore
	AccessHistory AccessHistoryStore
	UnitRules     UnitRuleStore
	Workflows     WorkflowStore
	Templates     TemplateStore
}

// Clients groups the external service capabilities. Providers may be empty
// when no request-type templates exist; the rest are required.
type Clients struct {
	Directory Directory
	Files     FileStore
	Queue     Queue
	Messenger Messenger
	Providers *ProviderRegistry
}

// Engine executes the effects event templates declare. It is constructed once
// at process start with every capability injected; there is no ambient global
// state. One inbound message maps to one synchronous Process invocation.
type Engine struct {
	stores  Stores
	clients Clients

	evaluator *Evaluator
	clock     clock.Clock
	logger    Logger
	debugMode bool
}

type options struct {
	clock     clock.Clock
	logger    Logger
	debugMode bool
}

type Option func(o *options)

// WithClock replaces the real clock, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger replaces the default slog JSON logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDebugMode enables debug logging of every dispatch decision.
func WithDebugMode() Option {
	return func(o *options) {
		o.debugMode = true
	}
}

func New(stores Stores, clients Clients, opts ...Option) (*Engine, error) {
	opt := options{
		clock:  clock.RealClock{},
		logger: logger.New(os.Stdout, TraceIDFromContext),
	}
	for _, o := range opts {
		o(&opt)
	}

	if err := validateDeps(stores, clients); err != nil {
		return nil, err
	}

	if clients.Providers == nil {
		clients.Providers = NewProviderRegistry()
	}

	return &Engine{
		stores:    stores,
		clients:   clients,
		evaluator: NewEvaluator(),
		clock:     opt.clock,
		logger:    opt.logger,
		debugMode: opt.debugMode,
	}, nil
}

func validateDeps(stores Stores, clients Clients) error {
	missing := ""
	switch {
	case stores.Events == nil:
		missing = "event store"
	case stores.Tasks == nil:
		missing = "task store"
	case stores.Documents == nil:
		missing = "document store"
	case stores.Units == nil:
		missing = "unit store"
	case stores.AccessHistory == nil:
		missing = "access history store"
	case stores.UnitRules == nil:
		missing = "unit rule store"
	case stores.Workflows == nil:
		missing = "workflow store"
	case stores.Templates == nil:
		missing = "template store"
	case clients.Directory == nil:
		missing = "directory client"
	case clients.Files == nil:
		missing = "file store"
	case clients.Queue == nil:
		missing = "queue producer"
	case clients.Messenger == nil:
		missing = "messenger"
	}

	if missing != "" {
		return errors.New("engine dependency missing", j.KV("dependency", missing))
	}

	return nil
}

func (e *Engine) debug(ctx context.Context, msg string, meta MKV) {
	if !e.debugMode {
		return
	}

	e.logger.Debug(ctx, msg, meta)
}

// expressionArgs builds the positional context values handed to schema
// expressions: the workflow's documents and prior events as generic maps.
func (e *Engine) expressionArgs(ctx context.Context, workflowID string) ([]map[string]any, []map[string]any, error) {
	docs, err := e.stores.Documents.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	events, err := e.stores.Events.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	docMaps := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		docMaps = append(docMaps, map[string]any{
			"id":         d.ID,
			"workflowId": d.WorkflowID,
			"fileId":     d.FileID,
			"fileName":   d.FileName,
			"data":       d.Data,
			"cancelled":  d.Cancelled,
		})
	}

	eventMaps := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		eventMaps = append(eventMaps, map[string]any{
			"id":              ev.ID,
			"workflowId":      ev.WorkflowID,
			"eventTemplateId": ev.EventTemplateID,
			"done":            ev.Done,
			"result":          ev.Data.Result,
		})
	}

	return docMaps, eventMaps, nil
}

// schemaSection returns schema[key] as a nested object when present.
func schemaSection(schema map[string]any, key string) (map[string]any, bool) {
	v, ok := schema[key]
	if !ok {
		return nil, false
	}

	section, ok := v.(map[string]any)
	return section, ok
}

func schemaString(schema map[string]any, key string) string {
	s, _ := schema[key].(string)
	return s
}

func schemaBool(schema map[string]any, key string) bool {
	b, _ := schema[key].(bool)
	return b
}
