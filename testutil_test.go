package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/memfiles"
	"github.com/openbp/engine/adapters/memqueue"
	"github.com/openbp/engine/adapters/memstore"
)

var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) // a Thursday

// deps bundles the in-memory capabilities one test engine runs on. Tests
// mutate the fakes before building the engine and assert on them after.
type deps struct {
	events    *memstore.EventStore
	tasks     *memstore.TaskStore
	documents *memstore.DocumentStore
	units     *memstore.UnitStore
	history   *memstore.AccessHistoryStore
	rules     *memstore.UnitRuleStore
	workflows *memstore.WorkflowStore
	templates *memstore.TemplateStore

	directory *fakeDirectory
	files     *memfiles.Store
	queue     *memqueue.Queue
	messenger *fakeMessenger
	providers *engine.ProviderRegistry

	clock  *clocktesting.FakeClock
	logger *recordLogger
}

func newDeps() *deps {
	fc := clocktesting.NewFakeClock(t0)
	return &deps{
		events:    memstore.NewEventStore(memstore.WithClock(fc)),
		tasks:     memstore.NewTaskStore(),
		documents: memstore.NewDocumentStore(),
		units:     memstore.NewUnitStore(),
		history:   memstore.NewAccessHistoryStore(),
		rules:     memstore.NewUnitRuleStore(),
		workflows: memstore.NewWorkflowStore(),
		templates: memstore.NewTemplateStore(),
		directory: &fakeDirectory{},
		files:     memfiles.New(),
		queue:     memqueue.New(),
		messenger: &fakeMessenger{},
		providers: engine.NewProviderRegistry(),
		clock:     fc,
		logger:    &recordLogger{},
	}
}

func (d *deps) newEngine(t *testing.T) *engine.Engine {
	e, err := engine.New(
		engine.Stores{
			Events:        d.events,
			Tasks:         d.tasks,
			Documents:     d.documents,
			Units:         d.units,
			AccessHistory: d.history,
			UnitRules:     d.rules,
			Workflows:     d.workflows,
			Templates:     d.templates,
		},
		engine.Clients{
			Directory: d.directory,
			Files:     d.files,
			Queue:     d.queue,
			Messenger: d.messenger,
			Providers: d.providers,
		},
		engine.WithClock(d.clock),
		engine.WithLogger(d.logger),
	)
	jtest.RequireNil(t, err)
	return e
}

func setup(t *testing.T) (*engine.Engine, *deps) {
	d := newDeps()
	return d.newEngine(t), d
}

type fakeDirectory struct {
	mu      sync.Mutex
	byID    map[string]engine.DirectoryUser
	byIpn   map[string][]engine.DirectoryUser
	updated map[string]map[string]any
	err     error
}

var _ engine.Directory = (*fakeDirectory)(nil)

func (d *fakeDirectory) seed(users ...engine.DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.byID == nil {
		d.byID = make(map[string]engine.DirectoryUser)
		d.byIpn = make(map[string][]engine.DirectoryUser)
	}
	for _, u := range users {
		d.byID[u.ID] = u
		if u.Ipn != "" {
			d.byIpn[u.Ipn] = append(d.byIpn[u.Ipn], u)
		}
	}
}

func (d *fakeDirectory) UsersByID(ctx context.Context, ids []string) ([]engine.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	var out []engine.DirectoryUser
	for _, id := range ids {
		if u, ok := d.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) UsersByIpn(ctx context.Context, ipn string) ([]engine.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	return d.byIpn[ipn], nil
}

func (d *fakeDirectory) UsersByEdrpou(ctx context.Context, edrpou string) ([]engine.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []engine.DirectoryUser
	for _, u := range d.byID {
		if u.Edrpou == edrpou {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Search(ctx context.Context, text string) ([]engine.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []engine.DirectoryUser
	for _, u := range d.byID {
		if u.Name == text {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) UpdateUser(ctx context.Context, id string, data map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	if d.updated == nil {
		d.updated = make(map[string]map[string]any)
	}
	d.updated[id] = data
	return nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []engine.Notification
	err  error
}

var _ engine.Messenger = (*fakeMessenger)(nil)

func (m *fakeMessenger) Send(ctx context.Context, n engine.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

type providerFunc func(ctx context.Context, req engine.ProviderRequest) (any, error)

func (f providerFunc) Do(ctx context.Context, req engine.ProviderRequest) (any, error) {
	return f(ctx, req)
}

// recordLogger captures log output so tests can assert on error log entries.
type recordLogger struct {
	mu     sync.Mutex
	debugs []string
	errors []error
}

var _ engine.Logger = (*recordLogger)(nil)

func (l *recordLogger) Debug(ctx context.Context, msg string, meta engine.MKV) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, msg)
}

func (l *recordLogger) Error(ctx context.Context, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}

func (l *recordLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
