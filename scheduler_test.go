package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/memqueue"
	"github.com/openbp/engine/adapters/memstore"
)

func TestSweep(t *testing.T) {
	fc := clocktesting.NewFakeClock(t0)
	events := memstore.NewEventStore(memstore.WithClock(fc))
	queue := memqueue.New()
	ctx := context.Background()

	elapsed := t0.Add(-time.Minute)
	future := t0.Add(time.Hour)
	jtest.RequireNil(t, events.Create(ctx, &engine.Event{
		ID: "e1", WorkflowID: "w1", EventTemplateID: "et1",
		EventTypeID: engine.EventTypeDelay, DueDate: &elapsed,
	}))
	jtest.RequireNil(t, events.Create(ctx, &engine.Event{
		ID: "e2", WorkflowID: "w1", EventTemplateID: "et2",
		EventTypeID: engine.EventTypeDelay, DueDate: &future,
	}))
	jtest.RequireNil(t, events.Create(ctx, &engine.Event{
		ID: "e3", WorkflowID: "w2", EventTemplateID: "et3",
		EventTypeID: engine.EventTypeDelay, DueDate: &elapsed, Done: true,
	}))

	s := engine.NewScheduler(events, queue, engine.WithSchedulerClock(fc))

	jtest.RequireNil(t, s.Sweep(ctx))

	// Only the elapsed pending event fires.
	msgs := queue.Messages(engine.TopicEventFire)
	require.Len(t, msgs, 1)
	require.Equal(t, "e1", msgs[0].Key)

	var m engine.Message
	jtest.RequireNil(t, engine.Unmarshal(msgs[0].Payload, &m))
	require.Equal(t, "w1", m.WorkflowID)
	require.Equal(t, "et1", m.EventTemplateID)
}

func TestSweepLimit(t *testing.T) {
	fc := clocktesting.NewFakeClock(t0)
	events := memstore.NewEventStore(memstore.WithClock(fc))
	queue := memqueue.New()
	ctx := context.Background()

	elapsed := t0.Add(-time.Minute)
	for i := 0; i < 5; i++ {
		jtest.RequireNil(t, events.Create(ctx, &engine.Event{
			WorkflowID: "w1", EventTemplateID: "et1",
			EventTypeID: engine.EventTypeDelay, DueDate: &elapsed,
		}))
	}

	s := engine.NewScheduler(events, queue,
		engine.WithSchedulerClock(fc),
		engine.WithSweepLimit(3),
	)

	jtest.RequireNil(t, s.Sweep(ctx))
	require.Len(t, queue.Messages(engine.TopicEventFire), 3)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	events := memstore.NewEventStore()
	queue := memqueue.New()

	s := engine.NewScheduler(events, queue, engine.WithSweepSpec("@every 1s"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	jtest.Require(t, context.Canceled, err)
}

func TestSweepRedeliveryCompletesDelay(t *testing.T) {
	d := newDeps()
	e := d.newEngine(t)
	ctx := context.Background()

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeDelay,
		Schema:      map[string]any{"delay": "30m"},
	})
	require.True(t, e.Process(ctx, engine.Message{WorkflowID: "w1", EventTemplateID: "et1"}))

	d.clock.SetTime(t0.Add(time.Hour))

	s := engine.NewScheduler(d.events, d.queue, engine.WithSchedulerClock(d.clock))
	jtest.RequireNil(t, s.Sweep(ctx))

	msgs := d.queue.Messages(engine.TopicEventFire)
	require.Len(t, msgs, 1)

	// Feeding the sweep's message back through the dispatcher completes the
	// pending row.
	var m engine.Message
	jtest.RequireNil(t, engine.Unmarshal(msgs[0].Payload, &m))
	require.True(t, e.Process(ctx, m))

	events, err := d.events.ListByWorkflow(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Done)
}
