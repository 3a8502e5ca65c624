package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/sqlstore"
)

func TestEventStore(t *testing.T) {
	dbc := ConnectForTesting(t)
	store := sqlstore.NewEventStore(dbc, dbc, "engine_events")
	ctx := context.Background()

	due := time.Now().Add(-time.Minute).Truncate(time.Millisecond).UTC()
	pending := &engine.Event{
		ID:              uuid.New().String(),
		WorkflowID:      "w1",
		EventTemplateID: "et-delay",
		EventTypeID:     engine.EventTypeDelay,
		DueDate:         &due,
		Data:            engine.EventData{Result: map[string]any{}},
	}
	jtest.RequireNil(t, store.Create(ctx, pending))

	done := &engine.Event{
		ID:              uuid.New().String(),
		WorkflowID:      "w1",
		EventTemplateID: "et-notify",
		EventTypeID:     engine.EventTypeNotification,
		Done:            true,
		Data:            engine.EventData{Result: map[string]any{"notify": true}},
	}
	jtest.RequireNil(t, store.Create(ctx, done))

	got, err := store.Lookup(ctx, pending.ID)
	jtest.RequireNil(t, err)
	require.Equal(t, pending.ID, got.ID)
	require.Equal(t, engine.EventTypeDelay, got.EventTypeID)
	require.False(t, got.Done)
	require.NotNil(t, got.DueDate)

	inProgress, err := store.ListInProgress(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, inProgress, 1)
	require.Equal(t, pending.ID, inProgress[0].ID)

	all, err := store.ListByWorkflow(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, all, 2)

	dueEvents, err := store.ListDueBefore(ctx, time.Now(), 10)
	jtest.RequireNil(t, err)
	require.Len(t, dueEvents, 1)
	require.Equal(t, pending.ID, dueEvents[0].ID)

	jtest.RequireNil(t, store.Complete(ctx, pending.ID))

	got, err = store.Lookup(ctx, pending.ID)
	jtest.RequireNil(t, err)
	require.True(t, got.Done)
	require.Nil(t, got.CancellationType)

	_, err = store.Lookup(ctx, "missing")
	jtest.Require(t, engine.ErrEventNotFound, err)
}

func TestEventStoreSetCancelled(t *testing.T) {
	dbc := ConnectForTesting(t)
	store := sqlstore.NewEventStore(dbc, dbc, "engine_events")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		ev := &engine.Event{
			ID:              uuid.New().String(),
			WorkflowID:      "w1",
			EventTemplateID: "et1",
			EventTypeID:     engine.EventTypeDelay,
		}
		jtest.RequireNil(t, store.Create(ctx, ev))
		ids = append(ids, ev.ID)
	}

	jtest.RequireNil(t, store.SetCancelled(ctx, ids, engine.CancellationStopped))

	for _, id := range ids {
		got, err := store.Lookup(ctx, id)
		jtest.RequireNil(t, err)
		require.True(t, got.Done)
		require.NotNil(t, got.CancellationType)
		require.Equal(t, engine.CancellationStopped, *got.CancellationType)
	}
}

func TestEventStoreSetDocumentIDAndData(t *testing.T) {
	dbc := ConnectForTesting(t)
	store := sqlstore.NewEventStore(dbc, dbc, "engine_events")
	ctx := context.Background()

	ev := &engine.Event{
		ID:              uuid.New().String(),
		WorkflowID:      "w1",
		EventTemplateID: "et-file",
		EventTypeID:     engine.EventTypeFile,
		Done:            true,
	}
	jtest.RequireNil(t, store.Create(ctx, ev))

	jtest.RequireNil(t, store.SetDocumentID(ctx, "w1", "et-file", "doc1"))

	got, err := store.Lookup(ctx, ev.ID)
	jtest.RequireNil(t, err)
	require.NotNil(t, got.DocumentID)
	require.Equal(t, "doc1", *got.DocumentID)

	jtest.RequireNil(t, store.SetData(ctx, ev.ID, engine.EventData{
		Result: map[string]any{"cleaned": true},
	}))

	got, err = store.Lookup(ctx, ev.ID)
	jtest.RequireNil(t, err)
	require.Equal(t, map[string]any{"cleaned": true}, got.Data.Result)
}

func TestTaskStore(t *testing.T) {
	dbc := ConnectForTesting(t)
	store := sqlstore.NewTaskStore(dbc, dbc, "engine_tasks", "engine_task_performer_units")
	ctx := context.Background()

	task := &engine.Task{
		ID:             "t1",
		WorkflowID:     "w1",
		TaskTemplateID: "tt1",
		Performers:     []string{"u1", "u2"},
	}
	jtest.RequireNil(t, store.SeedTask(ctx, task))
	jtest.RequireNil(t, store.SeedPerformerUnit(ctx, "t1", "unit1", "u1"))

	inProgress, err := store.ListInProgress(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, inProgress, 1)
	require.Equal(t, []string{"u1", "u2"}, inProgress[0].Performers)

	jtest.RequireNil(t, store.RemovePerformer(ctx, "unit1", "u1"))

	got, err := store.Lookup(ctx, "t1")
	jtest.RequireNil(t, err)
	require.Equal(t, []string{"u2"}, got.Performers)

	// Absent mapping is a no-op.
	jtest.RequireNil(t, store.RemovePerformer(ctx, "unit1", "u1"))

	jtest.RequireNil(t, store.SetPerformers(ctx, []string{"t1"}, []string{"u3"}))

	got, err = store.Lookup(ctx, "t1")
	jtest.RequireNil(t, err)
	require.Equal(t, []string{"u3"}, got.Performers)

	jtest.RequireNil(t, store.SetMeta(ctx, "t1", map[string]any{"cleaned": true}))

	got, err = store.Lookup(ctx, "t1")
	jtest.RequireNil(t, err)
	require.Equal(t, map[string]any{"cleaned": true}, got.Meta)

	jtest.RequireNil(t, store.SetCancelled(ctx, []string{"t1"}))

	got, err = store.Lookup(ctx, "t1")
	jtest.RequireNil(t, err)
	require.True(t, got.Cancelled)
}
