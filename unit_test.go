package engine_test

import (
	"context"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/memstore"
)

func TestCreateUnit(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	unit := &engine.Unit{
		ID:         "unit1",
		Name:       "Review Board",
		Heads:      []string{"u1"},
		Members:    []string{"u2", "u3"},
		MembersIpn: []string{"1111111111"},
	}

	res, err := e.CreateUnit(ctx, unit, "w1", engine.ActingUser{ID: "admin"})
	jtest.RequireNil(t, err)
	require.True(t, res.IsHandled)
	require.Equal(t, "unit1", res.UnitID)

	got, err := d.units.Lookup(ctx, "unit1")
	jtest.RequireNil(t, err)
	require.Equal(t, []string{"u2", "u3"}, got.Members)

	records := d.history.Records()
	require.Len(t, records, 4)

	ops := make(map[string]int)
	for _, r := range records {
		ops[r.OperationType]++
		require.Equal(t, "admin", r.CurrentUser)
		require.Equal(t, "w1", r.WorkflowID)
	}
	require.Equal(t, 3, ops[engine.OpAddedToMemberUnit])
	require.Equal(t, 1, ops[engine.OpAddedToHeadUnit])
}

func TestUpdateUnitDiff(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{
		ID:      "unit1",
		Heads:   []string{"u1"},
		Members: []string{"u2", "u3"},
	}))
	d.tasks.Seed(&engine.Task{ID: "t1", WorkflowID: "w1", Performers: []string{"u3", "u4"}})
	d.tasks.SeedPerformerUnit("t1", "u3", "unit1")

	updated := &engine.Unit{
		ID:      "unit1",
		Heads:   []string{"u1"},
		Members: []string{"u2", "u5"}, // u3 out, u5 in
	}

	res, err := e.UpdateUnit(ctx, updated, false, "w1", engine.ActingUser{Name: "System"})
	jtest.RequireNil(t, err)
	require.True(t, res.IsHandled)

	got, err := d.units.Lookup(ctx, "unit1")
	jtest.RequireNil(t, err)
	require.ElementsMatch(t, []string{"u2", "u5"}, got.Members)

	// The removed member stops being a task performer in this unit.
	task, err := d.tasks.Lookup(ctx, "t1")
	jtest.RequireNil(t, err)
	require.Equal(t, []string{"u4"}, task.Performers)

	records := d.history.Records()
	require.Len(t, records, 2)
	ops := make(map[string]string)
	for _, r := range records {
		ops[r.OperationType] = r.User
		require.Equal(t, "System", r.CurrentUser)
	}
	require.Equal(t, "u5", ops[engine.OpAddedToMemberUnit])
	require.Equal(t, "u3", ops[engine.OpRemovedFromMemberUnit])
}

func TestUpdateUnitNoChanges(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{ID: "unit1", Members: []string{"u1"}}))

	_, err := e.UpdateUnit(ctx, &engine.Unit{ID: "unit1", Members: []string{"u1"}}, false, "w1", engine.ActingUser{})
	jtest.RequireNil(t, err)

	require.Empty(t, d.history.Records())
}

func TestUpdateUnitExclusive(t *testing.T) {
	d := newDeps()
	d.rules = memstore.NewUnitRuleStore([]string{"unit1", "unit2"})
	e := d.newEngine(t)
	ctx := context.Background()

	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{ID: "unit1"}))
	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{ID: "unit2", Members: []string{"u1"}}))

	_, err := e.UpdateUnit(ctx, &engine.Unit{ID: "unit1", Members: []string{"u1"}}, false, "w1", engine.ActingUser{})
	jtest.Require(t, engine.ErrExclusiveUnits, err)

	// The rejected member never lands.
	got, lerr := d.units.Lookup(ctx, "unit1")
	jtest.RequireNil(t, lerr)
	require.Empty(t, got.Members)
}

func TestUpdateUnitRemoveFromBaseUnits(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{ID: "parent", Members: []string{"u2", "u9"}}))
	jtest.RequireNil(t, d.units.Create(ctx, &engine.Unit{
		ID:      "unit1",
		Members: []string{"u2"},
		BasedOn: []string{"parent"},
	}))

	updated := &engine.Unit{
		ID:      "unit1",
		Members: []string{"u5"}, // u2 out, u5 in
		BasedOn: []string{"parent"},
	}

	_, err := e.UpdateUnit(ctx, updated, true, "w1", engine.ActingUser{})
	jtest.RequireNil(t, err)

	parent, err := d.units.Lookup(ctx, "parent")
	jtest.RequireNil(t, err)
	require.NotContains(t, parent.Members, "u2")
	require.Contains(t, parent.Members, "u9")
	// The new member was merged in before the removal diff.
	require.Contains(t, parent.Members, "u5")
}

func TestProcessUnitCreate(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeUnit,
		Schema: map[string]any{
			"unit": map[string]any{
				"operation": "create",
				"data": map[string]any{
					"id":      "unit1",
					"name":    "Commission",
					"members": `func() []string { return []string{"u1"} }`,
				},
			},
		},
	})

	ok := e.Process(ctx, engine.Message{
		WorkflowID:      "w1",
		EventTemplateID: "et1",
		InitUserID:      "admin",
		InitUserName:    "Admin",
	})
	require.True(t, ok)

	unit, err := d.units.Lookup(ctx, "unit1")
	jtest.RequireNil(t, err)
	require.Equal(t, "Commission", unit.Name)
	require.Equal(t, []string{"u1"}, unit.Members)

	events, err := d.events.ListByWorkflow(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, events, 1)
	require.Contains(t, events[0].Data.Result, "unit")
}
