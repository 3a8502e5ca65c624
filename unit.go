package engine

import (
	"context"
	"fmt"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine/internal/sets"
)

const (
	unitOpCreate = "create"
	unitOpUpdate = "update"
)

// CreateUnit creates the unit and writes one access-history entry for every
// initial member and head, by internal ID and by personal code alike.
func (e *Engine) CreateUnit(ctx context.Context, unit *Unit, workflowID string, acting ActingUser) (*UnitResult, error) {
	err := e.stores.Units.Create(ctx, unit)
	if err != nil {
		return nil, e.unitError(ctx, err, unit)
	}

	for _, id := range sets.Union(unit.Members, unit.MembersIpn) {
		err = e.saveAccessHistory(ctx, OpAddedToMemberUnit, id, unit.ID, workflowID, acting)
		if err != nil {
			return nil, e.unitError(ctx, err, unit)
		}
	}
	for _, id := range sets.Union(unit.Heads, unit.HeadsIpn) {
		err = e.saveAccessHistory(ctx, OpAddedToHeadUnit, id, unit.ID, workflowID, acting)
		if err != nil {
			return nil, e.unitError(ctx, err, unit)
		}
	}

	return &UnitResult{
		Operation: unitOpCreate,
		UnitID:    unit.ID,
		Unit:      unit,
		IsHandled: true,
	}, nil
}

// UpdateUnit diffs the supplied unit against the persisted one across the
// four relation arrays, validates exclusivity rules for the newly added
// relations only, applies the update, detaches removed users as task
// performers, and writes an access-history row per changed relation. With
// removeFromBaseUnits set, newly removed members are also stripped from every
// basedOn parent unit.
//
// There is no transaction wrapper: writes already committed when a later step
// fails stay committed. The diff-before-mutate shape is what keeps a retry
// from re-applying relations that already landed.
func (e *Engine) UpdateUnit(ctx context.Context, unit *Unit, removeFromBaseUnits bool, workflowID string, acting ActingUser) (*UnitResult, error) {
	current, err := e.stores.Units.Lookup(ctx, unit.ID)
	if err != nil {
		return nil, e.unitError(ctx, err, unit)
	}

	newHeads := sets.Diff(unit.Heads, current.Heads)
	removedHeads := sets.Diff(current.Heads, unit.Heads)
	newMembers := sets.Diff(unit.Members, current.Members)
	removedMembers := sets.Diff(current.Members, unit.Members)
	newHeadsIpn := sets.Diff(unit.HeadsIpn, current.HeadsIpn)
	removedHeadsIpn := sets.Diff(current.HeadsIpn, unit.HeadsIpn)
	newMembersIpn := sets.Diff(unit.MembersIpn, current.MembersIpn)
	removedMembersIpn := sets.Diff(current.MembersIpn, unit.MembersIpn)

	err = e.validateExclusiveByID(ctx, unit.ID, sets.Union(newHeads, newMembers))
	if err != nil {
		return nil, e.unitError(ctx, err, unit)
	}

	err = e.validateExclusiveByIpn(ctx, unit.ID, sets.Union(newHeadsIpn, newMembersIpn))
	if err != nil {
		return nil, e.unitError(ctx, err, unit)
	}

	err = e.stores.Units.Update(ctx, unit)
	if err != nil {
		return nil, e.unitError(ctx, err, unit)
	}

	// Removed users must stop being task performers in this unit.
	for _, userID := range sets.Union(removedHeads, removedMembers) {
		err = e.stores.Tasks.RemovePerformer(ctx, unit.ID, userID)
		if err != nil {
			return nil, e.unitError(ctx, err, unit)
		}
	}

	type relationChange struct {
		op    string
		users []string
	}
	changes := []relationChange{
		{OpAddedToHeadUnit, sets.Union(newHeads, newHeadsIpn)},
		{OpAddedToMemberUnit, sets.Union(newMembers, newMembersIpn)},
		{OpRemovedFromHeadUnit, sets.Union(removedHeads, removedHeadsIpn)},
		{OpRemovedFromMemberUnit, sets.Union(removedMembers, removedMembersIpn)},
	}
	for _, change := range changes {
		for _, userID := range change.users {
			err = e.saveAccessHistory(ctx, change.op, userID, unit.ID, workflowID, acting)
			if err != nil {
				return nil, e.unitError(ctx, err, unit)
			}
		}
	}

	if removeFromBaseUnits && len(removedMembers) > 0 {
		err = e.removeFromBaseUnits(ctx, unit, newMembers, removedMembers)
		if err != nil {
			return nil, e.unitError(ctx, err, unit)
		}
	}

	return &UnitResult{
		Operation: unitOpUpdate,
		UnitID:    unit.ID,
		Unit:      unit,
		IsHandled: true,
	}, nil
}

// removeFromBaseUnits strips the removed members from every basedOn parent.
// New members are merged into the parent snapshot first so a diff against a
// stale snapshot cannot re-add someone removed in the same update.
func (e *Engine) removeFromBaseUnits(ctx context.Context, unit *Unit, newMembers, removedMembers []string) error {
	for _, parentID := range unit.BasedOn {
		parent, err := e.stores.Units.Lookup(ctx, parentID)
		if err != nil {
			return err
		}

		merged := sets.Union(parent.Members, newMembers)
		parent.Members = sets.Diff(merged, removedMembers)

		err = e.stores.Units.Update(ctx, parent)
		if err != nil {
			return err
		}
	}

	return nil
}

// validateExclusiveByID rejects the mutation when any of the users already
// belongs, as head or member, to another unit sharing an exclusivity group
// with unitID.
func (e *Engine) validateExclusiveByID(ctx context.Context, unitID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	groups, err := e.stores.UnitRules.ExclusiveGroups(ctx)
	if err != nil {
		return err
	}

	for _, group := range groups {
		if !sets.Contains(group, unitID) {
			continue
		}

		for _, otherID := range group {
			if otherID == unitID {
				continue
			}

			other, err := e.stores.Units.Lookup(ctx, otherID)
			if errors.Is(err, ErrUnitNotFound) {
				continue
			} else if err != nil {
				return err
			}

			for _, userID := range userIDs {
				if sets.Contains(other.Heads, userID) || sets.Contains(other.Members, userID) {
					return errors.Wrap(ErrExclusiveUnits, "", j.MKV{
						"unit_id":       unitID,
						"other_unit_id": otherID,
						"user_id":       userID,
					})
				}
			}
		}
	}

	return nil
}

// validateExclusiveByIpn resolves each personal code through the directory
// and applies the same check by internal ID.
func (e *Engine) validateExclusiveByIpn(ctx context.Context, unitID string, ipns []string) error {
	if len(ipns) == 0 {
		return nil
	}

	var userIDs []string
	for _, ipn := range ipns {
		users, err := e.clients.Directory.UsersByIpn(ctx, ipn)
		if err != nil {
			return err
		}
		for _, user := range users {
			userIDs = append(userIDs, user.ID)
		}
	}

	return e.validateExclusiveByID(ctx, unitID, sets.Dedup(userIDs))
}

func (e *Engine) unitError(ctx context.Context, err error, unit *Unit) error {
	e.logger.Error(ctx, errors.Wrap(err, "unit mutation failed", j.MKV{
		"type":    "event-unit-update-error",
		"unit_id": unit.ID,
		"unit":    fmt.Sprintf("%+v", unit),
	}))
	return err
}

type ActingUser struct {
	ID   string
	Name string
}

func (e *Engine) saveAccessHistory(ctx context.Context, op, userID, unitID, workflowID string, acting ActingUser) error {
	currentUser := acting.ID
	if currentUser == "" {
		currentUser = acting.Name
	}

	return e.stores.AccessHistory.Save(ctx, &AccessHistoryRecord{
		OperationType: op,
		User:          userID,
		CurrentUser:   currentUser,
		UnitID:        unitID,
		WorkflowID:    workflowID,
		CreatedAt:     e.clock.Now(),
	})
}

func (e *Engine) handleUnit(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	section, ok := schemaSection(tmpl.Schema, "unit")
	if !ok {
		return outcome{}, errors.Wrap(ErrUnknownOperation, "unit schema section missing", j.KV("event_template_id", tmpl.ID))
	}

	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	op := schemaString(section, "operation")
	acting := ActingUser{ID: m.InitUserID, Name: m.InitUserName}

	switch op {
	case unitOpCreate, unitOpUpdate:
		unit, err := e.resolveUnitData(section, docs, events)
		if err != nil {
			return outcome{}, err
		}

		var res *UnitResult
		if op == unitOpCreate {
			res, err = e.CreateUnit(ctx, unit, m.WorkflowID, acting)
		} else {
			res, err = e.UpdateUnit(ctx, unit, schemaBool(section, "removeFromBaseUnits"), m.WorkflowID, acting)
		}
		if err != nil {
			return outcome{}, err
		}

		return outcome{resultKey: "unit", result: res, done: true}, nil
	default:
		// Membership operations fold under the unit event type.
		res, err := e.userOperation(ctx, op, section, m, docs, events)
		if err != nil {
			return outcome{}, err
		}

		return outcome{resultKey: "user", result: res, done: true}, nil
	}
}

// resolveUnitData builds the unit from the schema's data object, routing
// every field through the evaluator when it holds an expression.
func (e *Engine) resolveUnitData(section map[string]any, docs, events []map[string]any) (*Unit, error) {
	data, ok := schemaSection(section, "data")
	if !ok {
		return nil, errors.Wrap(ErrUnknownOperation, "unit data missing")
	}

	id, err := e.evaluator.resolveString(data["id"], docs, events)
	if err != nil {
		return nil, err
	}

	name, err := e.evaluator.resolveString(data["name"], docs, events)
	if err != nil {
		return nil, err
	}

	unit := Unit{ID: id, Name: name}

	lists := []struct {
		key    string
		target *[]string
	}{
		{"heads", &unit.Heads},
		{"members", &unit.Members},
		{"headsIpn", &unit.HeadsIpn},
		{"membersIpn", &unit.MembersIpn},
		{"basedOn", &unit.BasedOn},
		{"requestedMembers", &unit.RequestedMembers},
	}
	for _, list := range lists {
		v, ok := data[list.key]
		if !ok {
			continue
		}

		resolved, err := e.evaluator.resolveStrings(v, docs, events)
		if err != nil {
			return nil, err
		}
		*list.target = resolved
	}

	return &unit, nil
}
