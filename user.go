package engine

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine/internal/sets"
)

// Relation selects which of a unit's four membership arrays an operation
// mutates.
type Relation struct {
	head  bool
	byIpn bool
}

var (
	RelationMember    = Relation{}
	RelationHead      = Relation{head: true}
	RelationMemberIpn = Relation{byIpn: true}
	RelationHeadIpn   = Relation{head: true, byIpn: true}
)

func (r Relation) String() string {
	switch {
	case r.head && r.byIpn:
		return "headIpn"
	case r.head:
		return "head"
	case r.byIpn:
		return "memberIpn"
	default:
		return "member"
	}
}

func (r Relation) members(u *Unit) []string {
	switch {
	case r.head && r.byIpn:
		return u.HeadsIpn
	case r.head:
		return u.Heads
	case r.byIpn:
		return u.MembersIpn
	default:
		return u.Members
	}
}

func (r Relation) addedOp() string {
	if r.head {
		return OpAddedToHeadUnit
	}
	return OpAddedToMemberUnit
}

func (r Relation) removedOp() string {
	if r.head {
		return OpRemovedFromHeadUnit
	}
	return OpRemovedFromMemberUnit
}

func (e *Engine) addRelation(ctx context.Context, unit *Unit, id string, rel Relation) error {
	switch {
	case rel.head && rel.byIpn:
		return e.stores.Units.AddHeadIpn(ctx, unit.ID, id)
	case rel.head:
		return e.stores.Units.AddHead(ctx, unit.ID, id)
	case rel.byIpn:
		return e.stores.Units.AddMemberIpn(ctx, unit.ID, id)
	default:
		return e.stores.Units.AddMember(ctx, unit.ID, id)
	}
}

func (e *Engine) removeRelation(ctx context.Context, unit *Unit, id string, rel Relation) error {
	switch {
	case rel.head && rel.byIpn:
		return e.stores.Units.RemoveHeadIpn(ctx, unit.ID, id)
	case rel.head:
		return e.stores.Units.RemoveHead(ctx, unit.ID, id)
	case rel.byIpn:
		return e.stores.Units.RemoveMemberIpn(ctx, unit.ID, id)
	default:
		return e.stores.Units.RemoveMember(ctx, unit.ID, id)
	}
}

// AddToUnit adds users or personal codes to a unit's member or head list.
// The operation is idempotent: an existing relation becomes an explicit
// "already a member/head" entry in the result instead of a duplicate write,
// and no access-history row is produced for it. Exclusivity rules are checked
// before any mutation, and the mutation cascades to every basedOn parent.
func (e *Engine) AddToUnit(ctx context.Context, unitID string, ids []string, rel Relation, workflowID string, acting ActingUser) (*UserResult, error) {
	unit, err := e.stores.Units.Lookup(ctx, unitID)
	if err != nil {
		return nil, err
	}

	res := &UserResult{
		Operation: "add-" + rel.String(),
		UnitID:    unitID,
		Errors:    make(map[string]string),
	}
	if rel.byIpn {
		res.Ipns = ids
	} else {
		res.UserIDs = ids
	}

	var toAdd []string
	for _, id := range sets.Dedup(ids) {
		if sets.Contains(rel.members(unit), id) {
			if rel.head {
				res.Errors[id] = ErrAlreadyHead.Error()
			} else {
				res.Errors[id] = ErrAlreadyMember.Error()
			}
			continue
		}
		toAdd = append(toAdd, id)
	}

	if rel.byIpn {
		err = e.validateExclusiveByIpn(ctx, unitID, toAdd)
	} else {
		err = e.validateExclusiveByID(ctx, unitID, toAdd)
	}
	if err != nil {
		return nil, err
	}

	for _, id := range toAdd {
		err = e.addRelation(ctx, unit, id, rel)
		if err != nil {
			return nil, err
		}

		err = e.saveAccessHistory(ctx, rel.addedOp(), id, unitID, workflowID, acting)
		if err != nil {
			return nil, err
		}

		err = e.cascadeToBaseUnits(ctx, unit, id, rel, true, workflowID, acting)
		if err != nil {
			return nil, err
		}
	}

	updated, err := e.stores.Units.Lookup(ctx, unitID)
	if err != nil {
		return nil, err
	}

	res.Unit = updated
	res.IsHandled = true
	return res, nil
}

// RemoveFromUnit removes users or personal codes from a unit's member or head
// list. Each removed user is first detached as a task performer in the unit,
// and the removal cascades to every basedOn parent. Absent relations are
// skipped quietly.
func (e *Engine) RemoveFromUnit(ctx context.Context, unitID string, ids []string, rel Relation, workflowID string, acting ActingUser) (*UserResult, error) {
	unit, err := e.stores.Units.Lookup(ctx, unitID)
	if err != nil {
		return nil, err
	}

	res := &UserResult{
		Operation: "remove-" + rel.String(),
		UnitID:    unitID,
		Errors:    make(map[string]string),
	}
	if rel.byIpn {
		res.Ipns = ids
	} else {
		res.UserIDs = ids
	}

	for _, id := range sets.Dedup(ids) {
		if !sets.Contains(rel.members(unit), id) {
			continue
		}

		if !rel.byIpn {
			err = e.stores.Tasks.RemovePerformer(ctx, unitID, id)
			if err != nil {
				return nil, err
			}
		}

		err = e.removeRelation(ctx, unit, id, rel)
		if err != nil {
			return nil, err
		}

		err = e.saveAccessHistory(ctx, rel.removedOp(), id, unitID, workflowID, acting)
		if err != nil {
			return nil, err
		}

		err = e.cascadeToBaseUnits(ctx, unit, id, rel, false, workflowID, acting)
		if err != nil {
			return nil, err
		}
	}

	updated, err := e.stores.Units.Lookup(ctx, unitID)
	if err != nil {
		return nil, err
	}

	res.Unit = updated
	res.IsHandled = true
	return res, nil
}

// cascadeToBaseUnits mirrors a single relation mutation onto every unit the
// primary unit is based on. Existing relations on a parent are left alone.
func (e *Engine) cascadeToBaseUnits(ctx context.Context, unit *Unit, id string, rel Relation, add bool, workflowID string, acting ActingUser) error {
	for _, parentID := range unit.BasedOn {
		parent, err := e.stores.Units.Lookup(ctx, parentID)
		if errors.Is(err, ErrUnitNotFound) {
			continue
		} else if err != nil {
			return err
		}

		if add {
			if sets.Contains(rel.members(parent), id) {
				continue
			}
			err = e.addRelation(ctx, parent, id, rel)
			if err != nil {
				return err
			}
			err = e.saveAccessHistory(ctx, rel.addedOp(), id, parentID, workflowID, acting)
		} else {
			if !sets.Contains(rel.members(parent), id) {
				continue
			}
			err = e.removeRelation(ctx, parent, id, rel)
			if err != nil {
				return err
			}
			err = e.saveAccessHistory(ctx, rel.removedOp(), id, parentID, workflowID, acting)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// RemoveMembersFromUnitsByIpn removes members identified by personal code
// from each of the given units, resolving every code to exactly one internal
// ID through the directory first. A code resolving to zero or more than one
// user is skipped with a per-unit error entry rather than aborting the batch.
func (e *Engine) RemoveMembersFromUnitsByIpn(ctx context.Context, unitIDs, ipns []string, workflowID string, acting ActingUser) (*UserResult, error) {
	res := &UserResult{
		Operation: "removeMembersFromUnitsByIpn",
		Ipns:      ipns,
		Errors:    make(map[string]string),
	}

	resolved := make(map[string]string, len(ipns))
	missing := make(map[string]bool)
	for _, ipn := range sets.Dedup(ipns) {
		users, err := e.clients.Directory.UsersByIpn(ctx, ipn)
		if err != nil {
			return nil, err
		}

		switch len(users) {
		case 1:
			resolved[ipn] = users[0].ID
		case 0:
			missing[ipn] = true
		default:
			// Ambiguous codes are skipped, not fatal.
		}
	}

	for _, unitID := range unitIDs {
		unit, err := e.stores.Units.Lookup(ctx, unitID)
		if err != nil {
			return nil, err
		}

		for _, ipn := range sets.Dedup(ipns) {
			userID, ok := resolved[ipn]
			if !ok {
				if missing[ipn] {
					res.Errors[unitID+":"+ipn] = ErrIpnNotFound.Error()
				} else {
					res.Errors[unitID+":"+ipn] = ErrAmbiguousIpn.Error()
				}
				continue
			}

			if sets.Contains(unit.Members, userID) {
				err = e.stores.Tasks.RemovePerformer(ctx, unitID, userID)
				if err != nil {
					return nil, err
				}

				err = e.stores.Units.RemoveMember(ctx, unitID, userID)
				if err != nil {
					return nil, err
				}

				err = e.saveAccessHistory(ctx, OpRemovedFromMemberUnit, userID, unitID, workflowID, acting)
				if err != nil {
					return nil, err
				}
			}

			if sets.Contains(unit.MembersIpn, ipn) {
				err = e.stores.Units.RemoveMemberIpn(ctx, unitID, ipn)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	res.IsHandled = true
	return res, nil
}

// UpdateUser proxies a user update to the directory service.
func (e *Engine) UpdateUser(ctx context.Context, userID string, data map[string]any) (*UserResult, error) {
	err := e.clients.Directory.UpdateUser(ctx, userID, data)
	if err != nil {
		return nil, err
	}

	return &UserResult{
		Operation: "updateUser",
		UserIDs:   []string{userID},
		IsHandled: true,
	}, nil
}

// SearchCriteria is one federated directory lookup. Criteria combine: every
// non-empty criterion contributes candidates and the result is de-duplicated
// by user ID.
type SearchCriteria struct {
	UserIDs []string
	UnitID  string
	Ipn     string
	Edrpou  string
	Text    string
}

// SearchUser performs a multi-criteria directory lookup.
func (e *Engine) SearchUser(ctx context.Context, criteria SearchCriteria) ([]DirectoryUser, error) {
	var found []DirectoryUser

	if len(criteria.UserIDs) > 0 {
		users, err := e.clients.Directory.UsersByID(ctx, criteria.UserIDs)
		if err != nil {
			return nil, err
		}
		found = append(found, users...)
	}

	if criteria.UnitID != "" {
		unit, err := e.stores.Units.Lookup(ctx, criteria.UnitID)
		if err != nil {
			return nil, err
		}

		ids := sets.Union(unit.Heads, unit.Members)
		if len(ids) > 0 {
			users, err := e.clients.Directory.UsersByID(ctx, ids)
			if err != nil {
				return nil, err
			}
			found = append(found, users...)
		}
	}

	if criteria.Ipn != "" {
		users, err := e.clients.Directory.UsersByIpn(ctx, criteria.Ipn)
		if err != nil {
			return nil, err
		}
		found = append(found, users...)
	}

	if criteria.Edrpou != "" {
		users, err := e.clients.Directory.UsersByEdrpou(ctx, criteria.Edrpou)
		if err != nil {
			return nil, err
		}
		found = append(found, users...)
	}

	if criteria.Text != "" {
		users, err := e.clients.Directory.Search(ctx, criteria.Text)
		if err != nil {
			return nil, err
		}
		found = append(found, users...)
	}

	seen := make(map[string]bool, len(found))
	deduped := make([]DirectoryUser, 0, len(found))
	for _, user := range found {
		if seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		deduped = append(deduped, user)
	}

	return deduped, nil
}

// userOperation routes a membership operation declared on a unit-type schema.
func (e *Engine) userOperation(ctx context.Context, op string, section map[string]any, m Message, docs, events []map[string]any) (*UserResult, error) {
	acting := ActingUser{ID: m.InitUserID, Name: m.InitUserName}

	unitID, err := e.evaluator.resolveString(section["unitId"], docs, events)
	if err != nil {
		return nil, err
	}

	userIDs, err := e.evaluator.resolveStrings(section["userIds"], docs, events)
	if err != nil {
		return nil, err
	}
	singleUser, err := e.evaluator.resolveString(section["userId"], docs, events)
	if err != nil {
		return nil, err
	}
	if singleUser != "" {
		userIDs = append(userIDs, singleUser)
	}

	ipns, err := e.evaluator.resolveStrings(section["ipns"], docs, events)
	if err != nil {
		return nil, err
	}
	singleIpn, err := e.evaluator.resolveString(section["ipn"], docs, events)
	if err != nil {
		return nil, err
	}
	if singleIpn != "" {
		ipns = append(ipns, singleIpn)
	}

	switch op {
	case "addMember", "addMembers", "addMemberList":
		return e.AddToUnit(ctx, unitID, userIDs, RelationMember, m.WorkflowID, acting)
	case "addHead", "addHeads", "addHeadList":
		return e.AddToUnit(ctx, unitID, userIDs, RelationHead, m.WorkflowID, acting)
	case "addMemberIpn", "addMemberIpnList":
		return e.AddToUnit(ctx, unitID, ipns, RelationMemberIpn, m.WorkflowID, acting)
	case "addHeadIpn", "addHeadIpnList":
		return e.AddToUnit(ctx, unitID, ipns, RelationHeadIpn, m.WorkflowID, acting)
	case "removeMember", "removeMembers", "removeMemberList":
		return e.RemoveFromUnit(ctx, unitID, userIDs, RelationMember, m.WorkflowID, acting)
	case "removeHead", "removeHeads", "removeHeadList":
		return e.RemoveFromUnit(ctx, unitID, userIDs, RelationHead, m.WorkflowID, acting)
	case "removeMemberIpn", "removeMemberIpnList":
		return e.RemoveFromUnit(ctx, unitID, ipns, RelationMemberIpn, m.WorkflowID, acting)
	case "removeHeadIpn", "removeHeadIpnList":
		return e.RemoveFromUnit(ctx, unitID, ipns, RelationHeadIpn, m.WorkflowID, acting)
	case "removeMembersFromUnitsByIpn":
		unitIDs, err := e.evaluator.resolveStrings(section["unitIds"], docs, events)
		if err != nil {
			return nil, err
		}
		if unitID != "" {
			unitIDs = append(unitIDs, unitID)
		}
		return e.RemoveMembersFromUnitsByIpn(ctx, sets.Dedup(unitIDs), ipns, m.WorkflowID, acting)
	case "updateUser":
		data, _ := schemaSection(section, "data")
		if len(userIDs) != 1 {
			return nil, errors.Wrap(ErrUnknownOperation, "updateUser requires exactly one user id")
		}
		return e.UpdateUser(ctx, userIDs[0], data)
	default:
		return nil, errors.Wrap(ErrUnknownOperation, "", j.MKV{
			"event_type": EventTypeUnit.String(),
			"operation":  op,
		})
	}
}
