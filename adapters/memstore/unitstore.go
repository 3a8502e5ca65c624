package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openbp/engine"
	"github.com/openbp/engine/internal/sets"
)

// UnitStore is an in-memory engine.UnitStore.
type UnitStore struct {
	mu    sync.Mutex
	units map[string]*engine.Unit
}

var _ engine.UnitStore = (*UnitStore)(nil)

func NewUnitStore() *UnitStore {
	return &UnitStore{units: make(map[string]*engine.Unit)}
}

func (s *UnitStore) Create(ctx context.Context, unit *engine.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}

	clone := cloneUnit(unit)
	s.units[unit.ID] = clone
	return nil
}

func (s *UnitStore) Lookup(ctx context.Context, id string) (*engine.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[id]
	if !ok {
		return nil, engine.ErrUnitNotFound
	}

	return cloneUnit(unit), nil
}

func (s *UnitStore) Update(ctx context.Context, unit *engine.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.units[unit.ID]; !ok {
		return engine.ErrUnitNotFound
	}

	s.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (s *UnitStore) AddMember(ctx context.Context, unitID, userID string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.Members = sets.Union(u.Members, []string{userID})
	})
}

func (s *UnitStore) RemoveMember(ctx context.Context, unitID, userID string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.Members = sets.Diff(u.Members, []string{userID})
	})
}

func (s *UnitStore) AddHead(ctx context.Context, unitID, userID string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.Heads = sets.Union(u.Heads, []string{userID})
	})
}

func (s *UnitStore) RemoveHead(ctx context.Context, unitID, userID string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.Heads = sets.Diff(u.Heads, []string{userID})
	})
}

func (s *UnitStore) AddMemberIpn(ctx context.Context, unitID, ipn string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.MembersIpn = sets.Union(u.MembersIpn, []string{ipn})
	})
}

func (s *UnitStore) RemoveMemberIpn(ctx context.Context, unitID, ipn string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.MembersIpn = sets.Diff(u.MembersIpn, []string{ipn})
	})
}

func (s *UnitStore) AddHeadIpn(ctx context.Context, unitID, ipn string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.HeadsIpn = sets.Union(u.HeadsIpn, []string{ipn})
	})
}

func (s *UnitStore) RemoveHeadIpn(ctx context.Context, unitID, ipn string) error {
	return s.mutate(unitID, func(u *engine.Unit) {
		u.HeadsIpn = sets.Diff(u.HeadsIpn, []string{ipn})
	})
}

func (s *UnitStore) mutate(unitID string, fn func(u *engine.Unit)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		return engine.ErrUnitNotFound
	}

	fn(unit)
	return nil
}

func cloneUnit(u *engine.Unit) *engine.Unit {
	clone := *u
	clone.Heads = append([]string{}, u.Heads...)
	clone.Members = append([]string{}, u.Members...)
	clone.HeadsIpn = append([]string{}, u.HeadsIpn...)
	clone.MembersIpn = append([]string{}, u.MembersIpn...)
	clone.BasedOn = append([]string{}, u.BasedOn...)
	clone.RequestedMembers = append([]string{}, u.RequestedMembers...)
	return &clone
}
