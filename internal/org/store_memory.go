package org

import (
	"context"
	"fmt"
	"strings"
	"sync"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

type membershipKey struct {
	actorID id.ActorID
	orgID   id.OrgID
}

// InMemoryStore keeps organizations and memberships in mutex-guarded maps.
type InMemoryStore struct {
	mu          sync.RWMutex
	orgs        map[id.OrgID]*Organization
	memberships map[membershipKey]*Membership
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orgs:        make(map[id.OrgID]*Organization),
		memberships: make(map[membershipKey]*Membership),
	}
}

func (s *InMemoryStore) CreateIfNameAvailable(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if strings.EqualFold(existing.Name, o.Name) {
			return fmt.Errorf("organization name taken: %w", sentinel.ErrConflict)
		}
	}
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrgID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID]; !ok {
		return fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
	}
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

// UpsertMembership enforces the one-row-per-(actor, organization) invariant
// by replacing any existing membership for the pair.
func (s *InMemoryStore) UpsertMembership(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[m.OrgID]; !ok {
		return fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
	}
	cp := *m
	s.memberships[membershipKey{m.ActorID, m.OrgID}] = &cp
	return nil
}

func (s *InMemoryStore) FindMembership(_ context.Context, actorID id.ActorID, orgID id.OrgID) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{actorID, orgID}]
	if !ok {
		return nil, fmt.Errorf("membership not found: %w", sentinel.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) ListMemberOrgIDs(_ context.Context, actorID id.ActorID) ([]id.OrgID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []id.OrgID
	for key := range s.memberships {
		if key.actorID == actorID {
			ids = append(ids, key.orgID)
		}
	}
	return ids, nil
}
