package identity

import (
	"context"
	"fmt"
	"sync"

	id "dcp/pkg/domain"
	"dcp/pkg/email"
	"dcp/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return ErrConflict when a uniqueness constraint is violated
// - Return nil for successful operations

// InMemoryStore keeps actors in a mutex-guarded map for tests and dev mode.
type InMemoryStore struct {
	mu      sync.RWMutex
	actors  map[id.ActorID]*Actor
	byEmail map[string]id.ActorID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		actors:  make(map[id.ActorID]*Actor),
		byEmail: make(map[string]id.ActorID),
	}
}

func (s *InMemoryStore) CreateIfEmailAvailable(_ context.Context, actor *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := email.Normalize(actor.Email)
	if _, exists := s.byEmail[key]; exists {
		return fmt.Errorf("actor email taken: %w", sentinel.ErrConflict)
	}
	cp := *actor
	s.actors[actor.ID] = &cp
	s.byEmail[key] = actor.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, actorID id.ActorID) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
	}
	cp := *actor
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, address string) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actorID, ok := s.byEmail[email.Normalize(address)]
	if !ok {
		return nil, fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
	}
	cp := *s.actors[actorID]
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, actor *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[actor.ID]; !ok {
		return fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
	}
	cp := *actor
	s.actors[actor.ID] = &cp
	return nil
}

// Execute runs validate then mutate on the actor while holding the store
// lock, then persists the result. Mirrors the credential store contract so
// role changes and disables serialize per actor.
func (s *InMemoryStore) Execute(_ context.Context, actorID id.ActorID, validate func(*Actor) error, mutate func(*Actor)) (*Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(actor); err != nil {
		return nil, err
	}
	mutate(actor)
	cp := *actor
	return &cp, nil
}
