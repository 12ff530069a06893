package verification

import (
	"context"
	"sync"

	id "dcp/pkg/domain"
)

// InMemoryStore keeps verification records in process memory, oldest first.
type InMemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *InMemoryStore) ListByPublicID(ctx context.Context, publicID id.PublicCredentialID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.PublicID == publicID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountByOutcome(ctx context.Context, publicID id.PublicCredentialID) (map[Outcome]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Outcome]int)
	for _, r := range s.records {
		if r.PublicID == publicID {
			out[r.Outcome]++
		}
	}
	return out, nil
}
