package template

import (
	"context"
	"sync"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

// InMemoryStore keeps templates in process memory. Used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	templates map[id.TemplateID]*Template
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{templates: make(map[id.TemplateID]*Template)}
}

func (s *InMemoryStore) Create(ctx context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, templateID id.TemplateID) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Template
	for _, t := range s.templates {
		if t.OrgID == orgID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Execute runs validate then mutate on the template while holding the store
// lock, so status transitions on one template never interleave.
func (s *InMemoryStore) Execute(ctx context.Context, templateID id.TemplateID, validate func(*Template) error, mutate func(*Template) error) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	if err := validate(&cp); err != nil {
		return nil, err
	}
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	s.templates[templateID] = &cp
	result := cp
	return &result, nil
}
