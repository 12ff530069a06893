package credential

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

// ListFilter narrows credential listings. Zero values mean "any".
type ListFilter struct {
	OrgIDs         []id.OrgID
	IssuerID       id.ActorID
	RecipientID    id.ActorID
	Status         Status
	RecipientEmail string
}

func (f ListFilter) matches(c *Credential) bool {
	if len(f.OrgIDs) > 0 {
		found := false
		for _, orgID := range f.OrgIDs {
			if c.OrgID == orgID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.IssuerID.IsNil() && c.IssuerID != f.IssuerID {
		return false
	}
	if !f.RecipientID.IsNil() && c.RecipientID != f.RecipientID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.RecipientEmail != "" &&
		!strings.Contains(strings.ToLower(c.RecipientEmail), strings.ToLower(f.RecipientEmail)) {
		return false
	}
	return true
}

// InMemoryStore keeps credentials in process memory. Used in tests and when
// no database is configured.
type InMemoryStore struct {
	mu          sync.Mutex
	credentials map[id.CredentialID]*Credential
	byPublicID  map[id.PublicCredentialID]id.CredentialID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credentials: make(map[id.CredentialID]*Credential),
		byPublicID:  make(map[id.PublicCredentialID]id.CredentialID),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byPublicID[c.PublicID]; ok {
		return sentinel.ErrConflict
	}
	cp := clone(c)
	s.credentials[c.ID] = cp
	s.byPublicID[c.PublicID] = c.ID
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) FindByPublicID(ctx context.Context, publicID id.PublicCredentialID) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credentialID, ok := s.byPublicID[publicID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.credentials[credentialID]), nil
}

func (s *InMemoryStore) List(ctx context.Context, filter ListFilter) ([]*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Credential
	for _, c := range s.credentials {
		if filter.matches(c) {
			out = append(out, clone(c))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders newest first with the ID as a tie break so
// paged listings are stable.
func sortNewestFirst(out []*Credential) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

// Execute runs validate then mutate while holding the store lock, so at most
// one lifecycle transition applies at a time per credential.
func (s *InMemoryStore) Execute(ctx context.Context, credentialID id.CredentialID, validate func(*Credential) error, mutate func(*Credential) error) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := clone(c)
	if err := validate(cp); err != nil {
		return nil, err
	}
	if err := mutate(cp); err != nil {
		return nil, err
	}
	s.credentials[credentialID] = cp
	return clone(cp), nil
}

func clone(c *Credential) *Credential {
	cp := *c
	if c.CredentialData != nil {
		cp.CredentialData = make(map[string]any, len(c.CredentialData))
		for k, v := range c.CredentialData {
			cp.CredentialData[k] = v
		}
	}
	if c.ArtifactURLs != nil {
		cp.ArtifactURLs = append([]string(nil), c.ArtifactURLs...)
	}
	return &cp
}
