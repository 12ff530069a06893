//go:build integration

package credential_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dcp/internal/credential"
	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
	"dcp/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *credential.PostgresStore

	orgID       id.OrgID
	templateID  id.TemplateID
	issuerID    id.ActorID
	recipientID id.ActorID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = credential.NewPostgresStore(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx,
		"credential_verifications", "credentials", "credential_templates",
		"organization_members", "organizations", "actors")
	s.Require().NoError(err)

	s.orgID = id.OrgID(uuid.New())
	s.templateID = id.TemplateID(uuid.New())
	s.issuerID = id.ActorID(uuid.New())
	s.recipientID = id.ActorID(uuid.New())
	s.seedReferences(ctx)
}

// seedReferences satisfies the foreign keys a credential row points at.
func (s *PostgresStoreSuite) seedReferences(ctx context.Context) {
	now := time.Now().UTC()

	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, verified, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)`,
		uuid.UUID(s.orgID), "Acme Institute "+uuid.NewString(), "acme-"+uuid.NewString(), now)
	s.Require().NoError(err)

	for _, actor := range []struct {
		id   id.ActorID
		role string
	}{
		{s.issuerID, "issuer_admin"},
		{s.recipientID, "recipient"},
	} {
		_, err := s.postgres.DB.ExecContext(ctx, `
			INSERT INTO actors (id, email, first_name, last_name, role, active, password_hash, created_at, updated_at)
			VALUES ($1, $2, 'Test', 'Actor', $3, TRUE, '', $4, $4)`,
			uuid.UUID(actor.id), uuid.NewString()+"@example.com", actor.role, now)
		s.Require().NoError(err)
	}

	_, err = s.postgres.DB.ExecContext(ctx, `
		INSERT INTO credential_templates (id, organization_id, name, design, status, created_by, created_at, updated_at)
		VALUES ($1, $2, 'Diploma', '{}', 'active', $3, $4, $4)`,
		uuid.UUID(s.templateID), uuid.UUID(s.orgID), uuid.UUID(s.issuerID), now)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newDraft() *credential.Credential {
	now := time.Now().UTC().Truncate(time.Microsecond)
	publicID, err := id.NewPublicCredentialID(now)
	s.Require().NoError(err)

	return &credential.Credential{
		ID:             id.CredentialID(uuid.New()),
		PublicID:       publicID,
		Title:          "Bachelor of Science",
		Description:    "Completed with honors",
		OrgID:          s.orgID,
		TemplateID:     s.templateID,
		IssuerID:       s.issuerID,
		RecipientID:    s.recipientID,
		RecipientName:  "Jane Doe",
		RecipientEmail: "jane.doe@example.com",
		CredentialData: map[string]any{"gpa": "3.9", "major": "Physics"},
		Status:         credential.StatusDraft,
		ArtifactURLs:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundtrip() {
	ctx := context.Background()
	draft := s.newDraft()
	draft.ArtifactURLs = []string{"https://cdn.example.com/badge.png"}

	s.Require().NoError(s.store.Create(ctx, draft))

	got, err := s.store.FindByID(ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(draft.PublicID, got.PublicID)
	s.Equal(draft.Title, got.Title)
	s.Equal(credential.StatusDraft, got.Status)
	s.Equal(map[string]any{"gpa": "3.9", "major": "Physics"}, got.CredentialData)
	s.Equal([]string{"https://cdn.example.com/badge.png"}, got.ArtifactURLs)
	s.Nil(got.IssuedAt)

	byPublic, err := s.store.FindByPublicID(ctx, draft.PublicID)
	s.Require().NoError(err)
	s.Equal(draft.ID, byPublic.ID)
}

func (s *PostgresStoreSuite) TestFindMissingReturnsNotFound() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, id.CredentialID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByPublicID(ctx, "DCP-20260314-FFFFFFFF")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicatePublicIDConflict() {
	ctx := context.Background()
	first := s.newDraft()
	s.Require().NoError(s.store.Create(ctx, first))

	second := s.newDraft()
	second.PublicID = first.PublicID

	err := s.store.Create(ctx, second)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

// TestConcurrentIssueSerializes verifies the row lock in Execute: many
// goroutines race to issue the same draft and exactly one transition wins.
func (s *PostgresStoreSuite) TestConcurrentIssueSerializes() {
	ctx := context.Background()
	draft := s.newDraft()
	s.Require().NoError(s.store.Create(ctx, draft))

	const goroutines = 20
	var (
		wg            sync.WaitGroup
		successCount  atomic.Int32
		rejectedCount atomic.Int32
	)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, draft.ID,
				func(c *credential.Credential) error {
					if c.Status != credential.StatusDraft {
						return errors.New("already issued")
					}
					return nil
				},
				func(c *credential.Credential) error {
					now := time.Now().UTC()
					c.Status = credential.StatusIssued
					c.IssuedAt = &now
					c.UpdatedAt = now
					return nil
				})
			if err != nil {
				rejectedCount.Add(1)
				return
			}
			successCount.Add(1)
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), rejectedCount.Load())

	got, err := s.store.FindByID(ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(credential.StatusIssued, got.Status)
	s.NotNil(got.IssuedAt)
}

func (s *PostgresStoreSuite) TestExecuteDiscardsFailedMutation() {
	ctx := context.Background()
	draft := s.newDraft()
	s.Require().NoError(s.store.Create(ctx, draft))

	_, err := s.store.Execute(ctx, draft.ID,
		func(*credential.Credential) error { return nil },
		func(c *credential.Credential) error {
			c.Status = credential.StatusRevoked
			return errors.New("mutation failed")
		})
	s.Require().Error(err)

	got, err := s.store.FindByID(ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(credential.StatusDraft, got.Status)
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()

	issued := s.newDraft()
	issuedAt := time.Now().UTC()
	issued.Status = credential.StatusIssued
	issued.IssuedAt = &issuedAt
	s.Require().NoError(s.store.Create(ctx, issued))

	draft := s.newDraft()
	s.Require().NoError(s.store.Create(ctx, draft))

	all, err := s.store.List(ctx, credential.ListFilter{OrgIDs: []id.OrgID{s.orgID}})
	s.Require().NoError(err)
	s.Len(all, 2)

	issuedOnly, err := s.store.List(ctx, credential.ListFilter{
		OrgIDs: []id.OrgID{s.orgID},
		Status: credential.StatusIssued,
	})
	s.Require().NoError(err)
	s.Require().Len(issuedOnly, 1)
	s.Equal(issued.ID, issuedOnly[0].ID)

	otherOrg, err := s.store.List(ctx, credential.ListFilter{OrgIDs: []id.OrgID{id.OrgID(uuid.New())}})
	s.Require().NoError(err)
	s.Empty(otherOrg)

	byRecipient, err := s.store.List(ctx, credential.ListFilter{RecipientID: s.recipientID})
	s.Require().NoError(err)
	s.Len(byRecipient, 2)

	byEmail, err := s.store.List(ctx, credential.ListFilter{RecipientEmail: "JANE.DOE"})
	s.Require().NoError(err)
	s.Len(byEmail, 2)

	noEmail, err := s.store.List(ctx, credential.ListFilter{RecipientEmail: "nobody"})
	s.Require().NoError(err)
	s.Empty(noEmail)
}
