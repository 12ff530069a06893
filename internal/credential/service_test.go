package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dcp/internal/anchor"
	"dcp/internal/authz"
	"dcp/internal/credential/mocks"
	"dcp/internal/identity"
	"dcp/internal/org"
	"dcp/internal/template"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/requestcontext"
)

type fakeNotifier struct {
	mu     sync.Mutex
	issued []id.PublicCredentialID
}

func (f *fakeNotifier) CredentialIssued(_ context.Context, c *Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, c.PublicID)
}

type fakeArtifacts struct {
	mu        sync.Mutex
	requested int
}

func (f *fakeArtifacts) RequestArtifacts(context.Context, *Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested++
}

type ServiceSuite struct {
	suite.Suite
	ctx  context.Context
	now  time.Time
	ctrl *gomock.Controller

	identities *identity.Service
	orgs       *org.Service
	templates  *template.InMemoryStore
	store      *InMemoryStore

	anchorer  *mocks.MockAnchorer
	notifier  *fakeNotifier
	artifacts *fakeArtifacts
	svc       *Service

	orgID  id.OrgID
	admin  *identity.Actor
	viewer *identity.Actor
	tmpl   *template.Template
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctrl = gomock.NewController(s.T())

	s.identities = identity.New(identity.NewInMemoryStore())
	s.orgs = org.New(org.NewInMemoryStore())
	s.templates = template.NewInMemoryStore()
	s.store = NewInMemoryStore()

	o, err := s.orgs.Create(s.ctx, "Acme University")
	s.Require().NoError(err)
	s.orgID = o.ID

	s.admin, err = s.identities.Register(s.ctx, "admin@acme.edu", "Ada", "Admin", "s3cret-pass", identity.RoleIssuerAdmin)
	s.Require().NoError(err)
	s.viewer, err = s.identities.Register(s.ctx, "viewer@acme.edu", "Vic", "Viewer", "s3cret-pass", identity.RoleVerifier)
	s.Require().NoError(err)

	_, err = s.orgs.AddMember(s.ctx, s.admin.ID, s.orgID, org.MembershipMember)
	s.Require().NoError(err)
	_, err = s.orgs.AddMember(s.ctx, s.viewer.ID, s.orgID, org.MembershipViewer)
	s.Require().NoError(err)

	s.tmpl, err = template.NewTemplate(id.TemplateID(uuid.New()), s.orgID, "Diploma", nil, s.admin.ID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.tmpl.ApplyActivate(s.now))
	s.Require().NoError(s.templates.Create(s.ctx, s.tmpl))

	s.anchorer = mocks.NewMockAnchorer(s.ctrl)
	s.notifier = &fakeNotifier{}
	s.artifacts = &fakeArtifacts{}
	s.svc = New(s.store, s.templates, s.identities, s.orgs,
		authz.NewEvaluator(s.orgs), "https://verify.example.com",
		WithAnchorer(s.anchorer),
		WithNotifier(s.notifier),
		WithArtifactRequester(s.artifacts),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) input() CreateInput {
	return CreateInput{
		TemplateID:     s.tmpl.ID,
		Title:          "Bachelor of Science",
		RecipientEmail: "jane.doe@example.com",
		RecipientName:  "Jane Doe",
		CredentialData: map[string]any{"honors": "cum laude"},
	}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("creates draft and recipient actor lazily", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)

		s.Equal(StatusDraft, c.Status)
		s.Equal(s.orgID, c.OrgID)
		s.Equal(s.admin.ID, c.IssuerID)
		s.Regexp(`^DCP-20260314-[0-9A-F]{8}$`, string(c.PublicID))
		s.Equal("https://verify.example.com/verify/"+string(c.PublicID), c.VerificationURL)

		recipient, err := s.identities.Get(s.ctx, c.RecipientID)
		s.Require().NoError(err)
		s.Equal(identity.RoleRecipient, recipient.Role)
		s.Equal("jane.doe@example.com", recipient.Email)
	})

	s.Run("reuses an existing recipient actor", func() {
		first, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		second, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		s.Equal(first.RecipientID, second.RecipientID)
	})

	s.Run("missing template not found", func() {
		in := s.input()
		in.TemplateID = id.TemplateID(uuid.New())
		_, err := s.svc.Create(s.ctx, s.admin, in)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("archived template conflicts", func() {
		archived, err := template.NewTemplate(id.TemplateID(uuid.New()), s.orgID, "Old", nil, s.admin.ID, s.now)
		s.Require().NoError(err)
		s.Require().NoError(archived.ApplyArchive(s.now))
		s.Require().NoError(s.templates.Create(s.ctx, archived))

		in := s.input()
		in.TemplateID = archived.ID
		_, err = s.svc.Create(s.ctx, s.admin, in)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("member without issuer admin role denied", func() {
		_, err := s.svc.Create(s.ctx, s.viewer, s.input())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("issuer admin outside the organization denied", func() {
		outsider, err := s.identities.Register(s.ctx, "out@other.edu", "Out", "Sider", "s3cret-pass", identity.RoleIssuerAdmin)
		s.Require().NoError(err)
		_, err = s.svc.Create(s.ctx, outsider, s.input())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid recipient email rejected", func() {
		in := s.input()
		in.RecipientEmail = "not-an-email"
		_, err := s.svc.Create(s.ctx, s.admin, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestIssue() {
	s.Run("sets issued_at, hash and anchor reference", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)

		s.anchorer.EXPECT().
			Anchor(gomock.Any(), gomock.Any(), c.PublicID).
			Return("0xabc123", nil)

		issued, err := s.svc.Issue(s.ctx, s.admin, c.ID)
		s.Require().NoError(err)

		s.Equal(StatusIssued, issued.Status)
		s.Require().NotNil(issued.IssuedAt)
		s.Equal(s.now, *issued.IssuedAt)
		s.Equal(anchor.ComputeHash(issued.ContentSnapshot()), issued.ContentHash)
		s.Equal("0xabc123", issued.AnchorTxRef)
		s.Contains(s.notifier.issued, issued.PublicID)
		s.Equal(1, s.artifacts.requested)

		stored, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("0xabc123", stored.AnchorTxRef)
	})

	s.Run("re-issuing conflicts", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		s.anchorer.EXPECT().Anchor(gomock.Any(), gomock.Any(), c.PublicID).Return("0xabc123", nil)
		_, err = s.svc.Issue(s.ctx, s.admin, c.ID)
		s.Require().NoError(err)

		_, err = s.svc.Issue(s.ctx, s.admin, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("ledger failure degrades to issued without anchor", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		s.anchorer.EXPECT().
			Anchor(gomock.Any(), gomock.Any(), c.PublicID).
			Return("", dErrors.New(dErrors.CodeUnavailable, "ledger timeout"))

		issued, err := s.svc.Issue(s.ctx, s.admin, c.ID)
		s.Require().NoError(err)
		s.Equal(StatusIssued, issued.Status)
		s.NotEmpty(issued.ContentHash)
		s.Empty(issued.AnchorTxRef)
		s.Contains(s.notifier.issued, issued.PublicID)
	})

	s.Run("recipient cannot issue", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		recipient, err := s.identities.Get(s.ctx, c.RecipientID)
		s.Require().NoError(err)

		_, err = s.svc.Issue(s.ctx, recipient, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) issued() *Credential {
	c, err := s.svc.Create(s.ctx, s.admin, s.input())
	s.Require().NoError(err)
	s.anchorer.EXPECT().Anchor(gomock.Any(), gomock.Any(), c.PublicID).Return("0xabc123", nil)
	issued, err := s.svc.Issue(s.ctx, s.admin, c.ID)
	s.Require().NoError(err)
	return issued
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("revokes with reason", func() {
		c := s.issued()
		revoked, err := s.svc.Revoke(s.ctx, s.admin, c.ID, "policy violation")
		s.Require().NoError(err)
		s.Equal(StatusRevoked, revoked.Status)
		s.Equal("policy violation", revoked.RevocationReason)
		s.NotNil(revoked.RevokedAt)
	})

	s.Run("revoking twice conflicts", func() {
		c := s.issued()
		_, err := s.svc.Revoke(s.ctx, s.admin, c.ID, "policy violation")
		s.Require().NoError(err)
		_, err = s.svc.Revoke(s.ctx, s.admin, c.ID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reason is required", func() {
		c := s.issued()
		_, err := s.svc.Revoke(s.ctx, s.admin, c.ID, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("draft cannot be revoked", func() {
		c, err := s.svc.Create(s.ctx, s.admin, s.input())
		s.Require().NoError(err)
		_, err = s.svc.Revoke(s.ctx, s.admin, c.ID, "reason")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestUpdate() {
	str := func(v string) *string { return &v }

	s.Run("post-issuance title edit clears the anchor", func() {
		c := s.issued()
		s.NotEmpty(c.ContentHash)

		updated, err := s.svc.Update(s.ctx, s.admin, c.ID, UpdateParams{Title: str("Renamed Degree")})
		s.Require().NoError(err)
		s.Empty(updated.ContentHash)
		s.Empty(updated.AnchorTxRef)
	})

	s.Run("recipient cannot edit", func() {
		c := s.issued()
		recipient, err := s.identities.Get(s.ctx, c.RecipientID)
		s.Require().NoError(err)
		_, err = s.svc.Update(s.ctx, recipient, c.ID, UpdateParams{Title: str("Mine Now")})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestGetAndList() {
	c := s.issued()
	recipient, err := s.identities.Get(s.ctx, c.RecipientID)
	s.Require().NoError(err)

	s.Run("recipient reads own credential", func() {
		got, err := s.svc.Get(s.ctx, recipient, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})

	s.Run("stranger denied private read", func() {
		stranger, err := s.identities.Register(s.ctx, "someone@else.org", "Some", "One", "s3cret-pass", identity.RoleVerifier)
		s.Require().NoError(err)
		_, err = s.svc.Get(s.ctx, stranger, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("public credential readable by anyone", func() {
		pub := true
		_, err := s.svc.Update(s.ctx, s.admin, c.ID, UpdateParams{Public: &pub})
		s.Require().NoError(err)

		stranger, err := s.identities.Register(s.ctx, "passerby@else.org", "Passer", "By", "s3cret-pass", identity.RoleVerifier)
		s.Require().NoError(err)
		got, err := s.svc.Get(s.ctx, stranger, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})

	s.Run("recipient lists only own credentials", func() {
		out, err := s.svc.List(s.ctx, recipient, ListQuery{})
		s.Require().NoError(err)
		for _, got := range out {
			s.Equal(recipient.ID, got.RecipientID)
		}
		s.NotEmpty(out)
	})

	s.Run("member lists organization credentials", func() {
		out, err := s.svc.List(s.ctx, s.viewer, ListQuery{})
		s.Require().NoError(err)
		s.NotEmpty(out)
		for _, got := range out {
			s.Equal(s.orgID, got.OrgID)
		}
	})

	s.Run("super admin lists everything", func() {
		root, err := s.identities.Register(s.ctx, "root@dcp.example", "Root", "Admin", "s3cret-pass", identity.RoleSuperAdmin)
		s.Require().NoError(err)
		out, err := s.svc.List(s.ctx, root, ListQuery{})
		s.Require().NoError(err)
		s.NotEmpty(out)
	})

	s.Run("recipient email substring filter", func() {
		out, err := s.svc.List(s.ctx, s.admin, ListQuery{RecipientEmail: "JANE.DOE"})
		s.Require().NoError(err)
		s.NotEmpty(out)
		for _, got := range out {
			s.Contains(got.RecipientEmail, "jane.doe")
		}

		none, err := s.svc.List(s.ctx, s.admin, ListQuery{RecipientEmail: "nobody@nowhere"})
		s.Require().NoError(err)
		s.Empty(none)
	})

	s.Run("offset and limit page the listing", func() {
		other := s.input()
		other.RecipientEmail = "john.roe@example.com"
		other.RecipientName = "John Roe"
		_, err := s.svc.Create(s.ctx, s.admin, other)
		s.Require().NoError(err)

		all, err := s.svc.List(s.ctx, s.admin, ListQuery{})
		s.Require().NoError(err)
		s.Require().Greater(len(all), 1)

		firstPage, err := s.svc.List(s.ctx, s.admin, ListQuery{Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(firstPage, 1)
		s.Equal(all[0].ID, firstPage[0].ID)

		secondPage, err := s.svc.List(s.ctx, s.admin, ListQuery{Offset: 1, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(secondPage, 1)
		s.Equal(all[1].ID, secondPage[0].ID)

		past, err := s.svc.List(s.ctx, s.admin, ListQuery{Offset: len(all)})
		s.Require().NoError(err)
		s.Empty(past)
	})
}

func (s *ServiceSuite) TestCreateBulk() {
	good := s.input()
	bad := s.input()
	bad.Title = ""
	alsoGood := s.input()
	alsoGood.RecipientEmail = "other.recipient@example.com"

	results := s.svc.CreateBulk(s.ctx, s.admin, []CreateInput{good, bad, alsoGood})
	s.Require().Len(results, 3)

	s.NoError(results[0].Err)
	s.NotNil(results[0].Credential)

	s.True(dErrors.HasCode(results[1].Err, dErrors.CodeValidation))
	s.Nil(results[1].Credential)

	s.NoError(results[2].Err)
	s.NotNil(results[2].Credential)
}

func (s *ServiceSuite) TestAttachArtifact() {
	c := s.issued()

	got, err := s.svc.AttachArtifact(s.ctx, c.ID, "https://cdn.example.com/certs/a.pdf")
	s.Require().NoError(err)
	s.Equal([]string{"https://cdn.example.com/certs/a.pdf"}, got.ArtifactURLs)

	// Re-attaching the same URL is idempotent.
	got, err = s.svc.AttachArtifact(s.ctx, c.ID, "https://cdn.example.com/certs/a.pdf")
	s.Require().NoError(err)
	s.Len(got.ArtifactURLs, 1)
}
