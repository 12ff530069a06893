package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"dcp/internal/anchor"
	"dcp/internal/audit"
	"dcp/internal/authz"
	"dcp/internal/credential/metrics"
	"dcp/internal/identity"
	"dcp/internal/template"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/sentinel"
	platformstrings "dcp/pkg/platform/strings"
	"dcp/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/service_mocks.go -package=mocks -exclude_interfaces=Store,Notifier,ArtifactRequester

// Store is the persistence contract the credential service needs. The store
// must serialize Execute calls per credential identifier.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	FindByID(ctx context.Context, credentialID id.CredentialID) (*Credential, error)
	FindByPublicID(ctx context.Context, publicID id.PublicCredentialID) (*Credential, error)
	List(ctx context.Context, filter ListFilter) ([]*Credential, error)
	Execute(ctx context.Context, credentialID id.CredentialID, validate func(*Credential) error, mutate func(*Credential) error) (*Credential, error)
}

// TemplateReader resolves the template a credential is issued against.
type TemplateReader interface {
	FindByID(ctx context.Context, templateID id.TemplateID) (*template.Template, error)
}

// RecipientResolver finds or lazily creates the recipient actor for an email.
type RecipientResolver interface {
	ResolveOrCreateRecipient(ctx context.Context, address, displayName string) (*identity.Actor, error)
}

// MembershipSource lists the organizations an actor belongs to, for scoping
// credential listings.
type MembershipSource interface {
	MemberOrgIDs(ctx context.Context, actorID id.ActorID) ([]id.OrgID, error)
}

// Anchorer submits content hashes to the ledger. Anchoring is best-effort;
// the service treats every Anchorer failure as advisory.
type Anchorer interface {
	Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error)
}

// Notifier informs a recipient that their credential was issued.
// Fire-and-forget; the service never consumes a return value.
type Notifier interface {
	CredentialIssued(ctx context.Context, c *Credential)
}

// ArtifactRequester asks the rendering collaborator for shareable files.
// Generation is asynchronous; results come back through AttachArtifact.
type ArtifactRequester interface {
	RequestArtifacts(ctx context.Context, c *Credential)
}

// Service owns the credential lifecycle. Every operation is permission-gated
// and every transition is serialized per credential by the store.
type Service struct {
	credentials Store
	templates   TemplateReader
	recipients  RecipientResolver
	memberships MembershipSource
	authorize   *authz.Evaluator

	verifyBaseURL string

	anchorer  Anchorer
	notifier  Notifier
	artifacts ArtifactRequester
	publisher audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAnchorer(a Anchorer) Option {
	return func(s *Service) { s.anchorer = a }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithArtifactRequester(a ArtifactRequester) Option {
	return func(s *Service) { s.artifacts = a }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(credentials Store, templates TemplateReader, recipients RecipientResolver, memberships MembershipSource, authorize *authz.Evaluator, verifyBaseURL string, opts ...Option) *Service {
	s := &Service{
		credentials:   credentials,
		templates:     templates,
		recipients:    recipients,
		memberships:   memberships,
		authorize:     authorize,
		verifyBaseURL: verifyBaseURL,
		tracer:        otel.Tracer("dcp/credential"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the caller-supplied portion of a new draft.
type CreateInput struct {
	TemplateID     id.TemplateID
	Title          string
	Description    string
	RecipientEmail string
	RecipientName  string
	CredentialData map[string]any
	ExpiresAt      *time.Time
	Public         bool
}

// Create builds a draft credential against a template. The recipient actor
// is created lazily when no actor with the given email exists.
func (s *Service) Create(ctx context.Context, actor *identity.Actor, in CreateInput) (*Credential, error) {
	ctx, span := s.tracer.Start(ctx, "credential.Create")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveCreate(time.Now())
	}

	tmpl, err := s.templates.FindByID(ctx, in.TemplateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "template not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load template")
	}
	if !tmpl.Issuable() {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot issue against an archived template")
	}
	if err := s.authorize.Require(ctx, actor, authz.OrgResource(tmpl.OrgID), authz.ActionIssue); err != nil {
		return nil, err
	}

	recipient, err := s.recipients.ResolveOrCreateRecipient(ctx, in.RecipientEmail, in.RecipientName)
	if err != nil {
		return nil, err
	}
	recipientName := in.RecipientName
	if recipientName == "" {
		recipientName = recipient.DisplayName()
	}

	now := requestcontext.Now(ctx)
	c, err := NewCredential(id.CredentialID(uuid.New()), CreateParams{
		OrgID:          tmpl.OrgID,
		TemplateID:     tmpl.ID,
		IssuerID:       actor.ID,
		RecipientID:    recipient.ID,
		RecipientName:  recipientName,
		RecipientEmail: in.RecipientEmail,
		Title:          in.Title,
		Description:    in.Description,
		CredentialData: in.CredentialData,
		ExpiresAt:      in.ExpiresAt,
		Public:         in.Public,
	}, s.verifyBaseURL, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.credentials.Create(ctx, c); err != nil {
		return nil, wrapCredentialErr(err, "failed to create credential")
	}

	span.SetAttributes(attribute.String("credential.public_id", string(c.PublicID)))
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.publish(ctx, audit.CredentialCreated, c, actor.ID, nil)
	return c, nil
}

// BulkResult reports the outcome of one item in a bulk create. Partial
// success is expected; callers receive one result per input in order.
type BulkResult struct {
	Index      int         `json:"index"`
	Credential *Credential `json:"credential,omitempty"`
	Err        error       `json:"-"`
}

const bulkCreateConcurrency = 8

// CreateBulk creates many drafts in parallel. Items fail independently; a
// bad row never aborts the batch.
func (s *Service) CreateBulk(ctx context.Context, actor *identity.Actor, inputs []CreateInput) []BulkResult {
	ctx, span := s.tracer.Start(ctx, "credential.CreateBulk",
		trace.WithAttributes(attribute.Int("credential.batch_size", len(inputs))))
	defer span.End()

	results := make([]BulkResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkCreateConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			c, err := s.Create(ctx, actor, in)
			results[i] = BulkResult{Index: i, Credential: c, Err: err}
			return nil
		})
	}
	// Workers never return errors; failures live in the per-item results.
	_ = g.Wait()
	return results
}

func (s *Service) Get(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID) (*Credential, error) {
	c, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	if err := s.authorize.Require(ctx, actor, resourceOf(c), authz.ActionRead); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByPublicID is the unauthenticated lookup behind verification links.
func (s *Service) GetByPublicID(ctx context.Context, publicID id.PublicCredentialID) (*Credential, error) {
	c, err := s.credentials.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	return c, nil
}

// List returns the credentials the actor may see: everything for SuperAdmin,
// and otherwise credentials they received, issued, or share an organization
// with.
// ListQuery narrows and pages a listing. Zero values mean "any" and
// "no paging".
type ListQuery struct {
	Status         Status
	RecipientEmail string
	Offset         int
	Limit          int
}

func (s *Service) List(ctx context.Context, actor *identity.Actor, query ListQuery) ([]*Credential, error) {
	if actor == nil || !actor.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "not permitted to list credentials")
	}
	base := ListFilter{Status: query.Status, RecipientEmail: query.RecipientEmail}

	scoped, err := s.listScoped(ctx, actor, base)
	if err != nil {
		return nil, err
	}
	return page(scoped, query.Offset, query.Limit), nil
}

func (s *Service) listScoped(ctx context.Context, actor *identity.Actor, base ListFilter) ([]*Credential, error) {
	if actor.Role == identity.RoleSuperAdmin {
		return s.list(ctx, base)
	}
	if actor.Role == identity.RoleRecipient {
		recipient := base
		recipient.RecipientID = actor.ID
		return s.list(ctx, recipient)
	}

	orgIDs, err := s.memberships.MemberOrgIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	asIssuer := base
	asIssuer.IssuerID = actor.ID
	if len(orgIDs) == 0 {
		return s.list(ctx, asIssuer)
	}
	byOrg := base
	byOrg.OrgIDs = orgIDs
	out, err := s.list(ctx, byOrg)
	if err != nil {
		return nil, err
	}
	// Credentials issued outside the actor's current organizations are still
	// theirs to see.
	issued, err := s.list(ctx, asIssuer)
	if err != nil {
		return nil, err
	}
	seen := make(map[id.CredentialID]struct{}, len(out))
	for _, c := range out {
		seen[c.ID] = struct{}{}
	}
	for _, c := range issued {
		if _, ok := seen[c.ID]; !ok {
			out = append(out, c)
		}
	}
	// The merge can interleave; restore newest-first before paging.
	sortNewestFirst(out)
	return out, nil
}

func page(in []*Credential, offset, limit int) []*Credential {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]*Credential, error) {
	out, err := s.credentials.List(ctx, filter)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to list credentials")
	}
	return out, nil
}

// Update edits a credential under the lifecycle's field rules. Post-issuance
// edits to canonical fields clear any existing anchor.
func (s *Service) Update(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID, p UpdateParams) (*Credential, error) {
	current, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	if err := s.authorize.Require(ctx, actor, resourceOf(current), authz.ActionWrite); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	c, err := s.credentials.Execute(ctx, credentialID,
		func(c *Credential) error { return nil },
		func(c *Credential) error { return c.ApplyUpdate(p, now) },
	)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to update credential")
	}
	s.publish(ctx, audit.CredentialUpdated, c, actor.ID, nil)
	return c, nil
}

// Issue moves a draft to Issued, stamps issued_at, computes the content hash
// and best-effort anchors it. Ledger failure degrades issuance to "issued
// without anchor"; it never rolls back the transition.
func (s *Service) Issue(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID) (*Credential, error) {
	ctx, span := s.tracer.Start(ctx, "credential.Issue")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveIssue(time.Now())
	}

	current, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	if err := s.authorize.Require(ctx, actor, resourceOf(current), authz.ActionWrite); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	c, err := s.credentials.Execute(ctx, credentialID,
		func(c *Credential) error { return c.CanIssue() },
		func(c *Credential) error {
			if err := c.ApplyIssue(now); err != nil {
				return err
			}
			c.ContentHash = anchor.ComputeHash(c.ContentSnapshot())
			return nil
		},
	)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to issue credential")
	}

	span.SetAttributes(attribute.String("credential.public_id", string(c.PublicID)))
	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}

	c = s.anchorIssued(ctx, c)

	if s.notifier != nil {
		s.notifier.CredentialIssued(ctx, c)
	}
	if s.artifacts != nil {
		s.artifacts.RequestArtifacts(ctx, c)
	}
	s.publish(ctx, audit.CredentialIssued, c, actor.ID, nil)
	return c, nil
}

// anchorIssued submits the freshly computed hash to the ledger. The round
// trip happens outside the row lock; only the resulting reference is written
// back.
func (s *Service) anchorIssued(ctx context.Context, c *Credential) *Credential {
	if s.anchorer == nil {
		return c
	}
	ref, err := s.anchorer.Anchor(ctx, c.ContentHash, c.PublicID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAnchorSkipped()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "issuance completed without anchor",
				"public_id", c.PublicID,
				"error", err,
			)
		}
		return c
	}
	updated, err := s.credentials.Execute(ctx, c.ID,
		func(c *Credential) error { return nil },
		func(c *Credential) error {
			// The content may have moved on while the ledger call was in
			// flight; a reference for a stale hash must not be recorded.
			if c.Status != StatusIssued || c.ContentHash == "" {
				return dErrors.New(dErrors.CodeConflict, "credential changed during anchoring")
			}
			c.AnchorTxRef = ref
			return nil
		},
	)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "anchor reference not recorded",
				"public_id", c.PublicID,
				"error", err,
			)
		}
		return c
	}
	return updated
}

// Revoke is irreversible. A non-empty reason is required and preserved for
// the audit trail.
func (s *Service) Revoke(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID, reason string) (*Credential, error) {
	ctx, span := s.tracer.Start(ctx, "credential.Revoke")
	defer span.End()

	current, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	if err := s.authorize.Require(ctx, actor, resourceOf(current), authz.ActionWrite); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	c, err := s.credentials.Execute(ctx, credentialID,
		func(c *Credential) error { return c.CanRevoke() },
		func(c *Credential) error { return c.ApplyRevoke(reason, now) },
	)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to revoke credential")
	}

	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	s.publish(ctx, audit.CredentialRevoked, c, actor.ID, map[string]string{"reason": c.RevocationReason})
	return c, nil
}

// AttachArtifact records a rendered file URL reported back by the artifact
// collaborator.
func (s *Service) AttachArtifact(ctx context.Context, credentialID id.CredentialID, url string) (*Credential, error) {
	if url == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "artifact URL is required")
	}
	now := requestcontext.Now(ctx)
	c, err := s.credentials.Execute(ctx, credentialID,
		func(c *Credential) error { return nil },
		func(c *Credential) error {
			c.ArtifactURLs = platformstrings.DedupeAndTrim(append(c.ArtifactURLs, url))
			c.UpdatedAt = now
			return nil
		},
	)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to attach artifact")
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, eventType audit.EventType, c *Credential, actorID id.ActorID, extra map[string]string) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(eventType),
			"credential_id", c.ID,
			"public_id", c.PublicID,
			"status", c.Status,
			"actor_id", actorID,
			"event", string(eventType),
			"log_type", "audit",
		)
	}
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, audit.Event{
		Type:       eventType,
		ActorID:    actorID.String(),
		SubjectID:  string(c.PublicID),
		OccurredAt: requestcontext.Now(ctx),
		Details:    extra,
	})
}

func resourceOf(c *Credential) authz.Resource {
	return authz.CredentialResource(c.OrgID, authz.CredentialRef{
		IssuerID:    c.IssuerID,
		RecipientID: c.RecipientID,
		Public:      c.Public,
	})
}

func wrapCredentialErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "credential conflict")
	default:
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
