package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dcp/internal/anchor"
	"dcp/internal/audit"
	"dcp/internal/credential"
	"dcp/internal/verification/metrics"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/requestcontext"
)

// CredentialSource resolves credentials by their public identifier.
type CredentialSource interface {
	GetByPublicID(ctx context.Context, publicID id.PublicCredentialID) (*credential.Credential, error)
}

// AnchorVerifier compares a digest against the ledger's stored one.
type AnchorVerifier interface {
	VerifyAnchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (anchor.VerifyResult, error)
}

// Store persists the append-only audit trail.
type Store interface {
	Append(ctx context.Context, r Record) error
	ListByPublicID(ctx context.Context, publicID id.PublicCredentialID) ([]Record, error)
}

// Service is the externally facing trust decision. Verify never mutates
// credential state and appends an audit record on every call, hits and
// misses alike.
type Service struct {
	credentials CredentialSource
	anchors     AnchorVerifier
	records     Store

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

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(credentials CredentialSource, anchors AnchorVerifier, records Store, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		anchors:     anchors,
		records:     records,
		tracer:      otel.Tracer("dcp/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify decides the credential's current validity. Decision order: absent
// is Invalid, Revoked wins, then expiry, then anchor mismatch downgrades to
// Invalid. Ledger unavailability degrades to a lifecycle-only Valid with the
// AnchorCheckSkipped advisory rather than failing the caller.
func (s *Service) Verify(ctx context.Context, publicID id.PublicCredentialID, vctx Context) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify",
		trace.WithAttributes(attribute.String("credential.public_id", string(publicID))))
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveVerify(time.Now())
	}

	now := requestcontext.Now(ctx)
	method := vctx.Method
	if !method.Valid() {
		method = MethodAPI
	}

	c, err := s.credentials.GetByPublicID(ctx, publicID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		result := &Result{Outcome: OutcomeInvalid, PublicID: publicID, VerifiedAt: now}
		s.record(ctx, nil, publicID, result, method, vctx)
		return result, nil
	}

	result := &Result{
		PublicID:      publicID,
		Title:         c.Title,
		RecipientName: c.RecipientName,
		IssuedAt:      c.IssuedAt,
		ExpiresAt:     c.ExpiresAt,
		ContentHash:   c.ContentHash,
		AnchorTxRef:   c.AnchorTxRef,
		VerifiedAt:    now,
	}

	switch c.EffectiveStatus(now) {
	case credential.StatusRevoked:
		result.Outcome = OutcomeRevoked
		result.RevocationReason = c.RevocationReason
	case credential.StatusExpired:
		result.Outcome = OutcomeExpired
	case credential.StatusIssued:
		result.Outcome = OutcomeValid
		s.checkAnchor(ctx, c, result)
	default:
		// Drafts are not yet verifiable.
		result.Outcome = OutcomeInvalid
	}

	s.record(ctx, c, publicID, result, method, vctx)
	return result, nil
}

// checkAnchor downgrades a lifecycle-Valid result when the anchored digest
// does not match the credential's current content.
func (s *Service) checkAnchor(ctx context.Context, c *credential.Credential, result *Result) {
	if c.AnchorTxRef == "" || c.ContentHash == "" {
		return
	}
	digest := anchor.ComputeHash(c.ContentSnapshot())
	res, err := s.anchors.VerifyAnchor(ctx, digest, c.PublicID)
	if err != nil {
		result.AnchorCheckSkipped = true
		if s.metrics != nil {
			s.metrics.IncrementAnchorSkipped()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "anchor check skipped",
				"public_id", c.PublicID,
				"error", err,
			)
		}
		return
	}
	matched := res.Matched
	result.AnchorMatched = &matched
	if !matched {
		result.Outcome = OutcomeInvalid
	}
}

// record appends the audit row. Verification never fails silently: append
// errors are logged loudly, but the trust decision already made is returned.
func (s *Service) record(ctx context.Context, c *credential.Credential, publicID id.PublicCredentialID, result *Result, method Method, vctx Context) {
	browser, platform := parseAgent(vctx.UserAgent)
	r := Record{
		ID:                 id.VerificationID(uuid.New()),
		PublicID:           publicID,
		Outcome:            result.Outcome,
		Method:             method,
		ClientIP:           vctx.ClientIP,
		UserAgent:          vctx.UserAgent,
		Browser:            browser,
		Platform:           platform,
		AnchorCheckSkipped: result.AnchorCheckSkipped,
		VerifiedAt:         result.VerifiedAt,
	}
	if c != nil {
		cid := c.ID
		r.CredentialID = &cid
	}
	if err := s.records.Append(ctx, r); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "verification audit append failed",
			"public_id", publicID,
			"outcome", result.Outcome,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementOutcome(string(result.Outcome))
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, audit.Event{
			Type:       audit.CredentialVerified,
			SubjectID:  string(publicID),
			OccurredAt: result.VerifiedAt,
			Details: map[string]string{
				"outcome": string(result.Outcome),
				"method":  string(method),
			},
		})
	}
}

// History lists the audit trail for one credential, oldest first.
func (s *Service) History(ctx context.Context, publicID id.PublicCredentialID) ([]Record, error) {
	records, err := s.records.ListByPublicID(ctx, publicID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification history")
	}
	return records, nil
}
