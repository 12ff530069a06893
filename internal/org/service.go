package org

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/sentinel"
	"dcp/pkg/requestcontext"
)

// Store is the persistence contract the org service needs.
type Store interface {
	CreateIfNameAvailable(ctx context.Context, o *Organization) error
	FindByID(ctx context.Context, orgID id.OrgID) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	UpsertMembership(ctx context.Context, m *Membership) error
	FindMembership(ctx context.Context, actorID id.ActorID, orgID id.OrgID) (*Membership, error)
	ListMemberOrgIDs(ctx context.Context, actorID id.ActorID) ([]id.OrgID, error)
}

// Service orchestrates organization lifecycle and membership management.
type Service struct {
	orgs   Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(orgs Store, opts ...Option) *Service {
	s := &Service{orgs: orgs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, name string) (*Organization, error) {
	o, err := NewOrganization(id.OrgID(uuid.New()), name, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.orgs.CreateIfNameAvailable(ctx, o); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "organization created",
			"organization_id", o.ID,
			"event", "org.created",
			"log_type", "audit",
		)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, orgID id.OrgID) (*Organization, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization ID is required")
	}
	o, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organization")
	}
	return o, nil
}

// AddMember grants or updates an actor's membership. Upsert keeps the
// one-membership-per-pair invariant without a separate update path.
func (s *Service) AddMember(ctx context.Context, actorID id.ActorID, orgID id.OrgID, role MembershipRole) (*Membership, error) {
	if actorID.IsNil() || orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor and organization IDs are required")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown membership role")
	}
	m := &Membership{
		ActorID:  actorID,
		OrgID:    orgID,
		Role:     role,
		JoinedAt: requestcontext.Now(ctx),
	}
	if err := s.orgs.UpsertMembership(ctx, m); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add member")
	}
	return m, nil
}

// MembershipOf returns the actor's membership in the organization, or nil
// when none exists. Absence is a normal answer here, not an error, because
// the permission evaluator treats it as "deny" rather than a failure.
func (s *Service) MembershipOf(ctx context.Context, actorID id.ActorID, orgID id.OrgID) (*Membership, error) {
	m, err := s.orgs.FindMembership(ctx, actorID, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return m, nil
}

// MemberOrgIDs lists organizations the actor belongs to; used for scoping
// credential listings.
func (s *Service) MemberOrgIDs(ctx context.Context, actorID id.ActorID) ([]id.OrgID, error) {
	ids, err := s.orgs.ListMemberOrgIDs(ctx, actorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list memberships")
	}
	return ids, nil
}

// MarkVerified flags the organization as verified by platform staff.
func (s *Service) MarkVerified(ctx context.Context, orgID id.OrgID) (*Organization, error) {
	o, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	o.Verified = true
	o.UpdatedAt = requestcontext.Now(ctx)
	if err := s.orgs.Update(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update organization")
	}
	return o, nil
}
