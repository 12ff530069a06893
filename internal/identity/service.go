package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	pkgemail "dcp/pkg/email"
	"dcp/pkg/platform/sentinel"
	"dcp/pkg/requestcontext"
	"dcp/pkg/secrets"
)

// Store is the persistence contract the identity service needs.
type Store interface {
	CreateIfEmailAvailable(ctx context.Context, actor *Actor) error
	FindByID(ctx context.Context, actorID id.ActorID) (*Actor, error)
	FindByEmail(ctx context.Context, address string) (*Actor, error)
	Update(ctx context.Context, actor *Actor) error
	Execute(ctx context.Context, actorID id.ActorID, validate func(*Actor) error, mutate func(*Actor)) (*Actor, error)
}

// Service owns actor registration, lookup, and administrative role changes.
type Service struct {
	actors Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(actors Store, opts ...Option) *Service {
	s := &Service{actors: actors}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an actor with an explicit role and password.
func (s *Service) Register(ctx context.Context, address, firstName, lastName, password string, role Role) (*Actor, error) {
	actor, err := NewActor(id.ActorID(uuid.New()), address, firstName, lastName, role, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if password != "" {
		hash, err := secrets.Hash(password)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
		actor.PasswordHash = hash
	}
	if err := s.actors.CreateIfEmailAvailable(ctx, actor); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register actor")
	}
	return actor, nil
}

// Authenticate resolves an actor by email and verifies the password.
func (s *Service) Authenticate(ctx context.Context, address, password string) (*Actor, error) {
	actor, err := s.actors.FindByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load actor")
	}
	if !actor.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account is disabled")
	}
	if actor.PasswordHash == "" || secrets.Verify(password, actor.PasswordHash) != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return actor, nil
}

// Get loads an actor by ID.
func (s *Service) Get(ctx context.Context, actorID id.ActorID) (*Actor, error) {
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor ID is required")
	}
	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, wrapActorErr(err)
	}
	return actor, nil
}

// ResolveOrCreateRecipient finds the actor registered under the given email,
// or lazily creates one with the Recipient role. This is its own step, not a
// side effect buried in the credential transition, so it stays testable.
func (s *Service) ResolveOrCreateRecipient(ctx context.Context, address, displayName string) (*Actor, error) {
	actor, err := s.actors.FindByEmail(ctx, address)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve recipient")
	}

	first, last := pkgemail.SplitDisplayName(displayName, address)
	recipient, err := NewActor(id.ActorID(uuid.New()), address, first, last, RoleRecipient, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	// Lazily provisioned recipients get an unguessable placeholder
	// credential rather than an empty hash.
	placeholder, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision recipient")
	}
	if recipient.PasswordHash, err = secrets.Hash(placeholder); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision recipient")
	}
	if err := s.actors.CreateIfEmailAvailable(ctx, recipient); err != nil {
		// Lost a race with a concurrent create for the same email; the
		// existing actor wins.
		if errors.Is(err, sentinel.ErrConflict) {
			return s.actors.FindByEmail(ctx, address)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create recipient")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "recipient created lazily",
			"actor_id", recipient.ID,
			"event", "actor.recipient_created",
			"log_type", "audit",
		)
	}
	return recipient, nil
}

// Disable soft-removes an actor. Disabled actors fail every permission check.
func (s *Service) Disable(ctx context.Context, actorID id.ActorID) (*Actor, error) {
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor ID is required")
	}
	now := requestcontext.Now(ctx)
	actor, err := s.actors.Execute(ctx, actorID,
		func(a *Actor) error {
			if err := a.CanDisable(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "actor is already disabled")
			}
			return nil
		},
		func(a *Actor) {
			a.ApplyDisable(now)
		},
	)
	if err != nil {
		return nil, wrapActorErr(err)
	}
	return actor, nil
}

// ChangeRole is the explicit administrative action that may alter a role.
func (s *Service) ChangeRole(ctx context.Context, actorID id.ActorID, role Role) (*Actor, error) {
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "actor ID is required")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown actor role")
	}
	now := requestcontext.Now(ctx)
	actor, err := s.actors.Execute(ctx, actorID,
		func(a *Actor) error { return a.CanChangeRole(role) },
		func(a *Actor) { a.ApplyRoleChange(role, now) },
	)
	if err != nil {
		return nil, wrapActorErr(err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "actor role changed",
			"actor_id", actor.ID,
			"role", string(role),
			"event", "actor.role_changed",
			"log_type", "audit",
		)
	}
	return actor, nil
}

func wrapActorErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "actor not found")
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "actor store failure")
	}
}
