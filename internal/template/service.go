package template

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"dcp/internal/authz"
	"dcp/internal/identity"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/sentinel"
	"dcp/pkg/requestcontext"
)

// Store is the persistence contract the template service needs.
type Store interface {
	Create(ctx context.Context, t *Template) error
	FindByID(ctx context.Context, templateID id.TemplateID) (*Template, error)
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Template, error)
	Execute(ctx context.Context, templateID id.TemplateID, validate func(*Template) error, mutate func(*Template) error) (*Template, error)
}

// Service manages template lifecycle; every operation is permission-gated.
type Service struct {
	templates Store
	authorize *authz.Evaluator
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(templates Store, authorize *authz.Evaluator, opts ...Option) *Service {
	s := &Service{templates: templates, authorize: authorize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, actor *identity.Actor, orgID id.OrgID, name string, design json.RawMessage) (*Template, error) {
	if err := s.authorize.Require(ctx, actor, authz.OrgResource(orgID), authz.ActionManageTemplate); err != nil {
		return nil, err
	}
	t, err := NewTemplate(id.TemplateID(uuid.New()), orgID, name, design, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, wrapTemplateErr(err, "failed to create template")
	}
	s.audit(ctx, "template.created", t)
	return t, nil
}

func (s *Service) Get(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*Template, error) {
	t, err := s.templates.FindByID(ctx, templateID)
	if err != nil {
		return nil, wrapTemplateErr(err, "failed to load template")
	}
	if err := s.authorize.Require(ctx, actor, authz.OrgResource(t.OrgID), authz.ActionRead); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListByOrg(ctx context.Context, actor *identity.Actor, orgID id.OrgID) ([]*Template, error) {
	if err := s.authorize.Require(ctx, actor, authz.OrgResource(orgID), authz.ActionRead); err != nil {
		return nil, err
	}
	out, err := s.templates.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, wrapTemplateErr(err, "failed to list templates")
	}
	return out, nil
}

func (s *Service) Activate(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*Template, error) {
	return s.transition(ctx, actor, templateID, "template.activated",
		func(t *Template) error { return t.CanActivate() },
		func(t *Template) error { return t.ApplyActivate(requestcontext.Now(ctx)) },
	)
}

func (s *Service) Archive(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*Template, error) {
	return s.transition(ctx, actor, templateID, "template.archived",
		func(t *Template) error { return t.CanArchive() },
		func(t *Template) error { return t.ApplyArchive(requestcontext.Now(ctx)) },
	)
}

func (s *Service) transition(ctx context.Context, actor *identity.Actor, templateID id.TemplateID, event string, validate, mutate func(*Template) error) (*Template, error) {
	current, err := s.templates.FindByID(ctx, templateID)
	if err != nil {
		return nil, wrapTemplateErr(err, "failed to load template")
	}
	if err := s.authorize.Require(ctx, actor, authz.OrgResource(current.OrgID), authz.ActionManageTemplate); err != nil {
		return nil, err
	}
	t, err := s.templates.Execute(ctx, templateID, validate, mutate)
	if err != nil {
		return nil, wrapTemplateErr(err, "template transition failed")
	}
	s.audit(ctx, event, t)
	return t, nil
}

func (s *Service) audit(ctx context.Context, event string, t *Template) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, event,
		"template_id", t.ID,
		"organization_id", t.OrgID,
		"status", t.Status,
		"event", event,
		"log_type", "audit",
	)
}

func wrapTemplateErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "template not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "template already exists")
	default:
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
