package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dcp/internal/identity"
	"dcp/internal/template"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

// TemplateService is the slice of the template service the handler uses.
type TemplateService interface {
	Create(ctx context.Context, actor *identity.Actor, orgID id.OrgID, name string, design json.RawMessage) (*template.Template, error)
	Get(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*template.Template, error)
	ListByOrg(ctx context.Context, actor *identity.Actor, orgID id.OrgID) ([]*template.Template, error)
	Activate(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*template.Template, error)
	Archive(ctx context.Context, actor *identity.Actor, templateID id.TemplateID) (*template.Template, error)
}

type TemplateHandler struct {
	templates TemplateService
	logger    *slog.Logger
}

func NewTemplateHandler(templates TemplateService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, logger: logger}
}

func (h *TemplateHandler) Register(r chi.Router) {
	r.Post("/orgs/{orgID}/templates", h.handleCreate)
	r.Get("/orgs/{orgID}/templates", h.handleList)
	r.Get("/templates/{templateID}", h.handleGet)
	r.Post("/templates/{templateID}/activate", h.handleActivate)
	r.Post("/templates/{templateID}/archive", h.handleArchive)
}

func templateIDParam(r *http.Request) (id.TemplateID, error) {
	raw, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		return id.TemplateID{}, dErrors.New(dErrors.CodeBadRequest, "invalid template id")
	}
	return id.TemplateID(raw), nil
}

func (h *TemplateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	orgID, err := orgIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[createTemplateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	var design json.RawMessage
	if req.Design != nil {
		design, err = json.Marshal(req.Design)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid template design"))
			return
		}
	}

	created, err := h.templates.Create(ctx, actor, orgID, req.Name, design)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *TemplateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, err := orgIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	templates, err := h.templates.ListByOrg(ctx, actorFrom(ctx), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, templates)
}

func (h *TemplateHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID, err := templateIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.templates.Get(ctx, actorFrom(ctx), templateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *TemplateHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.templates.Activate)
}

func (h *TemplateHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.templates.Archive)
}

func (h *TemplateHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, *identity.Actor, id.TemplateID) (*template.Template, error)) {
	ctx := r.Context()
	templateID, err := templateIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := apply(ctx, actorFrom(ctx), templateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
