package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dcp/internal/identity"
	"dcp/internal/org"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

// OrgService is the slice of the organization service the handler uses.
type OrgService interface {
	Create(ctx context.Context, name string) (*org.Organization, error)
	Get(ctx context.Context, orgID id.OrgID) (*org.Organization, error)
	AddMember(ctx context.Context, actorID id.ActorID, orgID id.OrgID, role org.MembershipRole) (*org.Membership, error)
	MembershipOf(ctx context.Context, actorID id.ActorID, orgID id.OrgID) (*org.Membership, error)
	MarkVerified(ctx context.Context, orgID id.OrgID) (*org.Organization, error)
}

type OrgHandler struct {
	orgs   OrgService
	logger *slog.Logger
}

func NewOrgHandler(orgs OrgService, logger *slog.Logger) *OrgHandler {
	return &OrgHandler{orgs: orgs, logger: logger}
}

func (h *OrgHandler) Register(r chi.Router) {
	r.Post("/orgs", h.handleCreate)
	r.Get("/orgs/{orgID}", h.handleGet)
	r.Post("/orgs/{orgID}/members", h.handleAddMember)
	r.Post("/orgs/{orgID}/verify", h.handleMarkVerified)
}

func orgIDParam(r *http.Request) (id.OrgID, error) {
	raw, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		return id.OrgID{}, dErrors.New(dErrors.CodeBadRequest, "invalid organization id")
	}
	return id.OrgID(raw), nil
}

// handleCreate provisions an organization. The creator becomes its first
// admin member so the new organization is immediately manageable.
func (h *OrgHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)
	if actor.Role != identity.RoleIssuerAdmin && actor.Role != identity.RoleSuperAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not permitted to create organizations"))
		return
	}

	req, ok := httputil.DecodeJSON[createOrgRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	created, err := h.orgs.Create(ctx, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.orgs.AddMember(ctx, actor.ID, created.ID, org.MembershipAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "organization created",
		"request_id", requestcontext.RequestID(ctx),
		"org_id", created.ID,
		"actor_id", actor.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *OrgHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	orgID, err := orgIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.orgs.Get(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *OrgHandler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	orgID, err := orgIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if actor.Role != identity.RoleSuperAdmin {
		membership, err := h.orgs.MembershipOf(ctx, actor.ID, orgID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if membership == nil || membership.Role != org.MembershipAdmin {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not permitted to manage members"))
			return
		}
	}

	req, ok := httputil.DecodeJSON[addMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	memberUUID, err := uuid.Parse(req.ActorID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid actor id"))
		return
	}

	membership, err := h.orgs.AddMember(ctx, id.ActorID(memberUUID), orgID, org.MembershipRole(req.Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, membership)
}

func (h *OrgHandler) handleMarkVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)
	if actor.Role != identity.RoleSuperAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not permitted to verify organizations"))
		return
	}

	orgID, err := orgIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verified, err := h.orgs.MarkVerified(ctx, orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verified)
}
