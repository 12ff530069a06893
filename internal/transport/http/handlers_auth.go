package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dcp/internal/identity"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

// IdentityService is the slice of the identity service the auth handler uses.
type IdentityService interface {
	Register(ctx context.Context, address, firstName, lastName, password string, role identity.Role) (*identity.Actor, error)
	Authenticate(ctx context.Context, address, password string) (*identity.Actor, error)
	Disable(ctx context.Context, actorID id.ActorID) (*identity.Actor, error)
	ChangeRole(ctx context.Context, actorID id.ActorID, role identity.Role) (*identity.Actor, error)
}

// TokenIssuer mints access tokens for authenticated actors.
type TokenIssuer interface {
	Issue(actor *identity.Actor, now time.Time) (string, time.Time, error)
}

type AuthHandler struct {
	identities IdentityService
	tokens     TokenIssuer
	logger     *slog.Logger
}

func NewAuthHandler(identities IdentityService, tokens TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identities: identities, tokens: tokens, logger: logger}
}

// Register mounts the unauthenticated auth endpoints.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
}

// RegisterProtected mounts endpoints that require an authenticated actor.
func (h *AuthHandler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.handleMe)
	r.Post("/actors/{actorID}/disable", h.handleDisable)
	r.Post("/actors/{actorID}/role", h.handleChangeRole)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[registerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	role := identity.Role(req.Role)
	if req.Role == "" {
		role = identity.RoleRecipient
	}
	// Administrator accounts are provisioned out of band, never through the
	// public registration endpoint.
	if role == identity.RoleSuperAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot self-register as an administrator"))
		return
	}

	actor, err := h.identities.Register(ctx, req.Email, req.FirstName, req.LastName, req.Password, role)
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed",
			"request_id", requestID,
			"email", req.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "actor registered",
		"request_id", requestID,
		"actor_id", actor.ID,
		"role", actor.Role,
	)
	httputil.WriteJSON(w, http.StatusCreated, actor)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[loginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	actor, err := h.identities.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"email", req.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(actor, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

// actorParam validates the path segment; writes the error itself on failure.
func actorParam(w http.ResponseWriter, r *http.Request) (id.ActorID, bool) {
	actorID, err := id.ParseActorID(chi.URLParam(r, "actorID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid actor ID"))
		return id.ActorID{}, false
	}
	return actorID, true
}

// requireSuperAdmin gates account administration.
func requireSuperAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor := actorFrom(r.Context())
	if actor == nil || actor.Role != identity.RoleSuperAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator access required"))
		return false
	}
	return true
}

func (h *AuthHandler) handleDisable(w http.ResponseWriter, r *http.Request) {
	if !requireSuperAdmin(w, r) {
		return
	}
	actorID, ok := actorParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	disabled, err := h.identities.Disable(ctx, actorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "actor disabled",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", disabled.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, disabled)
}

func (h *AuthHandler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	if !requireSuperAdmin(w, r) {
		return
	}
	actorID, ok := actorParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	req, ok := httputil.DecodeJSON[changeRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	changed, err := h.identities.ChangeRole(ctx, actorID, identity.Role(req.Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "actor role changed",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", changed.ID,
		"role", changed.Role,
	)
	httputil.WriteJSON(w, http.StatusOK, changed)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if actor == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actor)
}
