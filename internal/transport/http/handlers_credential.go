package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dcp/internal/credential"
	"dcp/internal/identity"
	"dcp/internal/vc"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

// CredentialService is the slice of the credential service the handler uses.
type CredentialService interface {
	Create(ctx context.Context, actor *identity.Actor, in credential.CreateInput) (*credential.Credential, error)
	CreateBulk(ctx context.Context, actor *identity.Actor, inputs []credential.CreateInput) []credential.BulkResult
	Get(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID) (*credential.Credential, error)
	List(ctx context.Context, actor *identity.Actor, query credential.ListQuery) ([]*credential.Credential, error)
	Update(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID, p credential.UpdateParams) (*credential.Credential, error)
	Issue(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID) (*credential.Credential, error)
	Revoke(ctx context.Context, actor *identity.Actor, credentialID id.CredentialID, reason string) (*credential.Credential, error)
	AttachArtifact(ctx context.Context, credentialID id.CredentialID, url string) (*credential.Credential, error)
}

// Exporter renders a credential as a Verifiable Credential document.
type Exporter interface {
	Export(ctx context.Context, c *credential.Credential) (*vc.Document, error)
}

type CredentialHandler struct {
	credentials CredentialService
	exporter    Exporter
	logger      *slog.Logger
}

func NewCredentialHandler(credentials CredentialService, exporter Exporter, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{credentials: credentials, exporter: exporter, logger: logger}
}

func (h *CredentialHandler) Register(r chi.Router) {
	r.Post("/credentials", h.handleCreate)
	r.Post("/credentials/bulk", h.handleCreateBulk)
	r.Get("/credentials", h.handleList)
	r.Get("/credentials/{credentialID}", h.handleGet)
	r.Patch("/credentials/{credentialID}", h.handleUpdate)
	r.Post("/credentials/{credentialID}/issue", h.handleIssue)
	r.Post("/credentials/{credentialID}/revoke", h.handleRevoke)
	r.Get("/credentials/{credentialID}/export", h.handleExport)
}

// RegisterCallbacks mounts the renderer callback. It is authenticated by a
// shared-secret header checked in the router, not by a user token.
func (h *CredentialHandler) RegisterCallbacks(r chi.Router) {
	r.Post("/artifacts/callback", h.handleArtifactCallback)
}

func credentialIDParam(r *http.Request) (id.CredentialID, error) {
	raw, err := uuid.Parse(chi.URLParam(r, "credentialID"))
	if err != nil {
		return id.CredentialID{}, dErrors.New(dErrors.CodeBadRequest, "invalid credential id")
	}
	return id.CredentialID(raw), nil
}

func (req createCredentialRequest) toInput() (credential.CreateInput, error) {
	templateUUID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		return credential.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid template id")
	}
	return credential.CreateInput{
		TemplateID:     id.TemplateID(templateUUID),
		Title:          req.Title,
		Description:    req.Description,
		RecipientEmail: req.RecipientEmail,
		RecipientName:  req.RecipientName,
		CredentialData: req.CredentialData,
		ExpiresAt:      req.ExpiresAt,
		Public:         req.Public,
	}, nil
}

func (h *CredentialHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := actorFrom(ctx)

	req, ok := httputil.DecodeJSON[createCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.credentials.Create(ctx, actor, in)
	if err != nil {
		h.logger.WarnContext(ctx, "credential creation failed",
			"request_id", requestID,
			"actor_id", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *CredentialHandler) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := actorFrom(ctx)

	req, ok := httputil.DecodeJSON[createCredentialBulkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if len(req.Credentials) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "credentials list is empty"))
		return
	}

	inputs := make([]credential.CreateInput, len(req.Credentials))
	for i, item := range req.Credentials {
		in, err := item.toInput()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		inputs[i] = in
	}

	start := time.Now()
	results := h.credentials.CreateBulk(ctx, actor, inputs)
	h.logger.InfoContext(ctx, "bulk credential creation finished",
		"request_id", requestID,
		"actor_id", actor.ID,
		"batch_size", len(inputs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// 207 signals per-item outcomes; callers must inspect each entry.
	httputil.WriteJSON(w, http.StatusMultiStatus, bulkResponse(results))
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func (h *CredentialHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()
	query := credential.ListQuery{
		Status:         credential.Status(params.Get("status")),
		RecipientEmail: params.Get("recipient_email"),
	}
	var ok bool
	if query.Offset, ok = intParam(w, params.Get("offset"), "offset"); !ok {
		return
	}
	if query.Limit, ok = intParam(w, params.Get("limit"), "limit"); !ok {
		return
	}
	listed, err := h.credentials.List(ctx, actorFrom(ctx), query)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listed)
}

func (h *CredentialHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credentialID, err := credentialIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.credentials.Get(ctx, actorFrom(ctx), credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *CredentialHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credentialID, err := credentialIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[updateCredentialRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	updated, err := h.credentials.Update(ctx, actorFrom(ctx), credentialID, credential.UpdateParams{
		Title:          req.Title,
		Description:    req.Description,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		CredentialData: req.CredentialData,
		ExpiresAt:      req.ExpiresAt,
		ClearExpiry:    req.ClearExpiry,
		Public:         req.Public,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *CredentialHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)
	credentialID, err := credentialIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	issued, err := h.credentials.Issue(ctx, actor, credentialID)
	if err != nil {
		h.logger.WarnContext(ctx, "credential issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", actor.ID,
			"credential_id", credentialID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issued)
}

func (h *CredentialHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credentialID, err := credentialIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[revokeCredentialRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	revoked, err := h.credentials.Revoke(ctx, actorFrom(ctx), credentialID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, revoked)
}

func (h *CredentialHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credentialID, err := credentialIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	found, err := h.credentials.Get(ctx, actorFrom(ctx), credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.exporter.Export(ctx, found)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *CredentialHandler) handleArtifactCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[artifactCallbackRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	credentialUUID, err := uuid.Parse(req.CredentialID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}
	if req.ArtifactURL == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "artifact_url is required"))
		return
	}

	updated, err := h.credentials.AttachArtifact(ctx, id.CredentialID(credentialUUID), req.ArtifactURL)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
