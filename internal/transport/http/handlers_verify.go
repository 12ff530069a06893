package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dcp/internal/anchor"
	"dcp/internal/identity"
	"dcp/internal/verification"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

// VerificationService is the slice of the verification service the public
// endpoints use.
type VerificationService interface {
	Verify(ctx context.Context, publicID id.PublicCredentialID, vctx verification.Context) (*verification.Result, error)
	History(ctx context.Context, publicID id.PublicCredentialID) ([]verification.Record, error)
}

// TransactionSource resolves ledger transaction metadata.
type TransactionSource interface {
	TransactionDetails(ctx context.Context, txRef string) (*anchor.TransactionDetails, error)
}

type VerifyHandler struct {
	verifications VerificationService
	transactions  TransactionSource
	logger        *slog.Logger
}

func NewVerifyHandler(verifications VerificationService, transactions TransactionSource, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verifications: verifications, transactions: transactions, logger: logger}
}

// Register mounts the unauthenticated verification endpoints. Anyone holding
// a credential link can verify it.
func (h *VerifyHandler) Register(r chi.Router) {
	r.Get("/verify/{publicID}", h.handleVerify)
}

// RegisterProtected mounts the endpoints that expose more than the public
// verification result.
func (h *VerifyHandler) RegisterProtected(r chi.Router) {
	r.Get("/verify/{publicID}/history", h.handleHistory)
	r.Get("/transactions/{txRef}", h.handleTransaction)
}

func (h *VerifyHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicID, err := id.ParsePublicCredentialID(chi.URLParam(r, "publicID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid public credential id"))
		return
	}

	method := verification.Method(r.URL.Query().Get("method"))
	if !method.Valid() {
		method = verification.MethodURL
	}

	result, err := h.verifications.Verify(ctx, publicID, verification.Context{
		Method:    method,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"public_id", publicID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *VerifyHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)
	if actor.Role == identity.RoleRecipient {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not permitted to view verification history"))
		return
	}

	publicID, err := id.ParsePublicCredentialID(chi.URLParam(r, "publicID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid public credential id"))
		return
	}

	records, err := h.verifications.History(ctx, publicID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *VerifyHandler) handleTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txRef := chi.URLParam(r, "txRef")
	if txRef == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transaction reference is required"))
		return
	}

	details, err := h.transactions.TransactionDetails(ctx, txRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}
