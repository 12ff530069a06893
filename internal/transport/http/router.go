// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; no business logic lives here.
package httptransport

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dcp/internal/platform/metrics"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
)

// Dependencies carries the handlers and cross-cutting middleware the router
// mounts. Built once in main.
type Dependencies struct {
	Auth        *AuthHandler
	Orgs        *OrgHandler
	Templates   *TemplateHandler
	Credentials *CredentialHandler
	Verify      *VerifyHandler

	// RequireAuth guards every non-public route.
	RequireAuth func(http.Handler) http.Handler

	// CallbackSecret authenticates the artifact renderer's callback. Empty
	// disables the callback route entirely.
	CallbackSecret string

	// HTTPMetrics is optional; nil skips request instrumentation.
	HTTPMetrics *metrics.HTTPMetrics

	Logger *slog.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware)
	}
	r.Use(RequestMetadata)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public surface: registration, login, and credential verification.
	r.Group(func(r chi.Router) {
		deps.Auth.Register(r)
		deps.Verify.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.RequireAuth)
		deps.Auth.RegisterProtected(r)
		deps.Orgs.Register(r)
		deps.Templates.Register(r)
		deps.Credentials.Register(r)
		deps.Verify.RegisterProtected(r)
	})

	if deps.CallbackSecret != "" {
		r.Group(func(r chi.Router) {
			r.Use(requireCallbackSecret(deps.CallbackSecret))
			deps.Credentials.RegisterCallbacks(r)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireCallbackSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Callback-Secret")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid callback secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
