package httptransport

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"dcp/internal/identity"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/httputil"
	"dcp/pkg/requestcontext"
)

type actorKey struct{}

// contextKeyActor carries the loaded actor so handlers never re-fetch it.
var contextKeyActor = actorKey{}

func actorFrom(ctx context.Context) *identity.Actor {
	if actor, ok := ctx.Value(contextKeyActor).(*identity.Actor); ok {
		return actor
	}
	return nil
}

// RequestMetadata stamps each request with an ID, the receive time, and the
// caller's network metadata. Everything downstream reads these through
// requestcontext, never from the request directly.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		ctx = requestcontext.WithClientMetadata(ctx, clientIP(r), r.UserAgent())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TokenValidator validates a bearer token and returns the actor it names.
type TokenValidator interface {
	ActorIDFromToken(tokenString string) (id.ActorID, error)
}

// ActorSource loads the actor behind a validated token.
type ActorSource interface {
	Get(ctx context.Context, actorID id.ActorID) (*identity.Actor, error)
}

// RequireAuth rejects requests without a valid bearer token and loads the
// actor into the context. Disabled actors are rejected here rather than in
// every service.
func RequireAuth(tokens TokenValidator, actors ActorSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			actorID, err := tokens.ActorIDFromToken(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			actor, err := actors.Get(ctx, actorID)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown actor"))
				return
			}
			if !actor.Active {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor is disabled"))
				return
			}

			ctx = requestcontext.WithActorID(ctx, actor.ID)
			ctx = context.WithValue(ctx, contextKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
