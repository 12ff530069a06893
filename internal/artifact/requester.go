// Package artifact asks the rendering service for shareable files (PDF
// certificate, QR badge). Generation is asynchronous: the renderer calls
// back with URLs once files exist.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"dcp/internal/credential"
)

// NoopRequester skips artifact generation entirely. Used when no renderer
// is configured.
type NoopRequester struct {
	logger *slog.Logger
}

func NewNoopRequester(logger *slog.Logger) *NoopRequester {
	return &NoopRequester{logger: logger}
}

func (r *NoopRequester) RequestArtifacts(ctx context.Context, c *credential.Credential) {
	r.logger.DebugContext(ctx, "artifact generation skipped", "public_id", c.PublicID)
}

// HTTPRequester submits render jobs to the rendering service. The callback
// URL is where the renderer posts finished artifact locations.
type HTTPRequester struct {
	endpoint    string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
}

func NewHTTPRequester(endpoint, callbackURL string, logger *slog.Logger) *HTTPRequester {
	return &HTTPRequester{
		endpoint:    endpoint,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type renderJob struct {
	CredentialID    string `json:"credential_id"`
	PublicID        string `json:"public_id"`
	Title           string `json:"title"`
	RecipientName   string `json:"recipient_name"`
	VerificationURL string `json:"verification_url"`
	CallbackURL     string `json:"callback_url"`
}

func (r *HTTPRequester) RequestArtifacts(ctx context.Context, c *credential.Credential) {
	body, err := json.Marshal(renderJob{
		CredentialID:    c.ID.String(),
		PublicID:        c.PublicID.String(),
		Title:           c.Title,
		RecipientName:   c.RecipientName,
		VerificationURL: c.VerificationURL,
		CallbackURL:     r.callbackURL,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode render job", "public_id", c.PublicID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to build render request", "public_id", c.PublicID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WarnContext(ctx, "render request failed", "public_id", c.PublicID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.logger.WarnContext(ctx, "render request rejected",
			"public_id", c.PublicID,
			"status", resp.StatusCode,
		)
	}
}
