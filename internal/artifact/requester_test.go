package artifact

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dcp/internal/credential"
	id "dcp/pkg/domain"
)

func TestHTTPRequesterSubmitsJob(t *testing.T) {
	var job renderJob
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &job))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	c, err := credential.NewCredential(id.CredentialID(uuid.New()), credential.CreateParams{
		OrgID:          id.OrgID(uuid.New()),
		TemplateID:     id.TemplateID(uuid.New()),
		IssuerID:       id.ActorID(uuid.New()),
		RecipientID:    id.ActorID(uuid.New()),
		RecipientName:  "Jane Doe",
		RecipientEmail: "jane.doe@example.com",
		Title:          "Cloud Architecture Certificate",
	}, "https://verify.example.com", now)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewHTTPRequester(server.URL, "https://api.example.com/artifacts/callback", logger)
	r.RequestArtifacts(context.Background(), c)

	require.Equal(t, c.ID.String(), job.CredentialID)
	require.Equal(t, c.PublicID.String(), job.PublicID)
	require.Equal(t, "https://api.example.com/artifacts/callback", job.CallbackURL)
	require.Equal(t, c.VerificationURL, job.VerificationURL)
}
