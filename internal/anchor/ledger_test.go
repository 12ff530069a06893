package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

const testPublicID = id.PublicCredentialID("DCP-20260314-ABCDEF01")

func TestHTTPLedgerAnchor(t *testing.T) {
	t.Run("submits digest and returns transaction ref", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/anchors", r.URL.Path)

			var req anchorRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, string(testPublicID), req.CredentialID)
			assert.Equal(t, "deadbeef", req.CredentialHash)
			assert.Equal(t, "0xcontract", req.ContractAddress)

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(anchorResponse{TransactionHash: "0xabc123"})
		}))
		defer srv.Close()

		l := NewHTTPLedger(srv.URL, "0xcontract", time.Second)
		ref, err := l.Anchor(context.Background(), "deadbeef", testPublicID)
		require.NoError(t, err)
		assert.Equal(t, "0xabc123", ref)
	})

	t.Run("duplicate anchoring rejected as conflict", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		l := NewHTTPLedger(srv.URL, "", time.Second)
		_, err := l.Anchor(context.Background(), "deadbeef", testPublicID)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("unreachable ledger reported as unavailable", func(t *testing.T) {
		l := NewHTTPLedger("http://127.0.0.1:1", "", 100*time.Millisecond)
		_, err := l.Anchor(context.Background(), "deadbeef", testPublicID)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestHTTPLedgerLookup(t *testing.T) {
	t.Run("returns stored digest", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/anchors/"+string(testPublicID), r.URL.Path)
			json.NewEncoder(w).Encode(lookupResponse{CredentialHash: "deadbeef"})
		}))
		defer srv.Close()

		l := NewHTTPLedger(srv.URL, "", time.Second)
		digest, err := l.Lookup(context.Background(), testPublicID)
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", digest)
	})

	t.Run("absent anchor is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		l := NewHTTPLedger(srv.URL, "", time.Second)
		_, err := l.Lookup(context.Background(), testPublicID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("server error reported as unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		l := NewHTTPLedger(srv.URL, "", time.Second)
		_, err := l.Lookup(context.Background(), testPublicID)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestHTTPLedgerTransactionDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/0xabc123", r.URL.Path)
		json.NewEncoder(w).Encode(TransactionDetails{
			TransactionHash: "0xabc123",
			BlockNumber:     812,
			Status:          "success",
		})
	}))
	defer srv.Close()

	l := NewHTTPLedger(srv.URL, "", time.Second)
	details, err := l.TransactionDetails(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, int64(812), details.BlockNumber)
	assert.Equal(t, "success", details.Status)
}
