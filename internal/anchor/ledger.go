package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

// Ledger is the external anchoring collaborator. Anchor submits a digest
// under a credential's public identifier; Lookup returns the previously
// stored digest or sentinel.ErrNotFound when nothing is anchored.
type Ledger interface {
	Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error)
	Lookup(ctx context.Context, publicID id.PublicCredentialID) (string, error)
	TransactionDetails(ctx context.Context, txRef string) (*TransactionDetails, error)
}

// TransactionDetails describes the ledger transaction backing an anchor.
type TransactionDetails struct {
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     int64     `json:"block_number"`
	BlockHash       string    `json:"block_hash"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	FromAddress     string    `json:"from_address"`
	ToAddress       string    `json:"to_address"`
}

// HTTPLedger talks to the anchoring gateway over JSON HTTP. The gateway owns
// the chain interaction; this client only submits and reads digests.
type HTTPLedger struct {
	endpoint        string
	contractAddress string
	client          *http.Client
}

func NewHTTPLedger(endpoint, contractAddress string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{
		endpoint:        endpoint,
		contractAddress: contractAddress,
		client:          &http.Client{Timeout: timeout},
	}
}

type anchorRequest struct {
	CredentialID    string `json:"credential_id"`
	CredentialHash  string `json:"credential_hash"`
	ContractAddress string `json:"contract_address,omitempty"`
}

type anchorResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

func (l *HTTPLedger) Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error) {
	body, err := json.Marshal(anchorRequest{
		CredentialID:    string(publicID),
		CredentialHash:  digest,
		ContractAddress: l.contractAddress,
	})
	if err != nil {
		return "", fmt.Errorf("encode anchor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger anchor call: %w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		// The ledger rejects re-anchoring the same identifier.
		return "", fmt.Errorf("digest already anchored: %w", sentinel.ErrConflict)
	default:
		return "", fmt.Errorf("ledger anchor status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var out anchorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode anchor response: %w", sentinel.ErrUnavailable)
	}
	return out.TransactionHash, nil
}

type lookupResponse struct {
	CredentialHash string `json:"credential_hash"`
}

func (l *HTTPLedger) Lookup(ctx context.Context, publicID id.PublicCredentialID) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.endpoint+"/anchors/"+url.PathEscape(string(publicID)), nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger lookup call: %w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", sentinel.ErrNotFound
	default:
		return "", fmt.Errorf("ledger lookup status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var out lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", sentinel.ErrUnavailable)
	}
	if out.CredentialHash == "" {
		return "", sentinel.ErrNotFound
	}
	return out.CredentialHash, nil
}

func (l *HTTPLedger) TransactionDetails(ctx context.Context, txRef string) (*TransactionDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.endpoint+"/transactions/"+url.PathEscape(txRef), nil)
	if err != nil {
		return nil, fmt.Errorf("build transaction request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger transaction call: %w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	default:
		return nil, fmt.Errorf("ledger transaction status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var out TransactionDetails
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transaction response: %w", sentinel.ErrUnavailable)
	}
	return &out, nil
}

// NopLedger stands in when no anchoring gateway is configured. Lookups
// report nothing anchored; writes and transaction queries are unavailable.
type NopLedger struct{}

func (NopLedger) Anchor(context.Context, string, id.PublicCredentialID) (string, error) {
	return "", fmt.Errorf("no ledger configured: %w", sentinel.ErrUnavailable)
}

func (NopLedger) Lookup(context.Context, id.PublicCredentialID) (string, error) {
	return "", sentinel.ErrNotFound
}

func (NopLedger) TransactionDetails(context.Context, string) (*TransactionDetails, error) {
	return nil, fmt.Errorf("no ledger configured: %w", sentinel.ErrUnavailable)
}
