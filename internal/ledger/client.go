// Package ledger is the client side of the external token transfer service.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the failure category reported by the ledger
type ErrorKind string

const (
	GenericError           ErrorKind = "GenericError"
	TemporarilyUnavailable ErrorKind = "TemporarilyUnavailable"
	Duplicate              ErrorKind = "Duplicate"
	BadFee                 ErrorKind = "BadFee"
	CreatedInFuture        ErrorKind = "CreatedInFuture"
	TooOld                 ErrorKind = "TooOld"
	InsufficientFunds      ErrorKind = "InsufficientFunds"
)

func parseKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case TemporarilyUnavailable, Duplicate, BadFee, CreatedInFuture, TooOld, InsufficientFunds:
		return k
	}
	return GenericError
}

// TransferRequest moves Amount tokens to the To address
type TransferRequest struct {
	To             string  `json:"to"`
	Amount         uint64  `json:"amount"`
	Fee            *uint64 `json:"fee,omitempty"`
	Memo           string  `json:"memo,omitempty"`
	FromSubaccount string  `json:"from_subaccount,omitempty"`
	// CreatedAtTime is nanoseconds since the epoch; the ledger uses it with Memo to detect duplicates
	CreatedAtTime *uint64 `json:"created_at_time,omitempty"`
}

// TransferError is a transfer rejected by the ledger
type TransferError struct {
	Kind       ErrorKind
	Detail     string
	StatusCode int
}

func (e *TransferError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ledger rejected transfer: %s", e.Kind)
	}
	return fmt.Sprintf("ledger rejected transfer: %s: %s", e.Kind, e.Detail)
}

type transferResponse struct {
	Ok  *string `json:"ok"`
	Err *struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	} `json:"err"`
}

// Client calls the ledger over HTTP. It never retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a new ledger client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Transfer submits a single transfer and returns the ledger's transaction reference
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send transfer request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read transfer response: %w", err)
	}

	var out transferResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &TransferError{
				Kind:       GenericError,
				Detail:     fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
				StatusCode: resp.StatusCode,
			}
		}
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}

	switch {
	case out.Err != nil:
		return "", &TransferError{Kind: parseKind(out.Err.Kind), Detail: out.Err.Detail, StatusCode: resp.StatusCode}
	case out.Ok != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return *out.Ok, nil
	default:
		return "", &TransferError{
			Kind:       GenericError,
			Detail:     fmt.Sprintf("HTTP %d without transaction reference", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
}
