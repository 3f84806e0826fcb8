package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	txStatusConfirmed = "confirmed"
	txStatusPending   = "pending"
	txStatusFailed    = "failed"
	txStatusReverted  = "reverted"
)

// HTTPGateway talks to a wallet/contract relay that holds the signing keys and
// exposes the loan, registry and SBT contracts over JSON.
type HTTPGateway struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

type HTTPOption func(*HTTPGateway)

// WithPollInterval sets how often ConfirmTransaction re-checks a pending transaction.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(g *HTTPGateway) { g.pollInterval = d }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = c }
}

func NewHTTPGateway(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type submitResponse struct {
	TxRef string `json:"txRef"`
}

type txStatusResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Kind    string `json:"kind,omitempty"`
	LoanRef string `json:"loanRef,omitempty"`
	Amount  string `json:"amount,omitempty"` // token base units
}

func (g *HTTPGateway) SubmitLoanApplication(ctx context.Context, amount decimal.Decimal, termMonths int, purpose string) (string, error) {
	body := map[string]any{
		"amount":     ToTokenUnits(amount),
		"termMonths": termMonths,
		"purpose":    purpose,
	}
	var resp submitResponse
	if err := g.do(ctx, http.MethodPost, "/loans/applications", body, &resp); err != nil {
		return "", fmt.Errorf("submit loan application: %w", err)
	}
	if err := g.ConfirmTransaction(ctx, resp.TxRef); err != nil {
		return "", err
	}
	return resp.TxRef, nil
}

func (g *HTTPGateway) SubmitRepayment(ctx context.Context, loanRef string, amount decimal.Decimal) (string, error) {
	body := map[string]any{
		"loanRef": loanRef,
		"amount":  ToTokenUnits(amount),
	}
	var resp submitResponse
	if err := g.do(ctx, http.MethodPost, "/loans/repayments", body, &resp); err != nil {
		return "", fmt.Errorf("submit repayment: %w", err)
	}
	if err := g.ConfirmTransaction(ctx, resp.TxRef); err != nil {
		return "", err
	}
	return resp.TxRef, nil
}

// ConfirmTransaction blocks until ref is final, polling while it is pending.
func (g *HTTPGateway) ConfirmTransaction(ctx context.Context, ref string) error {
	_, err := g.await(ctx, ref)
	return err
}

// ConfirmRepayment waits for ref like ConfirmTransaction, then checks the relay
// reports it as a repayment of amount on loanRef.
func (g *HTTPGateway) ConfirmRepayment(ctx context.Context, ref, loanRef string, amount decimal.Decimal) error {
	tx, err := g.await(ctx, ref)
	if err != nil {
		return err
	}
	return checkRepayment(ref, tx.Kind, tx.LoanRef, loanRef, tx.Amount, ToTokenUnits(amount))
}

func (g *HTTPGateway) await(ctx context.Context, ref string) (txStatusResponse, error) {
	if ref == "" {
		return txStatusResponse{}, fmt.Errorf("empty transaction reference: %w", ErrRejected)
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var resp txStatusResponse
		if err := g.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(ref), nil, &resp); err != nil {
			return resp, fmt.Errorf("confirm transaction %s: %w", ref, err)
		}

		switch resp.Status {
		case txStatusConfirmed:
			return resp, nil
		case txStatusFailed, txStatusReverted:
			return resp, fmt.Errorf("transaction %s %s %s: %w", ref, resp.Status, resp.Reason, ErrRejected)
		case txStatusPending:
		default:
			return resp, fmt.Errorf("transaction %s has unknown status %q: %w", ref, resp.Status, ErrUnavailable)
		}

		select {
		case <-ctx.Done():
			return resp, fmt.Errorf("transaction %s still pending: %w", ref, ErrUnavailable)
		case <-ticker.C:
		}
	}
}

func (g *HTTPGateway) QueryReputationScore(ctx context.Context, wallet string) (int, error) {
	var resp struct {
		Score int `json:"score"`
	}
	if err := g.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(wallet)+"/reputation", nil, &resp); err != nil {
		return 0, fmt.Errorf("query reputation score: %w", err)
	}
	return resp.Score, nil
}

func (g *HTTPGateway) QueryCredential(ctx context.Context, wallet string, kind CredentialKind) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	path := "/accounts/" + url.PathEscape(wallet) + "/credentials/" + url.PathEscape(string(kind))
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, fmt.Errorf("query %s credential: %w", kind, err)
	}
	return resp.Valid, nil
}

// do sends one request. Transport failures and 5xx map to ErrUnavailable, other
// non-2xx answers to ErrRejected.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: relay answered %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: relay answered %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode relay response: %v", ErrUnavailable, err)
	}
	return nil
}
