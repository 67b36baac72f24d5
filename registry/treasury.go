package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/opentender-io/opentender/core"
)

// TreasuryClient implements core.Treasury against the custody service that
// actually holds collateral. The engine only ever observes balances and
// orders outbound transfers; inbound deposits happen out of band.
type TreasuryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTreasuryClient creates a treasury adapter rooted at baseURL.
func NewTreasuryClient(baseURL string, opts ...ClientOption) *TreasuryClient {
	inner := NewClient(baseURL, opts...)
	return &TreasuryClient{baseURL: inner.baseURL, httpClient: inner.httpClient}
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Balance returns the funds currently held for the engine.
func (c *TreasuryClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance", nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("treasury balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("treasury returned status %d", resp.StatusCode)
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode balance: %w", err)
	}
	return out.Balance, nil
}

// Transfer orders an outbound payment. A non-200 response means the transfer
// did not happen; the caller decides how to recover.
func (c *TreasuryClient) Transfer(ctx context.Context, to string, amount decimal.Decimal) error {
	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("treasury transfer to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("treasury returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

var _ core.Treasury = (*TreasuryClient)(nil)
