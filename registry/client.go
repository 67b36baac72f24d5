// Package registry holds HTTP adapters for the engine's external
// collaborators: the actor registry (roles, profiles, outcome reports) and
// the treasury (collateral custody).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opentender-io/opentender/core"
)

const defaultTimeout = 10 * time.Second

// Client implements core.Registry against the registry service's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a registry adapter rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type roleResponse struct {
	HasRole bool `json:"has_role"`
}

type profileResponse struct {
	MetadataRef      string          `json:"metadata_ref"`
	Reputation       int64           `json:"reputation"`
	CollateralOnFile decimal.Decimal `json:"collateral_on_file"`
}

type outcomeReport struct {
	Winner  string          `json:"winner"`
	Amount  decimal.Decimal `json:"amount"`
	Success bool            `json:"success"`
}

// HasBidderRole asks the registry whether the actor may submit bids.
func (c *Client) HasBidderRole(ctx context.Context, actor string) (bool, error) {
	var out roleResponse
	path := fmt.Sprintf("/actors/%s/roles/bidder", url.PathEscape(actor))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return false, fmt.Errorf("bidder role lookup for %s: %w", actor, err)
	}
	return out.HasRole, nil
}

// GetProfile fetches the actor's externally tracked profile.
func (c *Client) GetProfile(ctx context.Context, actor string) (core.Profile, error) {
	var out profileResponse
	path := fmt.Sprintf("/actors/%s/profile", url.PathEscape(actor))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return core.Profile{}, fmt.Errorf("profile lookup for %s: %w", actor, err)
	}
	return core.Profile{
		MetadataRef:      out.MetadataRef,
		Reputation:       out.Reputation,
		CollateralOnFile: out.CollateralOnFile,
	}, nil
}

// ReportOutcome posts the settlement outcome back to the registry.
func (c *Client) ReportOutcome(ctx context.Context, winner string, amount decimal.Decimal, success bool) error {
	report := outcomeReport{Winner: winner, Amount: amount, Success: success}
	if err := c.postJSON(ctx, "/outcomes", report); err != nil {
		return fmt.Errorf("report outcome: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("registry returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("registry returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

var _ core.Registry = (*Client)(nil)
