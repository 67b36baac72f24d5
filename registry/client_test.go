package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClient_HasBidderRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/actors/alice/roles/bidder", r.URL.Path)
		json.NewEncoder(w).Encode(roleResponse{HasRole: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ok, err := c.HasBidderRole(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClient_HasBidderRole_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.HasBidderRole(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestClient_GetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/actors/bob/profile", r.URL.Path)
		json.NewEncoder(w).Encode(profileResponse{
			MetadataRef:      "meta:bob",
			Reputation:       85,
			CollateralOnFile: decimal.NewFromInt(500),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	profile, err := c.GetProfile(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "meta:bob", profile.MetadataRef)
	require.Equal(t, int64(85), profile.Reputation)
	require.True(t, profile.CollateralOnFile.Equal(decimal.NewFromInt(500)))
}

func TestClient_ReportOutcome(t *testing.T) {
	var got outcomeReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/outcomes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.ReportOutcome(context.Background(), "bob", decimal.NewFromInt(110), true)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Winner)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(110)))
	require.True(t, got.Success)
}

func TestTreasuryClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/balance", r.URL.Path)
		json.NewEncoder(w).Encode(balanceResponse{Balance: decimal.NewFromInt(1250)})
	}))
	defer srv.Close()

	c := NewTreasuryClient(srv.URL)
	balance, err := c.Balance(context.Background())
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(1250)))
}

func TestTreasuryClient_Transfer(t *testing.T) {
	var got transferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transfers", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewTreasuryClient(srv.URL)
	err := c.Transfer(context.Background(), "alice", decimal.NewFromInt(250))
	require.NoError(t, err)
	require.Equal(t, "alice", got.To)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(250)))
}

func TestTreasuryClient_TransferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewTreasuryClient(srv.URL)
	err := c.Transfer(context.Background(), "alice", decimal.NewFromInt(250))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 409")
}
