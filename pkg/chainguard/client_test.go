package chainguard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ScoreTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transactions/score", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var tx Transaction
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
		assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", tx.From)
		assert.Equal(t, int64(21000), tx.Gas)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_fraud":true,"risk_score":87,"alert":"CRITICAL: High Risk","sender_history":12}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.ScoreTransaction(context.Background(), Transaction{
		From:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		To:        "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Value:     "1000000000000000000",
		Gas:       21000,
		GasPrice:  "50000000000",
		InputData: "0x",
		Nonce:     5,
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	assert.True(t, result.IsFraud)
	assert.Equal(t, 87, result.RiskScore)
	assert.Equal(t, "CRITICAL: High Risk", result.Alert)
	assert.Equal(t, int64(12), result.SenderHistory)
}

func TestClient_GetWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"wallet": {"address":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","total_tx_sent":3,"total_tx_received":1,"is_known_scam":false},
			"recent_transactions": [{"id":"txn_abc","from_address":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","risk_score":42}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	history, err := client.GetWallet(context.Background(), "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 25)
	require.NoError(t, err)

	assert.Equal(t, int64(3), history.Wallet.TotalTxSent)
	require.Len(t, history.RecentTransactions, 1)
	assert.Equal(t, "txn_abc", history.RecentTransactions[0].ID)
	assert.Equal(t, 42, history.RecentTransactions[0].RiskScore)
}

func TestClient_GetWallet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"wallet_not_found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetWallet(context.Background(), "0xcccccccccccccccccccccccccccccccccccccccc", 0)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_GetFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feed", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transactions":[{"id":"txn_1","risk_score":90,"is_flagged_fraud":true},{"id":"txn_2","risk_score":10}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	feed, err := client.GetFeed(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, feed, 2)
	assert.Equal(t, "txn_1", feed[0].ID)
	assert.True(t, feed[0].IsFlaggedFraud)
	assert.False(t, feed[1].IsFlaggedFraud)
}

func TestClient_GetNetworkStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/network/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_wallets":120,"total_transactions":450,"flagged_fraud":12,"known_scam_wallets":3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	stats, err := client.GetNetworkStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(120), stats.TotalWallets)
	assert.Equal(t, int64(450), stats.TotalTransactions)
	assert.Equal(t, int64(12), stats.FlaggedFraud)
	assert.Equal(t, int64(3), stats.KnownScamWallets)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"scoring_failed","message":"classifier unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ScoreTransaction(context.Background(), Transaction{})
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "scoring_failed")
	assert.Contains(t, err.Error(), "classifier unavailable")
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream dead"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetNetworkStats(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetFeed(ctx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/network/stats", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	_, err := client.GetNetworkStats(context.Background())
	require.NoError(t, err)
}
