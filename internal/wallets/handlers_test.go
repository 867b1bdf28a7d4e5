package wallets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, store Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	handler := NewHandler(NewService(store), 50)
	handler.RegisterRoutes(router.Group("/v1"))
	return router
}

func seedTransactions(t *testing.T, store Store, n int) {
	t.Helper()
	svc := NewService(store)
	for i := 0; i < n; i++ {
		require.NoError(t, svc.RecordTransaction(context.Background(), addrAlice, addrBob, "1000000000000000000", 42, false))
	}
}

func TestGetWallet(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 3)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/"+addrAlice, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Wallet             Record      `json:"wallet"`
		RecentTransactions []*LogEntry `json:"recent_transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, addrAlice, resp.Wallet.Address)
	assert.Equal(t, int64(3), resp.Wallet.TotalTxSent)
	assert.Len(t, resp.RecentTransactions, 3)
}

func TestGetWalletNotFound(t *testing.T) {
	router := setupRouter(t, NewMemoryStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/"+addrCarol, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "wallet_not_found", resp["error"])
}

func TestGetWalletNormalizesAddressParam(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 1)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/0X1111111111111111111111111111111111111111", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetWalletLimitQuery(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 15)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/"+addrAlice+"?limit=5", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RecentTransactions []*LogEntry `json:"recent_transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.RecentTransactions, 5)
}

func TestGetWalletDefaultLimit(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 15)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/"+addrAlice, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RecentTransactions []*LogEntry `json:"recent_transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.RecentTransactions, 10)
}

func TestGetStats(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 2)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/network/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats NetworkStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalWallets)
	assert.Equal(t, int64(2), stats.TotalTransactions)
	assert.Equal(t, int64(0), stats.FlaggedFraud)
}

func TestGetFeed(t *testing.T) {
	store := NewMemoryStore()
	seedTransactions(t, store, 4)
	router := setupRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/feed?limit=2", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []*LogEntry `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Transactions, 2)
}

func TestGetFeedEmpty(t *testing.T) {
	router := setupRouter(t, NewMemoryStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transactions":[]}`, w.Body.String())
}
