package wallets

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chainguard-ml/chainguard/internal/logging"
)

// Handler provides HTTP endpoints for wallet lookups and network stats.
type Handler struct {
	service   *Service
	feedLimit int
}

// NewHandler creates a new wallets handler. feedLimit caps the /feed page
// size; zero falls back to the service default.
func NewHandler(service *Service, feedLimit int) *Handler {
	return &Handler{service: service, feedLimit: feedLimit}
}

// RegisterRoutes sets up wallet endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address", h.GetWallet)
	r.GET("/network/stats", h.GetStats)
	r.GET("/feed", h.GetFeed)
}

// GetWallet returns the reputation record for one address plus its most
// recent transactions.
func (h *Handler) GetWallet(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	record, entries, err := h.service.Lookup(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "Address has no scored transaction history",
			})
			return
		}
		logging.L(c.Request.Context()).Error("wallet lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load wallet",
		})
		return
	}

	if entries == nil {
		entries = []*LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":              record,
		"recent_transactions": entries,
	})
}

// GetStats returns ledger-wide totals.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load network stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetFeed returns the most recently scored transactions.
func (h *Handler) GetFeed(c *gin.Context) {
	limit := h.feedLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	entries, err := h.service.Feed(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("feed query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction feed",
		})
		return
	}

	if entries == nil {
		entries = []*LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}
