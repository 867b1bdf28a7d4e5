package scoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainguard-ml/chainguard/internal/features"
	"github.com/chainguard-ml/chainguard/internal/logging"
	"github.com/chainguard-ml/chainguard/internal/validation"
)

// Notifier fans a scored transaction out to live subscribers. Broadcasts
// are fire-and-forget; a nil Notifier disables them.
type Notifier interface {
	Broadcast(event any)
}

// ScoredEvent is the payload pushed to live feed subscribers.
type ScoredEvent struct {
	Type      string `json:"type"`
	From      string `json:"from_address"`
	To        string `json:"to_address"`
	Value     string `json:"value"`
	RiskScore int    `json:"risk_score"`
	IsFraud   bool   `json:"is_fraud"`
	Alert     string `json:"alert"`
	ScoredAt  string `json:"scored_at"`
}

// Handler provides the HTTP scoring endpoint.
type Handler struct {
	service  *Service
	writer   *Writer
	notifier Notifier
}

// NewHandler creates a scoring handler.
func NewHandler(service *Service, writer *Writer, notifier Notifier) *Handler {
	return &Handler{service: service, writer: writer, notifier: notifier}
}

// RegisterRoutes sets up the scoring endpoint
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions/score", h.ScoreTransaction)
}

// ScoreTransaction scores one pending transaction and returns the verdict.
// The ledger write is scheduled after the response and never blocks it.
func (h *Handler) ScoreTransaction(c *gin.Context) {
	var tx features.PendingTransaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a valid transaction object",
		})
		return
	}

	if !validation.IsValidAddress(tx.From) || !validation.IsValidAddress(tx.To) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "from_address and to_address must be valid hex addresses",
		})
		return
	}
	tx.From = validation.NormalizeAddress(tx.From)
	tx.To = validation.NormalizeAddress(tx.To)

	result, err := h.service.Score(c.Request.Context(), tx)
	if err != nil {
		logging.L(c.Request.Context()).Error("scoring pipeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scoring_failed",
			"message": "Failed to score transaction",
		})
		return
	}

	h.writer.Enqueue(tx.From, tx.To, tx.Value, result.RiskScore, result.IsFraud)

	if h.notifier != nil {
		h.notifier.Broadcast(ScoredEvent{
			Type:      "scored_transaction",
			From:      tx.From,
			To:        tx.To,
			Value:     tx.Value,
			RiskScore: result.RiskScore,
			IsFraud:   result.IsFraud,
			Alert:     result.Alert,
			ScoredAt:  time.Now().UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, result)
}
