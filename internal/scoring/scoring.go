// Package scoring orchestrates the per-request pipeline: wallet counter
// reads, feature encoding, classifier inference, and the deferred ledger
// write. The synchronous half of the pipeline never waits on the write.
package scoring

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainguard-ml/chainguard/internal/classifier"
	"github.com/chainguard-ml/chainguard/internal/features"
	"github.com/chainguard-ml/chainguard/internal/logging"
	"github.com/chainguard-ml/chainguard/internal/metrics"
	"github.com/chainguard-ml/chainguard/internal/traces"
	"github.com/chainguard-ml/chainguard/internal/wallets"
)

// Alert labels returned with every scoring response.
const (
	AlertHighRisk = "CRITICAL: High Risk"
	AlertLowRisk  = "Low Risk"
)

// fraudThreshold is exclusive: a risk score of exactly 50 is not fraud.
const fraudThreshold = 50

// Result is the scoring verdict for one pending transaction.
// SenderHistory is the sender's sent-transaction count as of request
// arrival, before this transaction is booked.
type Result struct {
	IsFraud       bool   `json:"is_fraud"`
	RiskScore     int    `json:"risk_score"`
	Alert         string `json:"alert"`
	SenderHistory int64  `json:"sender_history"`
}

// Service runs the synchronous scoring pipeline.
type Service struct {
	codec  *features.Codec
	scorer classifier.Scorer
	ledger *wallets.Service
}

// NewService creates a scoring service.
func NewService(codec *features.Codec, scorer classifier.Scorer, ledger *wallets.Service) *Service {
	return &Service{codec: codec, scorer: scorer, ledger: ledger}
}

// Score computes the fraud verdict for one pending transaction.
//
// Both wallet counter reads happen concurrently before encoding. A failed
// read degrades to (0, 0) with a warning rather than failing the request;
// the verdict is then computed from degraded frequency features.
func (s *Service) Score(ctx context.Context, tx features.PendingTransaction) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "scoring.Score",
		traces.WalletAddr(tx.From))
	defer span.End()

	fromFreq, toFreq := s.readCounts(ctx, tx)

	vector, err := s.codec.Encode(tx, fromFreq, toFreq)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	probability, err := s.scorer.Score(ctx, vector)
	metrics.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	riskScore := int(probability * 100)
	isFraud := riskScore > fraudThreshold

	alert := AlertLowRisk
	verdict := "legitimate"
	if isFraud {
		alert = AlertHighRisk
		verdict = "fraud"
	}
	metrics.ScoredTransactionsTotal.WithLabelValues(verdict).Inc()
	metrics.RiskScore.Observe(float64(riskScore))
	span.SetAttributes(traces.RiskScore(riskScore), traces.Verdict(isFraud))

	return &Result{
		IsFraud:       isFraud,
		RiskScore:     riskScore,
		Alert:         alert,
		SenderHistory: fromFreq,
	}, nil
}

// readCounts fetches both wallet counters concurrently. Failures degrade to
// zero defaults so a store outage costs scoring accuracy, not availability.
func (s *Service) readCounts(ctx context.Context, tx features.PendingTransaction) (int64, int64) {
	var fromFreq, toFreq int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sent, _, err := s.ledger.ReadCounts(gctx, tx.From)
		if err != nil {
			logging.L(ctx).Warn("sender counter read degraded to zero",
				"address", tx.From, "error", err)
			metrics.LedgerReadFailuresTotal.Inc()
			return nil
		}
		fromFreq = sent
		return nil
	})
	g.Go(func() error {
		_, received, err := s.ledger.ReadCounts(gctx, tx.To)
		if err != nil {
			logging.L(ctx).Warn("receiver counter read degraded to zero",
				"address", tx.To, "error", err)
			metrics.LedgerReadFailuresTotal.Inc()
			return nil
		}
		toFreq = received
		return nil
	})
	_ = g.Wait()

	return fromFreq, toFreq
}
