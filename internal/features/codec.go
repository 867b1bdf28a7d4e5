// Package features transforms raw pending-transaction payloads into the
// fixed-length vectors the fraud classifier was trained on.
//
// The column order, unit conversions, log compression, and one-hot encoding
// here must reproduce training-time preprocessing bit-for-bit. Any deviation
// silently corrupts inference, so changes to this package require a matching
// re-export of the model and scaler artifacts.
package features

import (
	"math"
	"math/big"
	"sort"
	"time"
)

// PendingTransaction is a raw, not-yet-mined transaction as submitted for
// scoring. Value and GasPrice stay decimal strings in wei until conversion.
type PendingTransaction struct {
	From      string `json:"from_address"`
	To        string `json:"to_address"`
	Value     string `json:"value"`
	Gas       int64  `json:"gas"`
	GasPrice  string `json:"gas_price"`
	InputData string `json:"input_data"`
	Nonce     int64  `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// NumericColumns is the exact numeric column order the scaler was fitted on.
var NumericColumns = []string{
	"value_eth", "gas", "gas_price_gwei", "nonce", "data_bytes",
	"hour", "gas_usage_ratio", "txn_fee",
	"from_freq", "to_freq",
}

// knownSelectors are the five method selectors the model has dedicated
// one-hot buckets for; everything else falls into "Other".
var knownSelectors = []string{
	"0x",         // simple transfer
	"0xa9059cbb", // ERC20 transfer
	"0x095ea7b3", // approve
	"0x23b872dd", // transferFrom
	"0xf7654176", // withdraw
}

// bucketLabels holds the one-hot column labels in lexicographic order,
// mirroring how the categorical columns were generated at training time.
var bucketLabels = func() []string {
	labels := make([]string, 0, len(knownSelectors)+1)
	for _, sel := range knownSelectors {
		labels = append(labels, "method_"+sel)
	}
	labels = append(labels, "method_Other")
	sort.Strings(labels)
	return labels
}()

// Vector dimensions. The classifier input is the scaled numeric block
// followed by the one-hot selector block.
const (
	NumericWidth     = 10
	CategoricalWidth = 6
	VectorWidth      = NumericWidth + CategoricalWidth
)

// Codec encodes pending transactions into classifier input vectors using a
// fitted scaler. A Codec is immutable and safe for concurrent use.
type Codec struct {
	scaler *Scaler
}

// NewCodec creates a codec around a fitted scaler.
func NewCodec(scaler *Scaler) *Codec {
	return &Codec{scaler: scaler}
}

// Encode maps a pending transaction plus the sender/receiver frequency
// counters into the 16-element feature vector. Malformed transaction fields
// never produce an error (see parseDecimalOrZero); only a scaler width
// mismatch can fail, and that is caught at construction time.
func (c *Codec) Encode(tx PendingTransaction, fromFreq, toFreq int64) ([]float64, error) {
	scaled, err := c.scaler.Transform(numericBlock(tx, fromFreq, toFreq))
	if err != nil {
		return nil, err
	}

	vector := make([]float64, 0, VectorWidth)
	vector = append(vector, scaled...)
	vector = append(vector, categoricalBlock(tx.InputData)...)
	return vector, nil
}

// numericBlock computes the 10-field numeric block after unit conversion,
// feature engineering, and log compression, before scaler normalization.
//
// Hour-of-day is derived in UTC. The training pipeline used the training
// host's local clock; UTC is the fixed policy here so results do not depend
// on server timezone.
func numericBlock(tx PendingTransaction, fromFreq, toFreq int64) []float64 {
	valueETH := parseDecimalOrZero(tx.Value, 18)
	gas := float64(tx.Gas)
	gasPriceGwei := parseDecimalOrZero(tx.GasPrice, 9)
	nonce := float64(tx.Nonce)

	// Character length of the raw hex string, not decoded byte length.
	// The model was trained on this measurement; preserve it as-is.
	dataBytes := float64(len(tx.InputData))

	hour := float64(time.Unix(tx.Timestamp, 0).UTC().Hour())

	// No gas-used figure exists before execution; the training pipeline
	// pinned pending transactions to 1.0.
	gasUsageRatio := 1.0

	txnFee := gas * gasPriceGwei

	return []float64{
		math.Log1p(valueETH),
		math.Log1p(gas),
		math.Log1p(gasPriceGwei),
		math.Log1p(nonce),
		math.Log1p(dataBytes),
		hour,
		gasUsageRatio,
		math.Log1p(txnFee),
		// Frequency counters enter the scaler raw; the training pipeline
		// log-compressed only the six fields above.
		float64(fromFreq),
		float64(toFreq),
	}
}

// categoricalBlock one-hot encodes the method selector bucket. The first 10
// characters of the input data ("0x" prefix + 4-byte selector) select the
// bucket; unknown selectors map to "Other". Output order follows the sorted
// bucket labels.
func categoricalBlock(inputData string) []float64 {
	selector := inputData
	if len(selector) > 10 {
		selector = selector[:10]
	}

	bucket := "Other"
	for _, known := range knownSelectors {
		if selector == known {
			bucket = known
			break
		}
	}

	block := make([]float64, len(bucketLabels))
	label := "method_" + bucket
	for i, l := range bucketLabels {
		if l == label {
			block[i] = 1.0
			break
		}
	}
	return block
}

// parseDecimalOrZero parses an arbitrary-precision decimal string and divides
// by 10^decimals. This is the zero-substitution fallback policy: malformed
// upstream values yield 0.0 instead of an error, because dirty mempool data
// must not abort scoring.
func parseDecimalOrZero(s string, decimals int) float64 {
	f, ok := new(big.Float).SetString(s)
	if !ok {
		return 0.0
	}
	divisor := new(big.Float).SetInt(new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, divisor).Float64()
	return out
}
