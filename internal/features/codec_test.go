package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityScaler returns a scaler that leaves the numeric block unchanged
// (mean 0, scale 1), so tests can assert pre-scale values directly.
func identityScaler(t *testing.T) *Scaler {
	t.Helper()
	mean := make([]float64, NumericWidth)
	scale := make([]float64, NumericWidth)
	for i := range scale {
		scale[i] = 1.0
	}
	s, err := NewScaler(NumericColumns, mean, scale)
	require.NoError(t, err)
	return s
}

func simpleTransfer() PendingTransaction {
	return PendingTransaction{
		From:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		To:        "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Value:     "1000000000000000000", // 1 ETH
		Gas:       21000,
		GasPrice:  "50000000000", // 50 Gwei
		InputData: "0x",
		Nonce:     5,
		Timestamp: 1700000000,
	}
}

func TestEncodeVectorShape(t *testing.T) {
	codec := NewCodec(identityScaler(t))

	vector, err := codec.Encode(simpleTransfer(), 3, 7)
	require.NoError(t, err)
	require.Len(t, vector, VectorWidth)

	// Exactly one categorical indicator set
	ones := 0
	for _, v := range vector[NumericWidth:] {
		if v == 1.0 {
			ones++
		} else {
			assert.Equal(t, 0.0, v)
		}
	}
	assert.Equal(t, 1, ones)
}

func TestEncodeSimpleTransferPreScale(t *testing.T) {
	codec := NewCodec(identityScaler(t))

	vector, err := codec.Encode(simpleTransfer(), 0, 0)
	require.NoError(t, err)

	// 1700000000 is 2023-11-14 22:13:20 UTC
	want := []float64{
		math.Log1p(1.0),           // value_eth
		math.Log1p(21000),         // gas
		math.Log1p(50),            // gas_price_gwei
		math.Log1p(5),             // nonce
		math.Log1p(2),             // data_bytes: len("0x")
		22,                        // hour (UTC)
		1.0,                       // gas_usage_ratio
		math.Log1p(21000 * 50.0),  // txn_fee
		0,                         // from_freq
		0,                         // to_freq
	}
	for i, w := range want {
		assert.InDelta(t, w, vector[i], 1e-12, "numeric column %s", NumericColumns[i])
	}

	// Plain transfer selector "0x" sorts first among bucket labels
	assert.Equal(t, 1.0, vector[NumericWidth])
	for _, v := range vector[NumericWidth+1:] {
		assert.Equal(t, 0.0, v)
	}
}

func TestEncodeFrequencyCountersStayRaw(t *testing.T) {
	codec := NewCodec(identityScaler(t))

	// Frequency counters are the only engineered fields the training
	// pipeline did not log-compress; they must reach the scaler as the
	// raw counter values.
	vector, err := codec.Encode(simpleTransfer(), 100, 250)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, vector[8], 1e-12, "from_freq must not be log-compressed")
	assert.InDelta(t, 250.0, vector[9], 1e-12, "to_freq must not be log-compressed")
}

func TestEncodeDeterministic(t *testing.T) {
	codec := NewCodec(identityScaler(t))
	tx := simpleTransfer()

	first, err := codec.Encode(tx, 10, 20)
	require.NoError(t, err)
	second, err := codec.Encode(tx, 10, 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncodeZeroSubstitution(t *testing.T) {
	codec := NewCodec(identityScaler(t))

	tests := []struct {
		name     string
		value    string
		gasPrice string
	}{
		{"garbage value", "not-a-number", "50000000000"},
		{"empty value", "", "50000000000"},
		{"garbage gas price", "1000000000000000000", "???"},
		{"both malformed", "x", "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := simpleTransfer()
			tx.Value = tt.value
			tx.GasPrice = tt.gasPrice

			vector, err := codec.Encode(tx, 0, 0)
			require.NoError(t, err, "malformed fields must not abort scoring")

			if tt.value != "1000000000000000000" {
				assert.Equal(t, 0.0, vector[0], "value_eth falls back to zero")
			}
			if tt.gasPrice != "50000000000" {
				assert.Equal(t, 0.0, vector[2], "gas_price_gwei falls back to zero")
				assert.Equal(t, 0.0, vector[7], "txn_fee follows gas price to zero")
			}
		})
	}
}

func TestCategoricalBuckets(t *testing.T) {
	// Sorted bucket label order: 0x < 0x095ea7b3 < 0x23b872dd < 0xa9059cbb
	// < 0xf7654176 < Other
	wantLabels := []string{
		"method_0x",
		"method_0x095ea7b3",
		"method_0x23b872dd",
		"method_0xa9059cbb",
		"method_0xf7654176",
		"method_Other",
	}
	require.Equal(t, wantLabels, bucketLabels)

	tests := []struct {
		inputData string
		wantIndex int
	}{
		{"0x", 0},
		{"0x095ea7b3" + "000000000000000000000000deadbeef", 1},
		{"0x23b872dd" + "00", 2},
		{"0xa9059cbb", 3},
		{"0xf7654176", 4},
		{"0x12345678", 5},       // unknown selector
		{"", 5},                  // no data
		{"0xa9059c", 5},          // truncated selector
		{"0xA9059CBB", 5},        // case-sensitive match, like training
	}

	for _, tt := range tests {
		t.Run(tt.inputData, func(t *testing.T) {
			block := categoricalBlock(tt.inputData)
			require.Len(t, block, CategoricalWidth)
			for i, v := range block {
				if i == tt.wantIndex {
					assert.Equal(t, 1.0, v)
				} else {
					assert.Equal(t, 0.0, v)
				}
			}
		})
	}
}

func TestDataBytesCountsHexCharacters(t *testing.T) {
	codec := NewCodec(identityScaler(t))

	// "0xa9059cbb" is 10 characters; the decoded payload would be 4 bytes.
	// The model was trained on character length.
	tx := simpleTransfer()
	tx.InputData = "0xa9059cbb"

	vector, err := codec.Encode(tx, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Log1p(10), vector[4], 1e-12)
}

func TestParseDecimalOrZero(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     float64
	}{
		{"1000000000000000000", 18, 1.0},
		{"500000000000000000", 18, 0.5},
		{"50000000000", 9, 50.0},
		{"0", 18, 0.0},
		{"", 18, 0.0},
		{"abc", 18, 0.0},
		{"1.5e18", 18, 1.5}, // scientific notation survives big.Float parsing
	}

	for _, tt := range tests {
		got := parseDecimalOrZero(tt.in, tt.decimals)
		assert.InDelta(t, tt.want, got, 1e-12, "input %q", tt.in)
	}
}

func TestScalerAppliedToWholeBlock(t *testing.T) {
	mean := make([]float64, NumericWidth)
	scale := make([]float64, NumericWidth)
	for i := range mean {
		mean[i] = 1.0
		scale[i] = 2.0
	}
	s, err := NewScaler(NumericColumns, mean, scale)
	require.NoError(t, err)
	codec := NewCodec(s)

	vector, err := codec.Encode(simpleTransfer(), 0, 0)
	require.NoError(t, err)

	// gas_usage_ratio pre-scale is the constant 1.0 -> (1.0-1.0)/2.0 = 0
	assert.InDelta(t, 0.0, vector[6], 1e-12)
	// hour pre-scale is 22 -> (22-1)/2 = 10.5
	assert.InDelta(t, 10.5, vector[5], 1e-12)
	// Categorical block is never scaled
	assert.Equal(t, 1.0, vector[NumericWidth])
}
