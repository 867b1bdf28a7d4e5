// Package idgen generates random identifiers for ledger entries and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const randomBytes = 12

// WithPrefix returns prefix followed by 24 random hex characters, e.g.
// "txn_3f2a..." or "req_9b01...".
func WithPrefix(prefix string) string {
	var b [randomBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	out := make([]byte, len(prefix)+2*randomBytes)
	copy(out, prefix)
	hex.Encode(out[len(prefix):], b[:])
	return string(out)
}
