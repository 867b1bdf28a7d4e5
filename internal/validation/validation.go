// Package validation provides input validation for the scoring API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// hexRegex validates hex strings (transaction input data, selectors)
var hexRegex = regexp.MustCompile(`^(0x)?[a-fA-F0-9]*$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// IsValidHex checks if a string is valid hex (empty or "0x" alone allowed,
// matching raw transaction input data)
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}

// NormalizeAddress lowercases and trims an Ethereum address
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.ToLower(addr)

	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}

	return addr
}

// AddressParamMiddleware rejects requests whose :address URL parameter is
// not a valid Ethereum address. No-op when the param is absent.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
			})
			return
		}
		c.Next()
	}
}
