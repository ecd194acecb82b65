package interfaces

import (
	"errors"
	"fmt"
	"math/big"
)

// Chat roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is a single entry in the rolling conversation history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NetworkStatus describes the state of the current EVM connection.
// It is recomputed on demand and never persisted.
type NetworkStatus struct {
	Connected   bool     `json:"connected"`
	Name        string   `json:"name"`
	ChainID     *big.Int `json:"chain_id"`
	LatestBlock uint64   `json:"latest_block"`
	GasPrice    *big.Int `json:"gas_price"`
}

// KeyObjectName identifies an encrypted key blob within a storage backend.
// Object names are operator-chosen and must be plain path segments.
type KeyObjectName string

// ErrInvalidObjectName is returned for object names that could escape a
// backend's key namespace.
var ErrInvalidObjectName = errors.New("invalid key object name")

// Validate rejects names that could escape a backend's key namespace.
func (n KeyObjectName) Validate() error {
	if n == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidObjectName)
	}
	for _, r := range string(n) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidObjectName, r)
		}
	}
	if n == "." || n == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidObjectName, string(n))
	}
	return nil
}

func (n KeyObjectName) String() string { return string(n) }
