package interfaces

import "errors"

// Sentinel errors shared across components. The HTTP layer maps each of
// these to a status code; components wrap them with context via fmt.Errorf
// and %w so errors.Is keeps working through the chain.
var (
	// ErrDecryptionFailed is returned when the KMS rejects a ciphertext
	// (wrong key resource, corrupted blob, missing permission).
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrNoKeyLoaded is returned when a key-dependent operation runs before
	// any encrypted key has been loaded and decrypted.
	ErrNoKeyLoaded = errors.New("no key loaded")

	// ErrNotConnected is returned by chain operations before a successful
	// connect.
	ErrNotConnected = errors.New("not connected to any EVM network")

	// ErrConnectionFailed is returned when an RPC endpoint cannot be
	// reached or refuses the initial queries.
	ErrConnectionFailed = errors.New("EVM connection failed")

	// ErrUnknownNetwork is returned for a network name with no default RPC
	// endpoint when no explicit URL is supplied.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrInvalidAddress is returned for a malformed EVM address before any
	// RPC call is made.
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrEmptyMessage is returned when a chat message contains no text.
	ErrEmptyMessage = errors.New("empty message")

	// ErrUpstream is returned when the generative-AI completion endpoint
	// fails or returns an unusable response.
	ErrUpstream = errors.New("completion upstream error")
)
