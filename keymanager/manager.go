// Package keymanager holds the gateway's signing key. It fetches the
// encrypted blob from a storage backend, decrypts it through the KMS, and
// keeps the cleartext key in memory only. The cleartext is never logged
// and never written back to storage.
package keymanager

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/ruteri/confidential-chat-gateway/kms"
)

// Manager loads and holds the gateway's EVM signing key.
// All methods are safe for concurrent use.
type Manager struct {
	storage     interfaces.StorageBackend
	kms         kms.Decrypter
	keyResource string
	log         *slog.Logger

	mu         sync.RWMutex
	loadedName interfaces.KeyObjectName
	key        *ecdsa.PrivateKey
	address    common.Address
}

// New creates a key manager backed by the given storage backend and KMS
// decrypter. keyResource names the KMS key used to unseal blobs.
func New(storage interfaces.StorageBackend, decrypter kms.Decrypter, keyResource string, log *slog.Logger) *Manager {
	return &Manager{
		storage:     storage,
		kms:         decrypter,
		keyResource: keyResource,
		log:         log,
	}
}

// List returns the names of encrypted key blobs available in storage.
// An empty backend yields an empty slice.
func (m *Manager) List(ctx context.Context) ([]interfaces.KeyObjectName, error) {
	names, err := m.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list key objects: %w", err)
	}
	return names, nil
}

// Load fetches the named encrypted blob, decrypts it through the KMS, and
// installs the resulting key as the current signing key. Loading the name
// that is already active is a no-op returning the same address.
func (m *Manager) Load(ctx context.Context, name interfaces.KeyObjectName) (common.Address, error) {
	if err := name.Validate(); err != nil {
		return common.Address{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil && m.loadedName == name {
		return m.address, nil
	}

	blob, err := m.storage.Fetch(ctx, name)
	if err != nil {
		return common.Address{}, err
	}

	plaintext, err := m.kms.Decrypt(m.keyResource, blob)
	if err != nil {
		return common.Address{}, err
	}

	key, err := parsePrivateKey(plaintext)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}

	m.loadedName = name
	m.key = key
	m.address = crypto.PubkeyToAddress(key.PublicKey)

	m.log.Info("Signing key loaded",
		slog.String("object", name.String()),
		slog.String("address", m.address.Hex()))

	return m.address, nil
}

// Address returns the address of the currently loaded key, or ErrNoKeyLoaded.
func (m *Manager) Address() (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.key == nil {
		return common.Address{}, interfaces.ErrNoKeyLoaded
	}
	return m.address, nil
}

// Signer returns the currently loaded private key for transaction signing,
// or ErrNoKeyLoaded.
func (m *Manager) Signer() (*ecdsa.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.key == nil {
		return nil, interfaces.ErrNoKeyLoaded
	}
	return m.key, nil
}

// parsePrivateKey accepts either a hex-encoded secp256k1 key (with or
// without 0x prefix, surrounding whitespace tolerated) or the raw 32-byte
// scalar.
func parsePrivateKey(plaintext []byte) (*ecdsa.PrivateKey, error) {
	if len(plaintext) == 32 {
		if key, err := crypto.ToECDSA(plaintext); err == nil {
			return key, nil
		}
	}

	keyHex := strings.TrimSpace(string(plaintext))
	keyHex = strings.TrimPrefix(keyHex, "0x")
	if _, err := hex.DecodeString(keyHex); err != nil {
		return nil, fmt.Errorf("key material is neither raw nor hex encoded")
	}
	return crypto.HexToECDSA(keyHex)
}
