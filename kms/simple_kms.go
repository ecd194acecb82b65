package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ruteri/confidential-chat-gateway/cryptoutils"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// Decrypter is the decrypt primitive the key manager depends on:
// (key resource name, ciphertext) -> plaintext.
type Decrypter interface {
	Decrypt(keyResource string, ciphertext []byte) ([]byte, error)
}

// SimpleKMS implements the decrypt primitive with keys derived
// deterministically from a master key. Inside a confidential VM the master
// key arrives through the launch policy; in development it comes from a flag.
type SimpleKMS struct {
	masterKey []byte
	mu        sync.RWMutex
}

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	return &SimpleKMS{masterKey: key}, nil
}

// Decrypt unseals a ciphertext sealed against the named key resource.
// Any rejection (corrupted blob, blob sealed for a different resource) is
// reported as interfaces.ErrDecryptionFailed.
func (k *SimpleKMS) Decrypt(keyResource string, ciphertext []byte) ([]byte, error) {
	privPEM, err := k.sealingKeyPEM(keyResource)
	if err != nil {
		return nil, err
	}

	plaintext, err := cryptoutils.Unseal(privPEM, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Encrypt seals plaintext against the named key resource. The inverse of
// Decrypt, used by the operator sealing tool and tests.
func (k *SimpleKMS) Encrypt(keyResource string, plaintext []byte) ([]byte, error) {
	pubPEM, err := k.SealingPublicKey(keyResource)
	if err != nil {
		return nil, err
	}
	return cryptoutils.Seal(pubPEM, plaintext)
}

// SealingPublicKey returns the PEM-encoded public key for a key resource,
// for sealing blobs out-of-band without access to the master key holder.
func (k *SimpleKMS) SealingPublicKey(keyResource string) ([]byte, error) {
	privKey, err := k.deriveSealingKey(keyResource)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubKeyBytes}), nil
}

func (k *SimpleKMS) sealingKeyPEM(keyResource string) ([]byte, error) {
	privKey, err := k.deriveSealingKey(keyResource)
	if err != nil {
		return nil, err
	}

	privKeyBytes, err := x509.MarshalECPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privKeyBytes}), nil
}

// deriveSealingKey derives the P-256 sealing key for a key resource from the
// master key. The same (master key, resource) pair always yields the same key.
func (k *SimpleKMS) deriveSealingKey(keyResource string) (*ecdsa.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	h := sha256.New()
	h.Write(k.masterKey)
	h.Write([]byte(keyResource))
	h.Write([]byte("seal"))
	seed := h.Sum(nil)

	curve := elliptic.P256()
	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: curve,
		},
		D: new(big.Int).SetBytes(seed[:32]),
	}
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(seed[:32])

	return privateKey, nil
}
