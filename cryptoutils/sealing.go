// Package cryptoutils provides the sealing primitives used to protect key
// material at rest: ECIES encryption over P-256 and Argon2id master-key
// derivation.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const gcmNonceSize = 12

// Seal encrypts data using ECIES with the given public key PEM: ECDH key
// agreement with a fresh ephemeral key, SHA-256 key derivation, AES-GCM
// authenticated encryption. The output format is
// [2-byte ephemeral key length][ephemeral key][nonce][ciphertext].
func Seal(publicKeyPEM []byte, data []byte) ([]byte, error) {
	publicKey, err := parsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	ephemeralKey, err := ecdsa.GenerateKey(publicKey.Curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	x, _ := publicKey.Curve.ScalarMult(publicKey.X, publicKey.Y, ephemeralKey.D.Bytes())
	sharedSecret := sha256.Sum256(x.Bytes())

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(sharedSecret[:])
	if err != nil {
		return nil, err
	}

	ciphertext := aesGCM.Seal(nil, nonce, data, nil)
	ephemeralPub := elliptic.Marshal(ephemeralKey.Curve, ephemeralKey.X, ephemeralKey.Y)

	sealed := make([]byte, 2+len(ephemeralPub)+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(sealed[0:2], uint16(len(ephemeralPub)))
	copy(sealed[2:], ephemeralPub)
	copy(sealed[2+len(ephemeralPub):], nonce)
	copy(sealed[2+len(ephemeralPub)+len(nonce):], ciphertext)

	return sealed, nil
}

// Unseal decrypts data produced by Seal using the corresponding private key
// PEM. It recovers the ephemeral public key from the blob, repeats the ECDH
// agreement and opens the AES-GCM ciphertext.
func Unseal(privateKeyPEM []byte, sealed []byte) ([]byte, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	if len(sealed) < 2 {
		return nil, errors.New("sealed data too short")
	}

	ephemeralLen := int(binary.BigEndian.Uint16(sealed[0:2]))
	if len(sealed) < 2+ephemeralLen+gcmNonceSize {
		return nil, errors.New("sealed data has invalid format")
	}

	x, y := elliptic.Unmarshal(privateKey.Curve, sealed[2:2+ephemeralLen])
	if x == nil {
		return nil, errors.New("failed to unmarshal ephemeral public key")
	}

	xShared, _ := privateKey.Curve.ScalarMult(x, y, privateKey.D.Bytes())
	sharedSecret := sha256.Sum256(xShared.Bytes())

	aesGCM, err := newGCM(sharedSecret[:])
	if err != nil {
		return nil, err
	}

	nonceStart := 2 + ephemeralLen
	nonce := sealed[nonceStart : nonceStart+gcmNonceSize]
	ciphertext := sealed[nonceStart+gcmNonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// DeriveMasterKey derives a 32-byte KMS master key from an operator
// passphrase using Argon2id, so deployments can avoid shipping raw key bytes
// in flags. The salt must be stable per deployment.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	// Parameters: time=1, memory=64MiB, threads=4, keyLen=32
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func parsePublicKeyPEM(publicKeyPEM []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	keyInterface, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := keyInterface.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	return publicKey, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
