package keymanager

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/ruteri/confidential-chat-gateway/kms"
	"github.com/ruteri/confidential-chat-gateway/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyResource = "gateway-signing-key"

func testSetup(t *testing.T) (*Manager, interfaces.StorageBackend, *kms.SimpleKMS) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)

	simpleKMS, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	return New(backend, simpleKMS, testKeyResource, log), backend, simpleKMS
}

// sealTestKey generates a fresh secp256k1 key, seals its hex encoding, and
// stores the blob under name. Returns the expected address hex.
func sealTestKey(t *testing.T, backend interfaces.StorageBackend, k *kms.SimpleKMS, name interfaces.KeyObjectName) string {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("0x" + hex.EncodeToString(crypto.FromECDSA(key)))

	blob, err := k.Encrypt(testKeyResource, plaintext)
	require.NoError(t, err)
	require.NoError(t, backend.Store(context.Background(), name, blob))

	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestManager_ListEmpty(t *testing.T) {
	mgr, _, _ := testSetup(t)

	names, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestManager_LoadAndAddress(t *testing.T) {
	mgr, backend, simpleKMS := testSetup(t)
	want := sealTestKey(t, backend, simpleKMS, "signing-key.enc")

	addr, err := mgr.Load(context.Background(), "signing-key.enc")
	require.NoError(t, err)
	assert.Equal(t, want, addr.Hex())

	got, err := mgr.Address()
	require.NoError(t, err)
	assert.Equal(t, want, got.Hex())

	signer, err := mgr.Signer()
	require.NoError(t, err)
	assert.Equal(t, want, crypto.PubkeyToAddress(signer.PublicKey).Hex())
}

func TestManager_LoadIdempotent(t *testing.T) {
	mgr, backend, simpleKMS := testSetup(t)
	want := sealTestKey(t, backend, simpleKMS, "signing-key.enc")

	first, err := mgr.Load(context.Background(), "signing-key.enc")
	require.NoError(t, err)
	second, err := mgr.Load(context.Background(), "signing-key.enc")
	require.NoError(t, err)

	assert.Equal(t, want, first.Hex())
	assert.Equal(t, first, second)
}

func TestManager_LoadMissingObject(t *testing.T) {
	mgr, _, _ := testSetup(t)

	_, err := mgr.Load(context.Background(), "no-such-key.enc")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestManager_LoadCorruptedBlob(t *testing.T) {
	mgr, backend, _ := testSetup(t)
	require.NoError(t, backend.Store(context.Background(), "bad.enc", []byte("not a sealed blob")))

	_, err := mgr.Load(context.Background(), "bad.enc")
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestManager_AddressBeforeLoad(t *testing.T) {
	mgr, _, _ := testSetup(t)

	_, err := mgr.Address()
	assert.ErrorIs(t, err, interfaces.ErrNoKeyLoaded)

	_, err = mgr.Signer()
	assert.ErrorIs(t, err, interfaces.ErrNoKeyLoaded)
}

func TestManager_RawKeyMaterial(t *testing.T) {
	mgr, backend, simpleKMS := testSetup(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	blob, err := simpleKMS.Encrypt(testKeyResource, crypto.FromECDSA(key))
	require.NoError(t, err)
	require.NoError(t, backend.Store(context.Background(), "raw.enc", blob))

	addr, err := mgr.Load(context.Background(), "raw.enc")
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
}
