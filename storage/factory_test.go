package storage

import (
	"testing"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackendFor_File(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	dir := t.TempDir()
	backend, err := factory.StorageBackendFor(interfaces.StorageBackendLocation("file://" + dir))
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)
}

func TestStorageBackendFor_S3(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor("s3://AKID:SECRET@key-bucket/gateway/?region=eu-west-1")
	require.NoError(t, err)
	require.IsType(t, &S3Backend{}, backend)
	assert.Equal(t, "s3-key-bucket", backend.Name())
}

func TestStorageBackendFor_IPFS(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor("ipfs://127.0.0.1:5001/keys")
	require.NoError(t, err)
	require.IsType(t, &IPFSBackend{}, backend)
	assert.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())
}

func TestStorageBackendFor_Vault(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor("vault://token@127.0.0.1:8200/secret/gateway-keys")
	require.NoError(t, err)
	require.IsType(t, &VaultBackend{}, backend)
	assert.Equal(t, "vault-secret-gateway-keys", backend.Name())
}

func TestStorageBackendFor_Invalid(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	tests := []struct {
		name string
		uri  string
	}{
		{"unsupported scheme", "gopher://example.com/keys"},
		{"vault missing data path", "vault://127.0.0.1:8200/secret"},
		{"s3 missing bucket", "s3:///gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.StorageBackendFor(interfaces.StorageBackendLocation(tt.uri))
			assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
		})
	}
}
