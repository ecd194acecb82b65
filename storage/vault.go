package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// VaultBackend implements a storage backend using HashiCorp Vault's KV v2
// engine. Each key object is stored as a secret whose path ends with the
// object name; the blob bytes are base64-encoded in the "blob" field so
// arbitrary ciphertext survives the JSON round trip.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "gateway-keys")
//   - token: Vault token; empty means the client's default resolution
//     (VAULT_TOKEN environment variable)
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Fetch retrieves a key object from Vault by name.
// It uses the KV v2 API which requires a specific path structure.
func (b *VaultBackend) Fetch(ctx context.Context, name interfaces.KeyObjectName) ([]byte, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	path := b.secretPath(name)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Key object not found in Vault",
			slog.String("path", path))
		return nil, interfaces.ErrObjectNotFound
	}

	// KV v2 wraps the payload in a nested "data" map.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	blobStr, ok := data["blob"].(string)
	if !ok {
		return nil, fmt.Errorf("blob field missing from Vault data")
	}

	blob, err := base64.StdEncoding.DecodeString(blobStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Vault blob: %w", err)
	}

	b.log.Debug("Fetched key object from Vault",
		slog.String("path", path),
		slog.Int("size", len(blob)),
		slog.Duration("duration", time.Since(start)))

	return blob, nil
}

// Store saves a key object to Vault under its name.
func (b *VaultBackend) Store(ctx context.Context, name interfaces.KeyObjectName, data []byte) error {
	if err := name.Validate(); err != nil {
		return err
	}

	path := b.secretPath(name)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"blob": base64.StdEncoding.EncodeToString(data),
		},
	}

	_, err := b.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored key object in Vault",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return nil
}

// List enumerates key object names stored under the backend's data path.
func (b *VaultBackend) List(ctx context.Context) ([]interfaces.KeyObjectName, error) {
	path := fmt.Sprintf("%s/metadata/%s", b.mountPath, b.dataPath)

	secret, err := b.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	names := []interfaces.KeyObjectName{}
	if secret == nil || secret.Data == nil {
		return names, nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return names, nil
	}
	for _, k := range keys {
		keyStr, ok := k.(string)
		if !ok || strings.HasSuffix(keyStr, "/") {
			continue
		}
		names = append(names, interfaces.KeyObjectName(keyStr))
	}
	return names, nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(name interfaces.KeyObjectName) string {
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, name)
}
