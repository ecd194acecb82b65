package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// IPFSBackend implements a storage backend on an IPFS node's Mutable File
// System. Key blobs live under a base directory so they stay addressable
// by operator-chosen names rather than CIDs.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS storage backend connected to the node's API
// at host:port. Key objects live under baseDir in the node's MFS.
func NewIPFSBackend(host, port, baseDir string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	if baseDir == "" {
		baseDir = "/keys"
	}
	if !strings.HasPrefix(baseDir, "/") {
		baseDir = "/" + baseDir
	}
	uri := fmt.Sprintf("ipfs://%s%s", apiURL, baseDir)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		baseDir:     strings.TrimSuffix(baseDir, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Fetch retrieves a key object from the node's MFS by name.
// Returns ErrObjectNotFound if the object doesn't exist or
// ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Fetch(ctx context.Context, name interfaces.KeyObjectName) ([]byte, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	mfsPath := b.objectPath(name)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			b.log.Debug("Key object not found in IPFS",
				slog.String("path", mfsPath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrObjectNotFound
		}

		b.log.Error("Failed to fetch key object from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch key object from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read key object from IPFS: %w", err)
	}

	b.log.Debug("Fetched key object from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store writes a key object into the node's MFS under its name.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Store(ctx context.Context, name interfaces.KeyObjectName, data []byte) error {
	if err := name.Validate(); err != nil {
		return err
	}

	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	mfsPath := b.objectPath(name)
	err := b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write key object to IPFS: %w", err)
	}

	b.log.Debug("Stored key object in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))

	return nil
}

// List enumerates key object names in the backend's MFS directory.
func (b *IPFSBackend) List(ctx context.Context) ([]interfaces.KeyObjectName, error) {
	if !b.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	entries, err := b.shell.FilesLs(ctx, b.baseDir)
	if err != nil {
		// An absent base directory just means nothing stored yet.
		if strings.Contains(err.Error(), "does not exist") {
			return []interfaces.KeyObjectName{}, nil
		}
		return nil, fmt.Errorf("failed to list key objects in IPFS: %w", err)
	}

	names := make([]interfaces.KeyObjectName, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == shell.TDirectory {
			continue
		}
		names = append(names, interfaces.KeyObjectName(entry.Name))
	}
	return names, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) objectPath(name interfaces.KeyObjectName) string {
	return path.Join(b.baseDir, name.String())
}
