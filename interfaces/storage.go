package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// StorageBackendLocation is a URI identifying a storage backend.
// The format is [scheme]://[auth@]host[:port][/path][?params].
type StorageBackendLocation string

// NewStorageBackendLocation validates a location URI string.
func NewStorageBackendLocation(source string) (StorageBackendLocation, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid URI format: %w", err)
	}

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "file", "s3", "ipfs", "vault":
		return StorageBackendLocation(source), nil
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, scheme)
	}
}

func (l StorageBackendLocation) String() string { return string(l) }

// StorageBackend stores and retrieves named key objects. Unlike a
// content-addressed store, objects live at operator-chosen names so that a
// blob sealed out-of-band can be found again at a fixed path.
type StorageBackend interface {
	// Fetch retrieves an object by name. Returns ErrObjectNotFound if the
	// object does not exist.
	Fetch(ctx context.Context, name KeyObjectName) ([]byte, error)

	// Store writes an object under the given name, overwriting any
	// previous content.
	Store(ctx context.Context, name KeyObjectName, data []byte) error

	// List returns the names of all objects held by the backend. An empty
	// backend yields an empty slice, not an error.
	List(ctx context.Context) ([]KeyObjectName, error)

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI the backend was created from.
	LocationURI() string
}

var (
	// ErrObjectNotFound is returned when a requested object does not exist
	// in the storage backend.
	ErrObjectNotFound = errors.New("key object not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
