// Package metadata resolves configuration values from the environment with
// a fallback to the confidential VM's metadata server.
package metadata

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultServerURL is the conventional GCE-style metadata endpoint for
// instance attributes.
const DefaultServerURL = "http://metadata.google.internal/computeMetadata/v1/instance/attributes"

const lookupTimeout = 5 * time.Second

// Resolver looks up configuration values. The zero value is not usable;
// use NewResolver.
type Resolver struct {
	serverURL string
	httpc     *http.Client
}

// NewResolver creates a resolver against the given metadata server URL.
// An empty URL selects DefaultServerURL.
func NewResolver(serverURL string) *Resolver {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Resolver{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		httpc:     &http.Client{Timeout: lookupTimeout},
	}
}

// Get resolves a key from the environment first, then the metadata server.
// Returns the empty string when the key is unset in both.
func (r *Resolver) Get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return r.fromServer(key)
}

// Require is Get with an error when the key resolves to nothing, for
// startup-abort paths.
func (r *Resolver) Require(key string) (string, error) {
	if v := r.Get(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("required variable %s is not set in environment or metadata", key)
}

func (r *Resolver) fromServer(key string) string {
	req, err := http.NewRequest(http.MethodGet, r.serverURL+"/"+key, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := r.httpc.Do(req)
	if err != nil {
		// No metadata server outside the VM; treat as unset.
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return ""
	}
	return string(body)
}
