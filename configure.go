package apikit

import (
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Configure builds the process-wide client on the first call and
// returns it. Subsequent calls return the same client no matter what
// arguments they carry, so a second initialization path (a hot reload,
// a duplicated setup call) cannot stack middleware, reset the query
// cache, or swap credentials mid-flight.
//
// Nothing is configured until Configure runs; there is no import-time
// setup. Applications wanting several independent clients use New
// directly and skip the package-level accessors entirely.
func Configure(baseURL string, sessions SessionSource, opts ...Option) *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return defaultClient
	}

	all := make([]Option, 0, len(opts)+2)
	all = append(all, WithBaseURL(baseURL), WithSessionSource(sessions))
	all = append(all, opts...)
	defaultClient = New(all...)
	return defaultClient
}

// Default returns the client built by Configure, or ErrNotConfigured
// before any Configure call.
func Default() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient == nil {
		return nil, ErrNotConfigured
	}
	return defaultClient, nil
}

// Queries returns the query cache of the client built by Configure, or
// ErrNotConfigured before any Configure call.
func Queries() (*QueryCache, error) {
	client, err := Default()
	if err != nil {
		return nil, err
	}
	return client.Queries(), nil
}

// resetDefault tears down the package-level client so tests can
// exercise Configure repeatedly.
func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		defaultClient.Close()
	}
	defaultClient = nil
}
