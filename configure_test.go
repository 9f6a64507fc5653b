package apikit

import (
	"errors"
	"net/http"
	"sync"
	"testing"
)

func TestDefaultBeforeConfigure(t *testing.T) {
	resetDefault()

	if _, err := Default(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Default() err = %v, want ErrNotConfigured", err)
	}
	if _, err := Queries(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Queries() err = %v, want ErrNotConfigured", err)
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	resetDefault()
	defer resetDefault()

	first := Configure("https://api.example.com", StaticSession("a"))
	second := Configure("https://other.example.com", StaticSession("b"))
	third := Configure("https://third.example.com", nil)

	if first != second || second != third {
		t.Error("Configure returned different clients across calls")
	}
	if first.BaseURL() != "https://api.example.com" {
		t.Errorf("BaseURL() = %q, want the first call's value", first.BaseURL())
	}
}

func TestConfigureMiddlewareCountStable(t *testing.T) {
	resetDefault()
	defer resetDefault()

	noop := Middleware(func(req *http.Request, next http.RoundTripper) (*http.Response, error) {
		return next.RoundTrip(req)
	})

	client := Configure("https://api.example.com", StaticSession("a"), WithMiddleware(noop))
	count := len(client.middleware)

	for i := 0; i < 5; i++ {
		Configure("https://api.example.com", StaticSession("a"), WithMiddleware(noop))
	}

	if len(client.middleware) != count {
		t.Errorf("middleware count drifted from %d to %d across repeat Configure calls", count, len(client.middleware))
	}
}

func TestConfigureConcurrent(t *testing.T) {
	resetDefault()
	defer resetDefault()

	const goroutines = 16
	clients := make([]*Client, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i] = Configure("https://api.example.com", StaticSession("a"))
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if clients[i] != clients[0] {
			t.Fatal("concurrent Configure calls produced different clients")
		}
	}
}

func TestDefaultAfterConfigure(t *testing.T) {
	resetDefault()
	defer resetDefault()

	configured := Configure("https://api.example.com", StaticSession("a"))

	got, err := Default()
	if err != nil {
		t.Fatalf("Default() err = %v", err)
	}
	if got != configured {
		t.Error("Default() returned a different client than Configure")
	}

	queries, err := Queries()
	if err != nil {
		t.Fatalf("Queries() err = %v", err)
	}
	if queries != configured.Queries() {
		t.Error("Queries() returned a different cache than the configured client's")
	}
}
