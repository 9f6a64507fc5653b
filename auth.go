package apikit

import (
	"context"
	"fmt"
	"net/http"
)

// SecurityScheme names how a request proves identity.
type SecurityScheme string

const (
	// SchemeBearer injects the current session's access token as a
	// Bearer Authorization header. This is the default for every
	// request.
	SchemeBearer SecurityScheme = "bearer"

	// SchemeNone sends the request unauthenticated even when a session
	// is available, for public endpoints.
	SchemeNone SecurityScheme = "none"
)

// Session is the authentication state attached to outbound requests. A
// zero Session means no user is signed in.
type Session struct {
	AccessToken string
}

// SessionSource supplies the current session at request time. The
// client consults it on every request instead of capturing a token at
// construction, so token rotation and sign-out take effect on the very
// next request. An error from CurrentSession means the session store
// itself failed; the request is not sent and the caller sees a
// KindNetwork error.
type SessionSource interface {
	CurrentSession(ctx context.Context) (Session, error)
}

// SessionSourceFunc adapts a function to the SessionSource interface.
type SessionSourceFunc func(ctx context.Context) (Session, error)

// CurrentSession implements SessionSource.
func (f SessionSourceFunc) CurrentSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// StaticSession returns a source that always serves the same token.
// Useful for tests and service-to-service clients with long-lived
// credentials.
func StaticSession(token string) SessionSource {
	return SessionSourceFunc(func(context.Context) (Session, error) {
		return Session{AccessToken: token}, nil
	})
}

type securitySchemeKey struct{}

// WithSecurityScheme returns a context that applies the given scheme to
// every request carrying it. Operations on public endpoints use
// SchemeNone to skip the Authorization header.
func WithSecurityScheme(ctx context.Context, scheme SecurityScheme) context.Context {
	return context.WithValue(ctx, securitySchemeKey{}, scheme)
}

func securitySchemeFromContext(ctx context.Context) SecurityScheme {
	if s, ok := ctx.Value(securitySchemeKey{}).(SecurityScheme); ok {
		return s
	}
	return SchemeBearer
}

// authMiddleware resolves the current session and decorates the request
// according to its security scheme. A missing session sends the request
// unauthenticated; the server's 401 then classifies as
// KindUnauthorized. The request is cloned before the header is set so
// callers can reuse their *http.Request.
func authMiddleware(source SessionSource) Middleware {
	return func(req *http.Request, next http.RoundTripper) (*http.Response, error) {
		if source == nil || securitySchemeFromContext(req.Context()) == SchemeNone {
			return next.RoundTrip(req)
		}
		session, err := source.CurrentSession(req.Context())
		if err != nil {
			return nil, fmt.Errorf("resolving session: %w", err)
		}
		if session.AccessToken != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+session.AccessToken)
		}
		return next.RoundTrip(req)
	}
}
