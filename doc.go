// Package apikit is the single network access layer for API clients:
// one shared HTTP client, one error vocabulary, one query cache.
//
//   - Authenticated transport: a session source supplies the access
//     token and middleware injects the Authorization header on every
//     request that wants one
//   - Closed error taxonomy: every failure becomes an *APIError with
//     one of seven kinds, so callers switch on Kind instead of
//     inspecting status codes or error strings
//   - Query cache: reads are keyed, cached, and served fresh or
//     stale-while-revalidate; writes run through the same retry policy
//     and invalidate key prefixes on success
//   - Reliability primitives: retries with exponential backoff +
//     jitter, a token-bucket rate limiter, a circuit breaker, and
//     request coalescing for concurrent identical reads
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - One client per process via Configure; explicit New for more
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable metrics
//
// Typical usage:
//
//	client := apikit.Configure("https://api.example.com",
//	    apikit.StaticSession(token),
//	    apikit.WithRateLimit(10, 20),
//	    apikit.WithMetrics(),
//	)
//
//	user, err := apikit.ReadAs(ctx, client.Queries(),
//	    apikit.KeyOf("users", id),
//	    func(ctx context.Context) (User, error) {
//	        var u User
//	        err := client.GetJSON(ctx, "/users/"+id, &u)
//	        return u, err
//	    })
//
// Reads never trigger duplicate fetches: concurrent callers of the
// same key share one request, and stale entries are served immediately
// while a single background refetch refreshes them. The library avoids
// opinionated logging: provide a Logger (e.g. via WithSimpleLogger) +
// enable debug flags selectively (WithDebug / WithDebugConfig) for
// insight without noise.
package apikit
