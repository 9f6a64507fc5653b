package apikit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Defaults for the query cache lifetime windows.
const (
	// DefaultFreshness is how long a fetched value is served without
	// revalidation.
	DefaultFreshness = 5 * time.Minute

	// DefaultRetention is how long an unread entry is kept before
	// eviction.
	DefaultRetention = 10 * time.Minute

	// DefaultEvictionInterval is how often the cache sweeps for
	// entries past their retention.
	DefaultEvictionInterval = time.Minute
)

// Fetch modes recorded in metrics.
const (
	refetchBlocking   = "blocking"
	refetchBackground = "background"
)

// FetchFunc loads the value for one key. The cache calls it with a
// context detached from any single reader, so a shared fetch survives
// the reader that happened to trigger it.
type FetchFunc func(ctx context.Context) (any, error)

// WriteFunc performs a mutation and returns its result.
type WriteFunc func(ctx context.Context) (any, error)

// QueryConfig assembles a standalone QueryCache. Zero values take the
// package defaults.
type QueryConfig struct {
	Freshness        time.Duration
	Retention        time.Duration
	EvictionInterval time.Duration
	ReadPolicy       RetryPolicy
	WritePolicy      RetryPolicy
	Clock            clockwork.Clock
	Metrics          *MetricsCollector
	Logger           Logger
	Debug            *DebugConfig
}

// QueryCache is the reactive read/write layer on top of the client. It
// keys results by Key, serves them while fresh, revalidates stale
// entries in the background, coalesces concurrent fetches of one key,
// retries per the read and write policies, and invalidates by key
// prefix after successful writes. It is safe for concurrent use.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[string][]chan Update
	lastGen uint64

	group singleflight.Group

	freshness   time.Duration
	retention   time.Duration
	readPolicy  RetryPolicy
	writePolicy RetryPolicy
	clock       clockwork.Clock
	metrics     *MetricsCollector
	logger      Logger
	debug       *DebugConfig

	stop     chan struct{}
	stopOnce sync.Once
}

// NewQueryCache creates a cache and starts its eviction loop. Callers
// must Close it to stop the loop; closing a Client closes its cache.
func NewQueryCache(cfg QueryConfig) *QueryCache {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.EvictionInterval <= 0 {
		cfg.EvictionInterval = DefaultEvictionInterval
	}
	if cfg.ReadPolicy == nil {
		cfg.ReadPolicy = NewReadRetryPolicy()
	}
	if cfg.WritePolicy == nil {
		cfg.WritePolicy = NewWriteRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	q := &QueryCache{
		entries:     make(map[string]*entry),
		subs:        make(map[string][]chan Update),
		freshness:   cfg.Freshness,
		retention:   cfg.Retention,
		readPolicy:  cfg.ReadPolicy,
		writePolicy: cfg.WritePolicy,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		debug:       cfg.Debug,
		stop:        make(chan struct{}),
	}

	go q.evictionLoop(cfg.EvictionInterval)

	return q
}

// Close stops the background eviction loop. The cache stays usable;
// entries simply stop expiring on their own.
func (q *QueryCache) Close() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
}

// Read returns the value under key, loading it with fetch when the
// cache cannot serve it:
//
//   - a fresh entry returns immediately with no network traffic
//   - a stale entry returns immediately and triggers exactly one
//     background revalidation
//   - a missing, expired, or errored entry blocks on a fetch governed
//     by the read retry policy
//
// Concurrent reads of one key share a single fetch and receive the same
// result. A canceled ctx releases only this caller; the shared fetch
// runs to completion for everyone else.
func (q *QueryCache) Read(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	k := key.canonical()
	now := q.clock.Now()

	q.mu.Lock()
	e := q.entries[k]
	if e != nil && now.Sub(e.lastAccess) >= q.retention {
		// Past retention but not swept yet; treat as absent.
		delete(q.entries, k)
		e = nil
	}
	if e == nil {
		e = &entry{key: key, state: EntryIdle, generation: q.nextGen()}
		q.entries[k] = e
	}
	e.lastAccess = now

	if e.state == EntryFresh && !now.Before(e.staleAt) {
		e.state = EntryStale
	}

	switch e.state {
	case EntryFresh:
		value := e.value
		q.mu.Unlock()
		q.metrics.RecordQueryFreshHit()
		return value, nil

	case EntryStale:
		value := e.value
		e.state = EntryRefetching
		q.mu.Unlock()
		q.metrics.RecordQueryStaleHit()
		q.logCache("Serving stale value, revalidating", "key", key.String())
		go q.refetch(key, fetch)
		return value, nil

	case EntryRefetching:
		value := e.value
		q.mu.Unlock()
		q.metrics.RecordQueryStaleHit()
		return value, nil

	case EntryFetching:
		// Joining under the mutex keeps the flight registration totally
		// ordered: a reader that saw Fetching can never start a second
		// fetch.
		ch := q.joinFlight(ctx, key, fetch)
		q.mu.Unlock()
		q.metrics.RecordQueryCoalesced()
		return q.awaitResult(ctx, ch)

	default: // EntryIdle or EntryErrored: start a blocking fetch.
		e.state = EntryFetching
		e.err = nil
		ch := q.joinFlight(ctx, key, fetch)
		q.mu.Unlock()
		q.metrics.RecordQueryMiss()
		return q.awaitResult(ctx, ch)
	}
}

// ReadAs is a typed wrapper around Read for fetch functions returning a
// concrete type.
func ReadAs[T any](ctx context.Context, q *QueryCache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	value, err := q.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, asAPIError(fmt.Errorf("cache entry for %s holds %T, want %T", key, value, zero))
	}
	return typed, nil
}

// Write performs a mutation governed by the write retry policy. Only on
// success does it invalidate every entry whose key extends one of the
// declared prefixes; a failed write returns the classified error and
// leaves the cache untouched.
func (q *QueryCache) Write(ctx context.Context, op WriteFunc, invalidates ...Key) (any, error) {
	value, apiErr := q.runWithRetry(ctx, "write", q.writePolicy, op)
	if apiErr != nil {
		q.metrics.RecordQueryWrite("error")
		return nil, apiErr
	}
	q.metrics.RecordQueryWrite("success")
	q.Invalidate(invalidates...)
	return value, nil
}

// WriteAs is a typed wrapper around Write for operations returning a
// concrete type.
func WriteAs[T any](ctx context.Context, q *QueryCache, op func(ctx context.Context) (T, error), invalidates ...Key) (T, error) {
	value, err := q.Write(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, invalidates...)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, asAPIError(fmt.Errorf("write result holds %T, want %T", value, zero))
	}
	return typed, nil
}

// Invalidate removes every entry whose key extends one of the given
// prefixes and reports how many were dropped. Results of fetches still
// in flight for removed entries are discarded when they complete;
// subsequent reads fetch anew.
func (q *QueryCache) Invalidate(prefixes ...Key) int {
	if len(prefixes) == 0 {
		return 0
	}

	q.mu.Lock()
	removed := 0
	for k, e := range q.entries {
		for _, prefix := range prefixes {
			if e.key.HasPrefix(prefix) {
				delete(q.entries, k)
				// Detach any in-flight fetch so the next read starts a
				// fresh one instead of joining a doomed flight.
				q.group.Forget(k)
				removed++
				break
			}
		}
	}
	size := len(q.entries)
	q.mu.Unlock()

	if removed > 0 {
		q.metrics.RecordQueryEvictions("invalidation", removed)
		q.metrics.RecordQueryEntries(size)
		q.logCache("Invalidated entries", "prefixes", fmt.Sprint(prefixes), "removed", removed)
	}
	return removed
}

// Subscribe registers interest in commits for key. Every Fresh or
// Errored commit is delivered as an Update; a slow subscriber misses
// intermediate updates rather than blocking the cache. The returned
// stop function releases the subscription and closes the channel.
func (q *QueryCache) Subscribe(key Key) (<-chan Update, func()) {
	ch := make(chan Update, 8)
	k := key.canonical()

	q.mu.Lock()
	q.subs[k] = append(q.subs[k], ch)
	q.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			q.mu.Lock()
			chans := q.subs[k]
			for i, c := range chans {
				if c == ch {
					q.subs[k] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
			if len(q.subs[k]) == 0 {
				delete(q.subs, k)
			}
			close(ch)
			q.mu.Unlock()
		})
	}
	return ch, stop
}

// Info returns a read-only snapshot of the entry for key.
func (q *QueryCache) Info(key Key) (EntryInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key.canonical()]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{
		Key:        e.key,
		State:      e.state,
		FetchedAt:  e.fetchedAt,
		StaleAt:    e.staleAt,
		LastAccess: e.lastAccess,
		Err:        e.err,
	}, true
}

// State reports the lifecycle state of the entry for key.
func (q *QueryCache) State(key Key) (EntryState, bool) {
	info, ok := q.Info(key)
	return info.State, ok
}

// Len returns the number of live entries.
func (q *QueryCache) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// joinFlight registers this reader on the single in-flight fetch for
// key, starting one when none is running. Callers hold q.mu. The fetch
// itself runs on a context detached from the reader, so it survives the
// reader that happened to trigger it.
func (q *QueryCache) joinFlight(ctx context.Context, key Key, fetch FetchFunc) <-chan singleflight.Result {
	fetchCtx := context.WithoutCancel(ctx)
	return q.group.DoChan(key.canonical(), func() (any, error) {
		return q.fetchAndCommit(fetchCtx, key, fetch, refetchBlocking)
	})
}

// awaitResult blocks until the shared fetch completes or ctx is done. A
// canceled ctx releases only this waiter; the fetch continues for the
// others.
func (q *QueryCache) awaitResult(ctx context.Context, ch <-chan singleflight.Result) (any, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, asAPIError(res.Err)
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, asAPIError(ctx.Err())
	}
}

// refetch revalidates a stale entry in the background. Exactly one
// refetch runs per stale entry because only the reader that flipped the
// entry to Refetching schedules it.
func (q *QueryCache) refetch(key Key, fetch FetchFunc) {
	_, _, _ = q.group.Do(key.canonical(), func() (any, error) {
		return q.fetchAndCommit(context.Background(), key, fetch, refetchBackground)
	})
}

// fetchAndCommit runs one policy-governed fetch and commits the result
// into the entry, unless the entry was invalidated while the fetch was
// in flight. It returns the fetch outcome either way so coalesced
// waiters always receive a result.
func (q *QueryCache) fetchAndCommit(ctx context.Context, key Key, fetch FetchFunc, mode string) (any, error) {
	k := key.canonical()

	q.mu.Lock()
	var gen uint64
	if e := q.entries[k]; e != nil {
		gen = e.generation
	}
	q.mu.Unlock()

	q.metrics.RecordQueryRefetch(mode)
	value, apiErr := q.runWithRetry(ctx, "read", q.readPolicy, fetch)
	q.commit(key, gen, value, apiErr)

	if apiErr != nil {
		return nil, apiErr
	}
	return value, nil
}

// commit stores a fetch outcome. A missing entry or a generation
// mismatch means the fetch was superseded by an invalidation; its
// result is discarded rather than merged.
func (q *QueryCache) commit(key Key, gen uint64, value any, apiErr *APIError) {
	k := key.canonical()
	now := q.clock.Now()

	q.mu.Lock()
	e := q.entries[k]
	if e == nil || e.generation != gen {
		q.mu.Unlock()
		q.metrics.RecordQueryDiscarded()
		q.logCache("Discarding superseded fetch result", "key", key.String())
		return
	}

	var update Update
	if apiErr != nil {
		e.state = EntryErrored
		e.err = apiErr
		update = Update{Key: key, State: EntryErrored, Err: apiErr}
	} else {
		e.state = EntryFresh
		e.value = value
		e.err = nil
		e.fetchedAt = now
		e.staleAt = now.Add(q.freshness)
		update = Update{Key: key, State: EntryFresh, Value: value}
	}
	e.lastAccess = now
	q.notifyLocked(k, update)
	size := len(q.entries)
	q.mu.Unlock()

	q.metrics.RecordQueryEntries(size)
}

// notifyLocked delivers an update to every subscriber of k without
// blocking. Callers hold q.mu, which also orders sends against channel
// close in Subscribe's stop function.
func (q *QueryCache) notifyLocked(k string, update Update) {
	for _, ch := range q.subs[k] {
		select {
		case ch <- update:
		default:
			q.logCache("Dropping update for slow subscriber", "key", update.Key.String())
		}
	}
}

// runWithRetry executes fn until it succeeds or the policy stops
// retrying, returning the classified error of the final attempt.
func (q *QueryCache) runWithRetry(ctx context.Context, operation string, policy RetryPolicy, fn func(ctx context.Context) (any, error)) (any, *APIError) {
	attempt := 0
	for {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		apiErr := asAPIError(err)

		delay, retry := policy.ShouldRetry(apiErr, attempt)
		if !retry {
			return nil, apiErr
		}

		q.metrics.RecordRetry(operation, attempt+1)
		if q.debug != nil && q.debug.Enabled && q.debug.LogRetries && q.logger != nil {
			q.logger.Info("Retrying operation", "operation", operation, "attempt", attempt+1, "delay", delay, "kind", apiErr.Kind)
		}

		if delay > 0 {
			select {
			case <-q.clock.After(delay):
			case <-ctx.Done():
				return nil, asAPIError(ctx.Err())
			}
		}
		attempt++
	}
}

func (q *QueryCache) nextGen() uint64 {
	q.lastGen++
	return q.lastGen
}

// evictionLoop sweeps entries whose retention has lapsed.
func (q *QueryCache) evictionLoop(interval time.Duration) {
	ticker := q.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			q.evictExpired()
		case <-q.stop:
			return
		}
	}
}

func (q *QueryCache) evictExpired() {
	now := q.clock.Now()

	q.mu.Lock()
	removed := 0
	for k, e := range q.entries {
		if now.Sub(e.lastAccess) >= q.retention {
			delete(q.entries, k)
			removed++
		}
	}
	size := len(q.entries)
	q.mu.Unlock()

	if removed > 0 {
		q.metrics.RecordQueryEvictions("retention", removed)
		q.metrics.RecordQueryEntries(size)
		q.logCache("Evicted entries past retention", "removed", removed)
	}
}

func (q *QueryCache) logCache(msg string, keysAndValues ...any) {
	if q.debug != nil && q.debug.Enabled && q.debug.LogCache && q.logger != nil {
		q.logger.Debug(msg, keysAndValues...)
	}
}
