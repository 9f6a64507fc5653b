package apikit

import (
	"time"
)

// EntryState is the lifecycle position of a cache entry.
type EntryState int

const (
	// EntryIdle marks an entry that exists but has never been fetched.
	// Entries leave Idle as soon as their first read arrives.
	EntryIdle EntryState = iota

	// EntryFetching marks a first fetch in flight with no value to
	// serve yet; concurrent readers block on its completion.
	EntryFetching

	// EntryFresh marks a value younger than the freshness window,
	// served without any network traffic.
	EntryFresh

	// EntryStale marks a value past the freshness window. It is still
	// served, but the next read triggers a background revalidation.
	EntryStale

	// EntryRefetching marks a stale value being served while one
	// background revalidation runs.
	EntryRefetching

	// EntryErrored marks a failed fetch. The classified error is
	// surfaced until the next explicit read starts a new fetch.
	EntryErrored
)

// String implements fmt.Stringer.
func (s EntryState) String() string {
	switch s {
	case EntryIdle:
		return "Idle"
	case EntryFetching:
		return "Fetching"
	case EntryFresh:
		return "Fresh"
	case EntryStale:
		return "Stale"
	case EntryRefetching:
		return "Refetching"
	case EntryErrored:
		return "Errored"
	default:
		return "Invalid"
	}
}

// entry is the cache record for one key. Every field is guarded by the
// QueryCache mutex. The generation identifies which in-flight fetch may
// still commit into this entry; invalidation replaces the entry and
// thereby orphans older fetches.
type entry struct {
	key        Key
	state      EntryState
	value      any
	err        *APIError
	generation uint64
	fetchedAt  time.Time
	staleAt    time.Time
	lastAccess time.Time
}

// EntryInfo is a read-only snapshot of one cache entry, exposed for
// inspection and tests.
type EntryInfo struct {
	Key        Key
	State      EntryState
	FetchedAt  time.Time
	StaleAt    time.Time
	LastAccess time.Time
	Err        *APIError
}

// Update notifies a subscriber that the entry for Key committed a new
// state: a fresh value or a classified error.
type Update struct {
	Key   Key
	State EntryState
	Value any
	Err   *APIError
}
