package apikit

import (
	"fmt"
	"strings"
)

// Key identifies a cached query as an ordered list of segments, for
// example KeyOf("users", "me") or KeyOf("workspaces", workspaceID,
// "members"). Keys are compared structurally: a key is invalidated by
// any declared prefix it extends.
type Key []string

// KeyOf builds a Key from arbitrary segment values. String segments are
// used as-is; everything else is rendered with fmt.Sprint so numeric
// IDs and fmt.Stringer implementations produce stable segments.
func KeyOf(parts ...any) Key {
	k := make(Key, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			k = append(k, v)
		default:
			k = append(k, fmt.Sprint(v))
		}
	}
	return k
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether the key starts with prefix on whole-segment
// boundaries: KeyOf("users", "me") has prefix KeyOf("users") but not
// KeyOf("use"). Every key has the empty prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// canonical is the map form of the key. Segments are joined with a
// separator that cannot appear in URL path segments so ["a/b"] and
// ["a", "b"] stay distinct.
func (k Key) canonical() string {
	return strings.Join(k, "\x1f")
}
