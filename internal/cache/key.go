package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Key derives a deterministic cache key from a provider call. Parameter
// order does not matter; names and values are trimmed, values keep case.
// Every field is length-prefixed before hashing, so no value can spell out
// another parameter.
func Key(provider, operation string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	field := func(s string) {
		fmt.Fprintf(&b, "%d:%s", len(s), s)
	}
	field(strings.ToLower(strings.TrimSpace(provider)))
	field(strings.ToLower(strings.TrimSpace(operation)))
	fmt.Fprintf(&b, "#%d", len(names))
	for _, k := range names {
		field(strings.TrimSpace(k))
		field(strings.TrimSpace(params[k]))
	}
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s:%x", provider, operation, h[:12])
}
