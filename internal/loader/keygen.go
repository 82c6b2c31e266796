package loader

import (
	"sort"
	"strings"
)

// Key names a cached resource and binds it to the type of its value.
// Two keys with the same name share one cache slot, so they must agree on T.
type Key[T any] struct {
	name string
}

// NewKey returns a key for a fixed resource name such as "files"
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// KeyFor builds a stable key from a resource path and its query params.
// Params are sorted so the same request always maps to the same slot.
func KeyFor[T any](path string, params map[string]string) Key[T] {
	return Key[T]{name: keyFor(path, params)}
}

// Name returns the cache slot name
func (k Key[T]) Name() string { return k.name }

func (k Key[T]) String() string { return k.name }

func keyFor(path string, params map[string]string) string {
	cleanPath := strings.Trim(path, "/")

	var parts []string
	for k, v := range params {
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	if len(parts) == 0 {
		return cleanPath
	}
	sort.Strings(parts)

	return cleanPath + "?" + strings.Join(parts, "&")
}
