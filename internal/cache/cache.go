package cache

import (
	"strings"
	"time"
)

// Cache defines the interface for caching values of type V
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key from its parts
func Key(parts ...string) string {
	return "tagreveal:v1:" + strings.Join(parts, ":")
}
