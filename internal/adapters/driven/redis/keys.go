// Package redis implements the shared-state ports on Redis: the dedupe claim
// key space, watermark documents, and the scheduler lock.
package redis

import "strings"

// DefaultKeyPrefix namespaces every key this package writes.
const DefaultKeyPrefix = "receiptflow:"

// keyspace builds namespaced keys.
type keyspace string

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return keyspace(prefix)
}

func (k keyspace) lock(name string) string       { return string(k) + "lock:" + name }
func (k keyspace) dedupe(key string) string      { return string(k) + "dedupe:" + key }
func (k keyspace) watermark(source string) string { return string(k) + "watermark:" + source }
