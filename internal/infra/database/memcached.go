package database

import (
	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached opens the client backing the collection read cache.
func NewMemcached(server string) *memcache.Client {
	return memcache.New(server)
}
