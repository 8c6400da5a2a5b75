package storage

import (
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemCachedClient returns a client for the credential cache. An empty
// address disables the cache.
func MemCachedClient(address string, port int) *memcache.Client {
	if address == "" {
		return nil
	}
	client := memcache.New(fmt.Sprintf("%s:%d", address, port))
	client.MaxIdleConns = 1000
	client.Timeout = 500 * time.Millisecond
	return client
}
