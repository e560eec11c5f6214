package credentials

import (
	"context"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "credentials:"

// MemcachedStore implements Store using memcached. Items never expire.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(k string) string {
	return keyPrefix + k
}

// Get implements Store.Get. Returns false, nil on miss; false, err on error.
func (s *MemcachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return "", false, nil
		}
		return "", false, err
	}
	return string(item.Value), true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key, value string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.client.Set(&memcache.Item{
		Key:   s.key(key),
		Value: []byte(value),
	})
}

// Delete implements Store.Delete. Deleting an absent key is not an error.
func (s *MemcachedStore) Delete(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.client.Delete(s.key(key)); err != nil && err != memcache.ErrCacheMiss {
		return err
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
