package credentials

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultTokenKey is the storage key holding the bearer token.
const DefaultTokenKey = "token"

// Store is persistent key/value storage for client credentials.
// Get returns ok=false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TokenSource reads the bearer token from a Store on every call, so a credential
// written between two calls is used by the second one.
type TokenSource struct {
	store  Store
	key    string
	logger *zap.Logger
}

// NewTokenSource reads key from store. An empty key uses DefaultTokenKey.
func NewTokenSource(store Store, key string, logger *zap.Logger) *TokenSource {
	if key == "" {
		key = DefaultTokenKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSource{store: store, key: key, logger: logger}
}

// Token returns the stored token, or "" when absent or unreadable. Absence is not an
// error here: the backend answers unauthorized and that surfaces as a normal failure.
func (s *TokenSource) Token(ctx context.Context) string {
	tok, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.logger.Debug("credential read failed", zap.String("key", s.key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return tok
}

// InMemoryStore keeps credentials for the lifetime of the process.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]string)}
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
