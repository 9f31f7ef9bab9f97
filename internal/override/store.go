package override

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

const maxKeyLength = 128

// Logger is the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the part of the MQTT client the store listens on.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Store is a cached view of the parameters in a Repository.
//
// All methods are thread-safe. Get reads only the cache and never blocks
// on the database.
type Store struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]Param
}

// NewStore creates a store with an empty cache. Call RefreshCache to load it.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
		cache:  make(map[string]Param),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// RefreshCache reloads every parameter from the repository.
func (s *Store) RefreshCache(ctx context.Context) error {
	params, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading params: %w", err)
	}

	cache := make(map[string]Param, len(params))
	for _, p := range params {
		cache[p.Key] = p
	}
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	s.logger.Info("param cache refreshed", "count", len(params))
	return nil
}

// Get returns the cached value for key, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key].Value
}

// Lookup returns the cached parameter for key.
func (s *Store) Lookup(key string) (Param, error) {
	s.mu.RLock()
	p, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok {
		return Param{}, ErrParamNotFound
	}
	return p, nil
}

// List returns every cached parameter ordered by key.
func (s *Store) List() []Param {
	s.mu.RLock()
	params := make([]Param, 0, len(s.cache))
	for _, p := range s.cache {
		params = append(params, p)
	}
	s.mu.RUnlock()

	sort.Slice(params, func(i, j int) bool { return params[i].Key < params[j].Key })
	return params
}

// Set validates key, persists the value and updates the cache.
func (s *Store) Set(ctx context.Context, key, value string) (Param, error) {
	if err := ValidateKey(key); err != nil {
		return Param{}, err
	}
	p := Param{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if err := s.repo.Set(ctx, &p); err != nil {
		return Param{}, err
	}

	s.mu.Lock()
	s.cache[key] = p
	s.mu.Unlock()

	s.logger.Info("param set", "key", key, "value", value)
	return p, nil
}

// Delete removes a parameter from the repository and the cache.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := s.repo.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrParamNotFound) {
		return err
	}

	s.mu.Lock()
	_, cached := s.cache[key]
	delete(s.cache, key)
	s.mu.Unlock()

	if err != nil && !cached {
		return err
	}
	s.logger.Info("param cleared", "key", key)
	return nil
}

// Subscribe applies parameter messages published on camerad/config/params/+.
// The handler runs on the MQTT client's goroutine and stores with ctx.
func (s *Store) Subscribe(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(mqtt.Topics{}.AllParams(), 1, func(topic string, payload []byte) error {
		return s.HandleMessage(ctx, topic, payload)
	})
}

// HandleMessage applies one parameter message. An empty payload clears the key.
func (s *Store) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	key, ok := mqtt.Topics{}.ParamKey(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrInvalidKey, topic)
	}
	if len(payload) == 0 {
		if err := s.Delete(ctx, key); err != nil && !errors.Is(err, ErrParamNotFound) {
			return err
		}
		return nil
	}
	_, err := s.Set(ctx, key, string(payload))
	return err
}

// ValidateKey reports ErrInvalidKey unless key is 1-128 characters of
// letters, digits, '_', '-' or '.'.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidKey, maxKeyLength)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}
