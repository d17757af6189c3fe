package users

import (
	"context"

	"github.com/jrsteele09/go-auth-client/internal/observable"
	"github.com/rs/zerolog"
)

// Cache is the process-wide current user. Storage failures never surface to
// callers: a failed load starts empty and a failed write keeps the in-memory
// value.
type Cache struct {
	storage Storage
	value   *observable.Value[string]
	logger  zerolog.Logger
}

type CacheOption func(*Cache)

func WithCacheLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates the cache and seeds it from storage.
func NewCache(ctx context.Context, storage Storage, opts ...CacheOption) *Cache {
	c := &Cache{
		storage: storage,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var initial string
	if storage != nil {
		name, err := storage.Load(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to load cached user, starting without one")
		} else {
			initial = name
		}
	}
	c.value = observable.New(initial)
	return c
}

// Get returns the cached user or nil.
func (c *Cache) Get() *CurrentUser {
	return userFromName(c.value.Get())
}

// Set replaces the cached user and persists it. A nil user, or one without a
// username, clears the cache and removes the stored value.
func (c *Cache) Set(ctx context.Context, user *CurrentUser) {
	var name string
	if user != nil {
		name = user.Username
	}
	c.value.Set(name)

	if c.storage == nil {
		return
	}
	var err error
	if name == "" {
		err = c.storage.Remove(ctx)
	} else {
		err = c.storage.Save(ctx, name)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("username", name).Msg("failed to persist cached user")
	}
}

// Clear is Set(ctx, nil).
func (c *Cache) Clear(ctx context.Context) {
	c.Set(ctx, nil)
}

// Subscribe calls fn with the new user (nil when cleared) on every change.
func (c *Cache) Subscribe(fn func(*CurrentUser)) (unsubscribe func()) {
	return c.value.Subscribe(func(name string) {
		fn(userFromName(name))
	})
}

// Watch applies changes made to the storage by other processes. The changes
// update memory and observers only; they are not written back.
func (c *Cache) Watch(ctx context.Context) error {
	w, ok := c.storage.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, func(name string) {
		if c.value.Set(name) {
			c.logger.Debug().Str("username", name).Msg("cached user changed externally")
		}
	})
}
