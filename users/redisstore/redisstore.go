// Package redisstore persists the cached username in Redis so that several
// client processes on different machines share one last-known identity.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ users.Storage = (*Store)(nil)
var _ users.Watcher = (*Store)(nil)

// Store keeps the username under key. Every write is announced on the
// key's change channel so Watch can follow other processes.
type Store struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New connects using a redis:// URL and checks the connection.
func New(ctx context.Context, url, key string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("[redisstore New] parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisstore New] redis ping failed: %w", err)
	}
	return NewWithClient(client, key, opts...), nil
}

func NewWithClient(client *redis.Client, key string, opts ...Option) *Store {
	s := &Store{
		client: client,
		key:    key,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) channel() string {
	return s.key + ":changed"
}

func (s *Store) Load(ctx context.Context) (string, error) {
	name, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("[redisstore Load] get %s: %w", s.key, err)
	}
	return name, nil
}

func (s *Store) Save(ctx context.Context, username string) error {
	if err := s.client.Set(ctx, s.key, username, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore Save] set %s: %w", s.key, err)
	}
	s.announce(ctx, username)
	return nil
}

func (s *Store) Remove(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("[redisstore Remove] del %s: %w", s.key, err)
	}
	s.announce(ctx, "")
	return nil
}

func (s *Store) announce(ctx context.Context, username string) {
	if err := s.client.Publish(ctx, s.channel(), username).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", s.key).Msg("failed to announce user cache change")
	}
}

// Watch subscribes to the change channel until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(username string)) error {
	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("[redisstore Watch] subscribe %s: %w", s.channel(), err)
	}

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				onChange(msg.Payload)
			}
		}
	}()
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
