// Package filestore persists the cached username in a small JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
)

var _ users.Storage = (*Store)(nil)
var _ users.Watcher = (*Store)(nil)

// Store keeps a JSON object of key -> username at path. Other keys in the
// file are preserved, so several applications may share one file.
type Store struct {
	path   string
	key    string
	logger zerolog.Logger
	mu     sync.Mutex
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates the store. The parent directory is created with 0700
// permissions; failures there surface on the first Save.
func New(path, key string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		key:    key,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	_ = os.MkdirAll(filepath.Dir(path), 0700)
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", err
	}
	return values[s.key], nil
}

func (s *Store) Save(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking every write.
		s.logger.Warn().Err(err).Str("path", s.path).Msg("replacing unreadable user cache file")
		values = map[string]string{}
	}
	values[s.key] = username
	return s.write(values)
}

func (s *Store) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return s.removeFile()
	}
	if _, ok := values[s.key]; !ok {
		return nil
	}
	delete(values, s.key)
	if len(values) == 0 {
		return s.removeFile()
	}
	return s.write(values)
}

// Watch reports changes to this store's key made by anyone, including this
// process. The parent directory is watched so atomic renames are seen.
func (s *Store) Watch(ctx context.Context, onChange func(username string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("[filestore Watch] create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		_ = w.Close()
		return fmt.Errorf("[filestore Watch] create directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("[filestore Watch] watch %s: %w", dir, err)
	}

	last, _ := s.Load(ctx)
	name := filepath.Base(s.path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				current, err := s.Load(ctx)
				if err != nil {
					s.logger.Debug().Err(err).Msg("ignoring unreadable user cache change")
					continue
				}
				if current == last {
					continue
				}
				last = current
				onChange(current)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Str("path", s.path).Msg("user cache watch error")
			}
		}
	}()
	return nil
}

func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read user cache: %w", err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse user cache: %w", err)
	}
	return values, nil
}

// write replaces the file atomically with 0600 permissions.
func (s *Store) write(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create user cache directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp user cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write user cache: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod user cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close user cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace user cache: %w", err)
	}
	return nil
}

func (s *Store) removeFile() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove user cache: %w", err)
	}
	return nil
}
