package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/users"
)

var _ users.Storage = (*FakeStore)(nil)
var _ users.Watcher = (*FakeStore)(nil)

// FakeStore is an in-memory users.Storage. The *Err fields make the next and
// every following call of that method fail until they are reset.
type FakeStore struct {
	lock     sync.RWMutex
	values   map[string]string
	key      string
	watchers []func(string)

	LoadErr   error
	SaveErr   error
	RemoveErr error
}

func NewFakeStore(key string) *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
		key:    key,
	}
}

// NewFakeStoreWith returns a store already holding username.
func NewFakeStoreWith(key, username string) *FakeStore {
	fs := NewFakeStore(key)
	fs.values[key] = username
	return fs
}

func (fs *FakeStore) Load(_ context.Context) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if fs.LoadErr != nil {
		return "", fs.LoadErr
	}
	return fs.values[fs.key], nil
}

func (fs *FakeStore) Save(_ context.Context, username string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.SaveErr != nil {
		return fs.SaveErr
	}
	fs.values[fs.key] = username
	return nil
}

func (fs *FakeStore) Remove(_ context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.RemoveErr != nil {
		return fs.RemoveErr
	}
	delete(fs.values, fs.key)
	return nil
}

// Stored returns the raw stored value, bypassing LoadErr.
func (fs *FakeStore) Stored() (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	v, ok := fs.values[fs.key]
	return v, ok
}

// Watch registers onChange for ExternalWrite calls.
func (fs *FakeStore) Watch(ctx context.Context, onChange func(string)) error {
	fs.lock.Lock()
	idx := len(fs.watchers)
	fs.watchers = append(fs.watchers, onChange)
	fs.lock.Unlock()

	go func() {
		<-ctx.Done()
		fs.lock.Lock()
		fs.watchers[idx] = nil
		fs.lock.Unlock()
	}()
	return nil
}

// ExternalWrite simulates another process changing the stored value.
// An empty username removes it.
func (fs *FakeStore) ExternalWrite(username string) {
	fs.lock.Lock()
	if username == "" {
		delete(fs.values, fs.key)
	} else {
		fs.values[fs.key] = username
	}
	watchers := make([]func(string), 0, len(fs.watchers))
	for _, w := range fs.watchers {
		if w != nil {
			watchers = append(watchers, w)
		}
	}
	fs.lock.Unlock()

	for _, w := range watchers {
		w(username)
	}
}
