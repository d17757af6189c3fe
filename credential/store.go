// Package credential holds the short-lived access credential in process memory.
//
// The credential is never persisted. Expiry is not tracked here; a 401 from
// the server is the only expiry signal the session layer acts on.
package credential

import (
	"sync"

	"github.com/jrsteele09/go-auth-client/internal/observable"
)

type state struct {
	token string
	epoch uint64
}

// Store is the process-wide holder of the access credential.
//
// Writers race only between refresh and logout. Clear always wins: it bumps
// the epoch, and a refresh that started before the clear applies its result
// through SetIfEpoch, which refuses stale epochs.
type Store struct {
	value *observable.Value[state]
}

func NewStore() *Store {
	return &Store{value: observable.New(state{})}
}

// Get returns the credential and whether one is present.
func (s *Store) Get() (string, bool) {
	t := s.value.Get().token
	return t, t != ""
}

// Token returns the credential or "" when absent.
func (s *Store) Token() string {
	return s.value.Get().token
}

// Set replaces the credential, last write wins. An empty token clears.
func (s *Store) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}
	s.value.Update(func(cur state) (state, bool) {
		return state{token: token, epoch: cur.epoch}, true
	})
}

// Clear removes the credential unconditionally and invalidates every epoch
// observed before the call.
func (s *Store) Clear() {
	s.value.Update(func(cur state) (state, bool) {
		return state{epoch: cur.epoch + 1}, true
	})
}

// Epoch identifies the current clear generation.
func (s *Store) Epoch() uint64 {
	return s.value.Get().epoch
}

// SetIfEpoch applies token only if no Clear happened since epoch was read.
func (s *Store) SetIfEpoch(token string, epoch uint64) bool {
	applied := false
	s.value.Update(func(cur state) (state, bool) {
		if cur.epoch != epoch || token == "" {
			return cur, false
		}
		applied = true
		return state{token: token, epoch: cur.epoch}, true
	})
	return applied
}

// Subscribe calls fn with the new credential ("" when cleared) every time the
// credential changes. Epoch-only changes are not reported.
func (s *Store) Subscribe(fn func(token string)) (unsubscribe func()) {
	var mu sync.Mutex
	last := s.Token()
	return s.value.Subscribe(func(next state) {
		mu.Lock()
		if next.token == last {
			mu.Unlock()
			return
		}
		last = next.token
		mu.Unlock()
		fn(next.token)
	})
}
