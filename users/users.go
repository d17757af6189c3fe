// Package users keeps the last known authenticated identity of the session.
//
// The identity is persisted through a Storage so a fresh process can show a
// best-effort username before the server has confirmed it.
package users

import (
	"context"
	"errors"
	"strings"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

var ErrWatchUnsupported = errors.New("user storage does not support watching")

// CurrentUser is the identity returned by the "who am I" endpoint.
type CurrentUser struct {
	Username string `json:"username"`
}

// Storage is the durable home of the cached username.
// Load returns "" with a nil error when nothing is stored.
type Storage interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, username string) error
	Remove(ctx context.Context) error
}

// Watcher is implemented by storages that can report changes made by other
// processes. onChange receives the stored username, "" when removed.
// Watch returns once the watch is established and stops when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func(username string)) error
}

// ValidateUsername trims name and rejects blank values.
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", autherrors.Wrapf(autherrors.ErrInvalidUsername, "username must not be blank")
	}
	return name, nil
}

func userFromName(name string) *CurrentUser {
	if name == "" {
		return nil
	}
	return &CurrentUser{Username: name}
}
