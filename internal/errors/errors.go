package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrRefreshFailed  = errors.New("refresh failed")
	ErrSessionExpired = errors.New("session expired")
	ErrLoggedOut      = errors.New("logged out while refresh was in flight")
	ErrNotLoggedIn    = errors.New("not logged in")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Identity errors
	ErrRevalidationDegraded = errors.New("revalidation degraded, using cached user")
	ErrInvalidUsername      = errors.New("invalid username")

	// Navigation errors
	ErrNavigationAborted   = errors.New("navigation aborted by a newer navigation")
	ErrUnknownRoute        = errors.New("unknown route")
	ErrProtectedLoginRoute = errors.New("login route is not public")

	// General errors
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
