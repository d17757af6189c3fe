package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Envelope is the success body of every API response.
type Envelope[T any] struct {
	Code int `json:"code"`
	Data T   `json:"data"`
}

// ErrorResponse is the failure body of every API response.
type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// AccessResponse is the data of login and refresh responses.
type AccessResponse struct {
	Access string `json:"access"`
}

// UserResponse is the data of the "who am I" response.
type UserResponse struct {
	Username string `json:"username"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StatusError is a non-2xx response turned into an error.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Unwrap maps the status onto the shared sentinels, so callers can test a
// failed response with errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return autherrors.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return autherrors.ErrForbidden
	case e.Status == http.StatusNotFound:
		return autherrors.ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return autherrors.ErrInternal
	}
	return nil
}

// IsSuccess reports whether resp carries a 2xx status.
func IsSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// DecodeData reads and closes resp.Body and returns the data field of a 2xx
// envelope. A non-2xx response is returned as *StatusError.
func DecodeData[T any](resp *http.Response) (T, error) {
	var zero T
	defer resp.Body.Close()

	if !IsSuccess(resp) {
		return zero, &StatusError{Status: resp.StatusCode, Message: errorMessage(resp)}
	}

	var env Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("[api DecodeData] decode response: %w", err)
	}
	return env.Data, nil
}

// ErrorMessage reads and closes resp.Body and returns the error field of the
// body, or "Request failed (<status>)" when there is none.
func ErrorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	return errorMessage(resp)
}

func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		var body ErrorResponse
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("Request failed (%d)", resp.StatusCode)
}
