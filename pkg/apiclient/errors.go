package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error response from the control API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a 409 from the API.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsWrongPassphrase reports whether err is a 401 from the API, which the
// daemon uses for passphrases that fail to authenticate.
func IsWrongPassphrase(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
