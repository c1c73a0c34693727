package network

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork covers transport failures and non-success HTTP statuses.
	ErrNetwork = errors.New("network error")
	// ErrProtocol marks a well-formed request with invalid content.
	ErrProtocol = errors.New("protocol error")
	// ErrNotFound marks an unknown download id.
	ErrNotFound = errors.New("offer not found")
	// ErrLocalIO marks a failure reading or writing local files.
	ErrLocalIO = errors.New("local io error")
)

// StatusError is returned when a peer answers with a non-success status.
type StatusError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.URL, status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, status)
}

// Is reports ErrNetwork for every status and ErrNotFound for 404.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrProtocol:
		return e.StatusCode == http.StatusBadRequest
	default:
		return false
	}
}
