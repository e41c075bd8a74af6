package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies remote failures.
type ErrorKind int

const (
	// KindHTTPStatus is a non-success response other than 404.
	KindHTTPStatus ErrorKind = iota
	// KindNotFound means the backend has no such task, or it expired.
	KindNotFound
	// KindNetwork means no response was received.
	KindNetwork
	// KindMalformed means a success response could not be decoded.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// Sentinels usable with errors.Is against an *Error.
var (
	ErrHTTPStatus = errors.New("remote: unexpected status")
	ErrNotFound   = errors.New("remote: not found")
	ErrNetwork    = errors.New("remote: network failure")
	ErrMalformed  = errors.New("remote: malformed response")
)

// Error is returned by every Client operation that fails.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	// Message is human readable: the backend's detail when it sent one.
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrHTTPStatus:
		return e.Kind == KindHTTPStatus
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// IsNotFound reports whether err is a remote not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// statusMessage is the fallback message when the backend sends no detail.
func statusMessage(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "Check not found or expired"
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return "The service rejected the request"
	case code == http.StatusTooManyRequests:
		return "Too many checks, try again later"
	case code >= 500:
		return "The check service is unavailable"
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unexpected response from the check service"
}

func newStatusError(code int, detail string) *Error {
	kind := KindHTTPStatus
	if code == http.StatusNotFound {
		kind = KindNotFound
	}
	msg := detail
	if msg == "" {
		msg = statusMessage(code)
	}
	return &Error{Kind: kind, StatusCode: code, Message: msg}
}
