// Package api is the typed client for the dualpane backend.
package api

import (
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"syscall"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindPermissionDenied Kind = "PermissionDenied"
	KindConflict         Kind = "Conflict"
	KindConnectionLost   Kind = "ConnectionLost"
	KindBusy             Kind = "Busy"
	KindInvalid          Kind = "Invalid"
	KindUnknown          Kind = "Unknown"
)

// Stable error codes carried in the response envelope.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeConflict         = "CONFLICT"
	CodeConnectionLost   = "CONNECTION_LOST"
	CodeBusy             = "BUSY"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInternal         = "INTERNAL"
)

// Error is returned by every Client method and by the services built on it.
type Error struct {
	Kind    Kind
	Code    string // backend code, if any
	Status  int    // HTTP status, if a response was received
	Op      string // "list", "mkdir", ...
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// CodeForKind maps a kind to the code the backend sends for it.
func CodeForKind(k Kind) string {
	switch k {
	case KindNotFound:
		return CodeNotFound
	case KindPermissionDenied:
		return CodePermissionDenied
	case KindConflict:
		return CodeConflict
	case KindConnectionLost:
		return CodeConnectionLost
	case KindBusy:
		return CodeBusy
	case KindInvalid:
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// StatusForKind maps a kind to the HTTP status the backend answers with.
func StatusForKind(k Kind) int {
	switch k {
	case KindNotFound:
		return nethttp.StatusNotFound
	case KindPermissionDenied:
		return nethttp.StatusForbidden
	case KindConflict:
		return nethttp.StatusConflict
	case KindConnectionLost:
		return nethttp.StatusBadGateway
	case KindBusy:
		return nethttp.StatusServiceUnavailable
	case KindInvalid:
		return nethttp.StatusBadRequest
	default:
		return nethttp.StatusInternalServerError
	}
}

// classify picks the most specific kind from the backend code, the message
// and the HTTP status, in that order.
func classify(code, message string, status int) Kind {
	if k := kindFromCode(code); k != KindUnknown {
		return k
	}
	if k := kindFromMessage(message); k != KindUnknown {
		return k
	}
	return kindFromStatus(status)
}

func kindFromCode(code string) Kind {
	switch strings.ToUpper(code) {
	case CodeNotFound:
		return KindNotFound
	case CodePermissionDenied:
		return KindPermissionDenied
	case CodeConflict:
		return KindConflict
	case CodeConnectionLost:
		return KindConnectionLost
	case CodeBusy:
		return KindBusy
	case CodeInvalidRequest:
		return KindInvalid
	default:
		return KindUnknown
	}
}

func kindFromStatus(status int) Kind {
	switch status {
	case nethttp.StatusNotFound:
		return KindNotFound
	case nethttp.StatusUnauthorized, nethttp.StatusForbidden:
		return KindPermissionDenied
	case nethttp.StatusConflict:
		return KindConflict
	case nethttp.StatusBadRequest, nethttp.StatusUnprocessableEntity:
		return KindInvalid
	case nethttp.StatusBadGateway, nethttp.StatusGatewayTimeout:
		return KindConnectionLost
	case nethttp.StatusServiceUnavailable, nethttp.StatusTooManyRequests:
		return KindBusy
	default:
		return KindUnknown
	}
}

var messageIndicators = []struct {
	kind     Kind
	patterns []string
}{
	{KindConflict, []string{"already exists", "file exists", "duplicate", "name already in use"}},
	{KindPermissionDenied, []string{"permission denied", "access denied", "forbidden", "not authorized"}},
	{KindNotFound, []string{"no such file", "not found", "does not exist", "not exist"}},
	{KindConnectionLost, []string{"connection lost", "connection reset", "broken pipe", "connection refused"}},
}

func kindFromMessage(message string) Kind {
	msg := strings.ToLower(message)
	for _, ind := range messageIndicators {
		for _, p := range ind.patterns {
			if strings.Contains(msg, p) {
				return ind.kind
			}
		}
	}
	return KindUnknown
}

// transportError wraps a failure that happened before any response arrived.
// Caller cancellation stays Unknown; everything else means the backend is unreachable.
func transportError(op string, err error) *Error {
	kind := KindUnknown
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, context.DeadlineExceeded), isConnectionError(err):
		kind = KindConnectionLost
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return kindFromMessage(err.Error()) == KindConnectionLost
}
