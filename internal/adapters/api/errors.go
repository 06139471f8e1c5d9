package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call to the remote API.
type Kind string

// Error kinds
const (
	KindNetwork        Kind = "network"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindServer         Kind = "server"
	KindUnknown        Kind = "unknown"
)

// CodeValidation is the server code carried by field-level validation failures.
const CodeValidation = "VALIDATION_ERROR"

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a failed remote API call.
type Error struct {
	Kind    Kind
	Op      string // "POST /sessions"
	Status  int    // 0 when no response was received
	Code    string
	Message string
	Details []FieldError
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Fields returns the validation details keyed by field name.
// The first message for a field wins.
func (e *Error) Fields() map[string]string {
	out := make(map[string]string, len(e.Details))
	for _, d := range e.Details {
		if d.Field == "" {
			continue
		}
		if _, ok := out[d.Field]; !ok {
			out[d.Field] = d.Message
		}
	}
	return out
}

// KindOf returns the kind of err, or "" for nil.
// Context cancellation and deadline errors are network failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// IsKind reports whether err has kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// classify maps an HTTP status and server code to a Kind.
func classify(status int, code string) Kind {
	if code == CodeValidation {
		return KindValidation
	}
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// errorBody is the server's error envelope. Some endpoints send the message at
// the top level instead of under "error".
type errorBody struct {
	Error *struct {
		Code    string       `json:"code"`
		Message string       `json:"message"`
		Details []FieldError `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
}

// parseError builds an *Error from a non-2xx response body.
func parseError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != nil {
			e.Code = eb.Error.Code
			e.Message = eb.Error.Message
			e.Details = eb.Error.Details
		}
		if e.Message == "" {
			e.Message = eb.Message
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	e.Kind = classify(status, e.Code)
	return e
}

// networkError wraps a transport failure.
func networkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "the coaching service could not be reached", Err: err}
}
