package twins

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// codeModelReferenced is returned when a model is still extended or used as
// a component by another model.
const codeModelReferenced = "ModelReferencesNotDeleted"

// APIError is returned for every failed call to the service, including
// transport failures (Status 0).
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Kind    Kind
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NotFound reports a 404.
func (e *APIError) NotFound() bool { return e.Kind == KindNotFound }

// Conflict reports a 409, which includes models that are still referenced.
func (e *APIError) Conflict() bool { return e.Kind == KindConflict }

// Transient reports a failure that may succeed when retried.
func (e *APIError) Transient() bool { return e.Kind == KindTransient }

// StillReferenced reports a model delete refused because other models use it.
func (e *APIError) StillReferenced() bool {
	return e.Kind == KindConflict && (e.Code == codeModelReferenced || e.Code == "")
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool  { return KindOf(err) == KindConflict }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// errorBody is the service's error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIError(op string, status int, body []byte) *APIError {
	e := &APIError{Op: op, Status: status, Kind: kindForStatus(status)}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		e.Code = eb.Error.Code
		e.Message = eb.Error.Message
	} else {
		e.Message = http.StatusText(status)
	}
	if e.Code == codeModelReferenced {
		e.Kind = KindConflict
	}
	return e
}

func transportError(op string, err error) *APIError {
	return &APIError{Op: op, Kind: KindTransient, Err: err}
}
