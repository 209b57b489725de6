// Package ocrerror defines the structured error kinds surfaced by the OCR
// core. Every error carries a stable code and a parameter map so that callers
// (web UI, API clients) can render localized messages without the core being
// locale aware.
package ocrerror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error kind.
type Code string

const (
	// Validation errors, surfaced before any backend is contacted.
	CodeImageURL        Code = "image-url"
	CodeInvalidModel    Code = "invalid-model"
	CodeEngineNotFound  Code = "engine-not-found"
	CodeParamOutOfRange Code = "param-out-of-range"

	// Image acquisition.
	CodeImageRetrieval Code = "image-retrieval"

	// Backend errors.
	CodeGoogle  Code = "google-error"
	CodeProcess Code = "process-error"

	CodeTranskribus               Code = "transkribus-error"
	CodeTranskribusSubmit         Code = "transkribus-submit"
	CodeTranskribusJobFailed      Code = "transkribus-job-failed"
	CodeTranskribusUnauthorized   Code = "transkribus-unauthorized"
	CodeTranskribusEmptyResponse  Code = "transkribus-empty-response"
	CodeTranskribusNoModel        Code = "transkribus-no-model"
	CodeTranskribusMultipleModels Code = "transkribus-multiple-models"

	// Polling deadline exceeded.
	CodeTimeout Code = "timeout"
)

// Error is a structured recognition error.
type Error struct {
	Code   Code
	Params map[string]any
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if len(e.Params) > 0 {
		keys := make([]string, 0, len(e.Params))
		for k := range e.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Params[k]))
		}
		b.WriteString(" [" + strings.Join(parts, " ") + "]")
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code carried by err, or the empty code if err is not a
// structured recognition error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// NewImageURL reports a source URL outside the allow-listed hosts or file
// extensions.
func NewImageURL(hosts []string) *Error {
	return &Error{
		Code:   CodeImageURL,
		Params: map[string]any{"hosts": hosts},
	}
}

// NewImageRetrieval reports a failed image fetch.
func NewImageRetrieval(url string, cause error) *Error {
	return &Error{
		Code:   CodeImageRetrieval,
		Params: map[string]any{"url": url},
		Cause:  cause,
	}
}

// NewInvalidModel reports requested model codes unknown to the engine, under
// the strict invalid-model policy.
func NewInvalidModel(invalid []string) *Error {
	return &Error{
		Code: CodeInvalidModel,
		Params: map[string]any{
			"count":  len(invalid),
			"models": invalid,
		},
	}
}

// NewEngineNotFound reports an unknown engine name.
func NewEngineNotFound(name string) *Error {
	return &Error{
		Code:   CodeEngineNotFound,
		Params: map[string]any{"engine": name},
	}
}

// NewParamOutOfRange reports an engine option outside its allowed range.
func NewParamOutOfRange(param string, given, max int) *Error {
	return &Error{
		Code: CodeParamOutOfRange,
		Params: map[string]any{
			"param":   param,
			"given":   given,
			"maximum": max,
		},
	}
}

// NewGoogle reports a Cloud Vision provider error. The message must already
// be credential free.
func NewGoogle(message string) *Error {
	return &Error{
		Code:   CodeGoogle,
		Params: map[string]any{"message": message},
	}
}

// NewProcess reports a non-benign local process failure.
func NewProcess(binary string, cause error) *Error {
	return &Error{
		Code:   CodeProcess,
		Params: map[string]any{"binary": binary},
		Cause:  cause,
	}
}

// NewTranskribus reports an unexpected Transkribus HTTP status.
func NewTranskribus(statusCode int) *Error {
	return &Error{
		Code:   CodeTranskribus,
		Params: map[string]any{"statusCode": statusCode},
	}
}

// NewTranskribusSubmit reports a job submission rejected by the provider.
func NewTranskribusSubmit() *Error {
	return &Error{Code: CodeTranskribusSubmit}
}

// NewTranskribusJobFailed reports a job that reached the FAILED status.
func NewTranskribusJobFailed(jobID int64) *Error {
	return &Error{
		Code:   CodeTranskribusJobFailed,
		Params: map[string]any{"jobId": jobID},
	}
}

// NewTranskribusUnauthorized reports a 401 that persisted after the single
// token refresh retry.
func NewTranskribusUnauthorized() *Error {
	return &Error{
		Code:   CodeTranskribusUnauthorized,
		Params: map[string]any{"statusCode": 401},
	}
}

// NewTranskribusEmptyResponse reports an HTTP 200 with an empty or
// unparseable body.
func NewTranskribusEmptyResponse() *Error {
	return &Error{Code: CodeTranskribusEmptyResponse}
}

// NewTranskribusNoModel reports a request that resolved to zero usable
// models for an engine that requires exactly one.
func NewTranskribusNoModel() *Error {
	return &Error{Code: CodeTranskribusNoModel}
}

// NewTranskribusMultipleModels reports a request that resolved to more than
// one model for an engine that supports only one.
func NewTranskribusMultipleModels(count int) *Error {
	return &Error{
		Code:   CodeTranskribusMultipleModels,
		Params: map[string]any{"count": count},
	}
}

// NewTimeout reports an expired polling deadline.
func NewTimeout(cause error) *Error {
	return &Error{Code: CodeTimeout, Cause: cause}
}
