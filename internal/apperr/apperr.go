// Package apperr provides tagged application errors: a stable machine-readable
// kind plus structured context fields, so callers can branch on the kind and
// logging can group by it without parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a class of failure. Kinds are stable identifiers; the
// message and fields carry the per-occurrence detail.
type Kind string

const (
	// KindConcurrencyConflict means an append raced another writer on the
	// same aggregate stream. Recoverable: reload, reapply, retry.
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"

	// KindNotFound means an aggregate stream is empty.
	KindNotFound Kind = "NOT_FOUND"

	// KindUpcastConfiguration means a stored schema version has no upgrade
	// path to the latest registered version. Fatal misconfiguration.
	KindUpcastConfiguration Kind = "UPCAST_CONFIGURATION"

	// KindTransientSend means a send failed in a retryable way (network,
	// timeout, provider 5xx).
	KindTransientSend Kind = "TRANSIENT_SEND"

	// KindTerminalSend means the attempt cap was exhausted; the entry is
	// parked as failed and needs operator attention.
	KindTerminalSend Kind = "TERMINAL_SEND"

	// KindStorageUnavailable means the storage engine rejected the operation
	// for reasons unrelated to the data (connection loss, deadlock victim).
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
)

// Error is a tagged error with structured context.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]any
	Err    error
}

// New builds an Error from a kind, a static message and key/value pairs.
// Keys must be strings; a trailing unpaired value is dropped.
func New(kind Kind, msg string, kv ...any) *Error {
	return &Error{Kind: kind, Msg: msg, Fields: fieldMap(kv)}
}

// Wrap attaches a kind and context to an underlying error.
func Wrap(err error, kind Kind, msg string, kv ...any) *Error {
	return &Error{Kind: kind, Msg: msg, Fields: fieldMap(kv), Err: err}
}

func fieldMap(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match two apperr values by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
