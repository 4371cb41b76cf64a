// Package apperrors provides categorized errors for the sync pipeline.
//
// Errors are built with a small fluent builder so call sites can attach the
// component that failed and a few key/value pairs for logging:
//
//	return apperrors.New(err).
//		Kind(apperrors.KindSourceUnavailable).
//		Component("alert-client").
//		Context("horizon", "future").
//		Build()
package apperrors

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Kind classifies an error by how the sync pipeline reacts to it.
type Kind string

const (
	// KindSourceUnavailable means an upstream fetch failed. Counted; the run continues.
	KindSourceUnavailable Kind = "source-unavailable"
	// KindRecordInvalid means one incoming record lacked required data. Skipped and counted.
	KindRecordInvalid Kind = "record-invalid"
	// KindMatchUnresolved is informational: a park has no reserve correspondence.
	KindMatchUnresolved Kind = "match-unresolved"
	// KindStorageFailure means a batch write failed and was rolled back.
	KindStorageFailure Kind = "storage-failure"
	// KindScheduleConfigInvalid means the cron expression could not be parsed.
	KindScheduleConfigInvalid Kind = "schedule-config-invalid"
	// KindConfiguration covers any other invalid setting.
	KindConfiguration Kind = "configuration"
	KindGeneric       Kind = "generic"
)

// Error wraps an error with a kind, the component that raised it and context.
type Error struct {
	Err       error
	Kind      Kind
	Component string
	Context   map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	return e.Component + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match for another *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) && other.Err == nil {
		return e.Kind == other.Kind
	}
	return false
}

// ContextString renders context keys in a stable order for log output.
func (e *Error) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
	}
	return strings.Join(parts, " ")
}

// Builder assembles an *Error.
type Builder struct {
	err       error
	kind      Kind
	component string
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *Builder {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &Builder{err: err, kind: KindGeneric}
}

// Newf starts a builder around a formatted error.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

func (b *Builder) Kind(k Kind) *Builder {
	b.kind = k
	return b
}

func (b *Builder) Component(c string) *Builder {
	b.component = c
	return b
}

func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build returns the finished error.
func (b *Builder) Build() *Error {
	e := &Error{
		Err:       b.err,
		Kind:      b.kind,
		Component: b.component,
	}
	if len(b.context) > 0 {
		e.Context = maps.Clone(b.context)
	}
	return e
}

// Sentinel returns a kind-only error usable as an errors.Is target.
func Sentinel(k Kind) error {
	return &Error{Kind: k}
}

// KindOf returns the kind of the first *Error in err's chain, or KindGeneric.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

// IsKind reports whether err's chain contains an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.Err
	}
	return false
}
