package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/sharing"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	DetectionFailure ErrorKind = iota + 1
	TranslationFailure
	NoPendingTranslation
	SinkDispatch
	RateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case DetectionFailure:
		return "detection_failure"
	case TranslationFailure:
		return "translation_failure"
	case NoPendingTranslation:
		return "no_pending_translation"
	case SinkDispatch:
		return "sink_dispatch"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

var (
	ErrDetectionFailed   = errors.New("language detection failed")
	ErrTranslationFailed = errors.New("translation failed")
	ErrSinkDispatch      = errors.New("sink dispatch failed")
	ErrRateLimited       = errors.New("rate limited")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case DetectionFailure:
		return ErrDetectionFailed
	case TranslationFailure:
		return ErrTranslationFailed
	case NoPendingTranslation:
		return sharing.ErrNoPendingTranslation
	case SinkDispatch:
		return ErrSinkDispatch
	case RateLimited:
		return ErrRateLimited
	}
	return nil
}

// Error carries a kind and the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		if s := e.Kind.sentinel(); s != nil {
			return s.Error()
		}
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of a pipeline error, or 0.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// OutcomeError returns a SinkDispatch error naming every failed sink, or nil
// when all of them succeeded.
func OutcomeError(outcome dispatch.Outcome) error {
	var failed []string
	for _, res := range outcome.Ordered() {
		if !res.Success {
			failed = append(failed, fmt.Sprintf("%s: %s", res.Platform, res.Error))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &Error{Kind: SinkDispatch, Err: errors.New(strings.Join(failed, "; "))}
}
