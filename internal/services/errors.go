package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrService       = errors.New("service error")
	ErrScriptParse   = errors.New("script parse error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrPublish       = errors.New("publish error")
	ErrConfiguration = errors.New("configuration error")
	ErrStore         = errors.New("store error")

	// ErrTransient flags a failure worth retrying. It is combined with one of
	// the kind markers above rather than used on its own.
	ErrTransient = errors.New("transient failure")
)

// ErrorKind is the short classification persisted with failed ledger records.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindService       ErrorKind = "service"
	KindScriptParse   ErrorKind = "script_parse"
	KindSynthesis     ErrorKind = "synthesis"
	KindPublish       ErrorKind = "publish"
	KindConfiguration ErrorKind = "configuration"
	KindStore         ErrorKind = "store"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth another attempt: explicitly
// flagged failures, network timeouts, and per-call deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// KindOf maps an error chain to the kind recorded in the ledger. A store
// failure dominates everything else because it aborts the run.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrPublish):
		return KindPublish
	case errors.Is(err, ErrSynthesis):
		return KindSynthesis
	case errors.Is(err, ErrScriptParse):
		return KindScriptParse
	case errors.Is(err, ErrService):
		return KindService
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindService
	default:
		return KindUnknown
	}
}

// IsFatalForRun reports whether err must stop the whole run.
func IsFatalForRun(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsFatalForShow reports whether err must skip the rest of the current show.
func IsFatalForShow(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
