// Package notifications pushes run events to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Show failures and run aborts honour the
// notifications.errors switch; the end-of-run summary honours
// notifications.run_summary.
package notifications
