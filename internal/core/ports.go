package core

import (
	"context"
	"io"
)

// Dispatcher hands a created Run to an execution substrate. The returned
// id identifies the substrate job when the backend produces one.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *Run, limits TimeLimits) (dispatchID string, err error)
	Stop()
}

// RunExecutor carries out one Run end to end. The engine implements it;
// the worker pool and the crawl command consume it.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) error
}

// BlobStore persists discovered-file contents under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor pulls plain text out of a document, typically a PDF.
type TextExtractor interface {
	Extract(ctx context.Context, path string) ([]byte, error)
}

// NotificationKind tags run-outcome notifications sent to customers.
type NotificationKind string

const (
	NotifyInitialSuccess     NotificationKind = "initial-success"
	NotifyInitialFailure     NotificationKind = "initial-failure"
	NotifyCredentialIssue    NotificationKind = "credential-issue"
	NotifyOperationalFailure NotificationKind = "operational-failure"
	NotifyOperationalSuccess NotificationKind = "operational-success"
)

// Notifier delivers run-outcome notifications. The default implementation
// only logs; delivery transports live outside the core.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, job *Job, run *Run) error
}
