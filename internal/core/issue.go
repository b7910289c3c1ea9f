package core

import (
	"errors"
	"time"
)

// ActionRequired classifies how an issue code should be handled.
type ActionRequired string

const (
	ActionOpsInput  ActionRequired = "ops_input"
	ActionAutoRetry ActionRequired = "auto_retry"
	ActionNoAction  ActionRequired = "no_action"
)

// Issue is a typed failure record owned by the Run or CheckRun that failed.
type Issue struct {
	ID        string    `db:"id"`
	Code      ErrorCode `db:"code"`
	Message   string    `db:"message"`
	Detail    *string   `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// IssueRule maps an issue code to its action-required classification.
// The scheduler and the adapter shell consult these rules.
type IssueRule struct {
	ID             string         `db:"id"`
	Code           ErrorCode      `db:"code"`
	ActionRequired ActionRequired `db:"action_required"`
}

// IssueFromError builds an Issue from a typed error. Untyped errors
// yield nil; callers decide whether those propagate.
func IssueFromError(id string, err error, now time.Time) *Issue {
	var de *Error
	if !errors.As(err, &de) {
		return nil
	}
	return &Issue{
		ID:        id,
		Code:      de.Code,
		Message:   de.Message,
		CreatedAt: now,
	}
}
