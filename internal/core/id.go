package core

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes, one per entity kind. Every persisted identifier is
// "<prefix>_<32 hex chars>" so a bare id is self-describing in logs.
const (
	PrefixConnector     = "conn"
	PrefixJob           = "job"
	PrefixJobSchedule   = "jobsch"
	PrefixRun           = "run"
	PrefixFile          = "discfile"
	PrefixCheckRun      = "chrun"
	PrefixEntity        = "discentt"
	PrefixExportRequest = "exreq"
	PrefixIssue         = "issue"
	PrefixMapping       = "piqmap"
	PrefixAction        = "fdact"
	PrefixPayment       = "vndrpmt"
)

// NewID returns a new prefix-tagged opaque identifier.
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IDPrefix returns the prefix part of a tagged identifier, or "" if the
// value does not look like one.
func IDPrefix(id string) string {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return ""
	}
	return prefix
}
