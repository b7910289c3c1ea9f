package core

import (
	"fmt"
	"strings"
	"time"
)

// TombstoneSuffix marks soft-deleted rows whose unique key was rewritten.
const TombstoneSuffix = "##deleted"

// Tombstone rewrites a unique-key value so the index frees the original.
// Kept alongside the deleted flag for engines without partial indexes.
func Tombstone(value string, at time.Time) string {
	return fmt.Sprintf("%s##%d%s", value, at.Unix(), TombstoneSuffix)
}

// IsTombstoned reports whether a value carries the deletion suffix.
func IsTombstoned(value string) bool {
	return strings.HasSuffix(value, TombstoneSuffix)
}

// Job binds a connector to one credential pair and one customer account,
// optionally scoped to a location, a location group, and a company set.
type Job struct {
	ID              string     `db:"id"`
	ConnectorID     string     `db:"connector_id"`
	AccountID       string     `db:"account_id"`
	LocationID      *string    `db:"location_id"`
	LocationGroupID *string    `db:"location_group_id"`
	CompanyIDs      StringList `db:"company_ids"`
	Username        string     `db:"username"`
	Password        string     `db:"password"`
	LoginURL        *string    `db:"login_url"`
	Enabled         bool       `db:"enabled"`
	ManualEnabled   bool       `db:"manual_enabled"`
	DisabledReason  *string    `db:"disabled_reason"`
	DisabledText    *string    `db:"disabled_text"`
	CustomProps     PropMap    `db:"custom_props"`
	Deleted         bool       `db:"deleted"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`

	// Connector is populated on read paths that join the connector row.
	Connector *Connector `db:"-"`
}

// Prop resolves a boolean custom property with job-over-connector
// precedence.
func (j *Job) Prop(key string, def bool) bool {
	if j.CustomProps != nil {
		if _, ok := j.CustomProps[key]; ok {
			return j.CustomProps.Bool(key, def)
		}
	}
	if j.Connector != nil {
		return j.Connector.CustomProps.Bool(key, def)
	}
	return def
}

// PropString resolves a string custom property with job-over-connector
// precedence.
func (j *Job) PropString(key, def string) string {
	if j.CustomProps != nil {
		if _, ok := j.CustomProps[key]; ok {
			return j.CustomProps.String(key, def)
		}
	}
	if j.Connector != nil {
		return j.Connector.CustomProps.String(key, def)
	}
	return def
}

// TaskTimeLimits resolves execution limits, job override first.
func (j *Job) TaskTimeLimits() (TimeLimits, bool) {
	if tl, ok := j.CustomProps.TaskTimeLimits(); ok {
		return tl, true
	}
	if j.Connector != nil {
		return j.Connector.CustomProps.TaskTimeLimits()
	}
	return TimeLimits{}, false
}

// IsManual reports whether invoice-download runs for this job are
// executed by a human operator.
func (j *Job) IsManual() bool {
	if j.ManualEnabled {
		return true
	}
	return j.Connector != nil && j.Connector.IsManual()
}

// DisabledReason tags for jobs turned off by ops or by failure handling.
const (
	DisabledCredentialIssue = "credential_issue"
	DisabledByCustomer      = "customer_request"
	DisabledByStaff         = "staff_decision"
)
