package core

import (
	"encoding/json"
	"time"
)

// EntityType tags master-data entities observed during a sync Run.
type EntityType string

const (
	EntityBankAccount EntityType = "bank_account"
	EntityGLAccount   EntityType = "gl_account"
	EntityVendor      EntityType = "vendor"
	EntityPayment     EntityType = "payment"
	EntityLocation    EntityType = "location"
)

// DiscoveredEntity is one master-data record observed during a Run.
// (run_id, entity_type, source_entity_id) is unique.
type DiscoveredEntity struct {
	ID             string          `db:"id"`
	RunID          string          `db:"run_id"`
	EntityType     EntityType      `db:"entity_type"`
	SourceEntityID string          `db:"source_entity_id"`
	Payload        json.RawMessage `db:"payload"`
	CreatedAt      time.Time       `db:"created_at"`
}

// ExportRequest records one HTTP request issued to the downstream core
// on behalf of a Run, for audit.
type ExportRequest struct {
	ID           string          `db:"id"`
	RunID        string          `db:"run_id"`
	Method       string          `db:"method"`
	Path         string          `db:"path"`
	RequestBody  json.RawMessage `db:"request_body"`
	StatusCode   int             `db:"status_code"`
	ResponseBody json.RawMessage `db:"response_body"`
	CreatedAt    time.Time       `db:"created_at"`
}

// PIQMapping translates downstream naming to remote-system naming for
// one job. Key is (job_id, entity, lower(mapping_text)).
type PIQMapping struct {
	ID          string     `db:"id"`
	JobID       string     `db:"job_id"`
	Entity      EntityType `db:"entity"`
	MappingText string     `db:"mapping_text"`
	InternalID  *string    `db:"internal_id"`
	Override    *string    `db:"override"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
