package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Recognised custom-property keys. Unknown keys are stored untouched.
const (
	PropTaskTimeLimit        = "celery_task_time_limit"
	PropStrictLocationCheck  = "strict_location_check"
	PropStrictBankAccCheck   = "strict_bank_acc_check"
	PropUsePaymentNumPrefix  = "use_payment_number_prefix"
	PropComputeTextHash      = "compute_extracted_text_hash"
	PropR365AutoApprove      = "r365_auto_approve"
	PropVPNRequired          = "vpn_required"
	PropEDIParser            = "edi_parser"
)

// PropMap is a free-form custom-property map stored as a JSONB column.
type PropMap map[string]any

// Bool reads a boolean property, returning def when absent or mistyped.
func (p PropMap) Bool(key string, def bool) bool {
	if p == nil {
		return def
	}
	v, ok := p[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// String reads a string property, returning def when absent or mistyped.
func (p PropMap) String(key, def string) string {
	if p == nil {
		return def
	}
	s, ok := p[key].(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// TimeLimits holds the soft and hard execution limits for a Run, in seconds.
type TimeLimits struct {
	TimeLimit     int `json:"time_limit"`
	SoftTimeLimit int `json:"soft_time_limit"`
}

// TaskTimeLimits reads PropTaskTimeLimit, returning ok=false when the
// property is absent or malformed.
func (p PropMap) TaskTimeLimits() (TimeLimits, bool) {
	if p == nil {
		return TimeLimits{}, false
	}
	v, ok := p[PropTaskTimeLimit]
	if !ok {
		return TimeLimits{}, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return TimeLimits{}, false
	}
	var tl TimeLimits
	if err := json.Unmarshal(raw, &tl); err != nil || tl.TimeLimit <= 0 {
		return TimeLimits{}, false
	}
	return tl, true
}

// Value implements driver.Valuer.
func (p PropMap) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *PropMap) Scan(src any) error {
	return scanJSON(src, p, "PropMap")
}

// CapabilityList is a connector's ordered capability set, stored as JSONB.
type CapabilityList []Capability

// Value implements driver.Valuer.
func (l CapabilityList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *CapabilityList) Scan(src any) error {
	return scanJSON(src, l, "CapabilityList")
}

// StringList is a JSONB-backed list of identifiers.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	return scanJSON(src, l, "StringList")
}

// IntList is a JSONB-backed list of small integers.
type IntList []int

// Contains reports whether v is in the list.
func (l IntList) Contains(v int) bool {
	for _, x := range l {
		if x == v {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(src any) error {
	return scanJSON(src, l, "IntList")
}

func scanJSON(src, dst any, kind string) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, kind)
	}
}
