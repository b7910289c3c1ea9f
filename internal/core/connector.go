package core

import (
	"time"
)

// ConnectorType distinguishes vendor portals from accounting systems.
type ConnectorType string

const (
	ConnectorVendor     ConnectorType = "vendor"
	ConnectorAccounting ConnectorType = "accounting"
)

// Reserved adapter codes. Manual connectors' runs are carried out by a
// human operator; backlog connectors exist only to park jobs and are
// never runnable.
const (
	AdapterCodeManual  = "manual"
	AdapterCodeBacklog = "backlog"
)

// Connector is the configuration template for one remote system.
type Connector struct {
	ID               string        `db:"id"`
	Name             string        `db:"name"`
	AdapterCode      string        `db:"adapter_code"`
	Type             ConnectorType `db:"type"`
	Capabilities     CapabilityList `db:"capabilities"`
	Enabled          bool          `db:"enabled"`
	CustomProps      PropMap       `db:"custom_props"`
	FrequencyDays    int           `db:"frequency_days"`
	LoginURLEditable bool          `db:"login_url_editable"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// Supports reports whether the connector advertises the capability,
// expanding composite capabilities on both sides.
func (c *Connector) Supports(cap Capability) bool {
	want := cap.Expand()
	have := ExpandAll(c.Capabilities)
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(want) > 0
}

// SupportsAny reports whether at least one leaf of cap is advertised.
// Composite sync runs proceed with whatever subset the connector has.
func (c *Connector) SupportsAny(cap Capability) bool {
	have := ExpandAll(c.Capabilities)
	for _, w := range cap.Expand() {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// IsManual reports whether runs for this connector are executed by hand.
func (c *Connector) IsManual() bool { return c.AdapterCode == AdapterCodeManual }

// Frequency returns the connector's scheduling frequency hint in days,
// defaulting to one day.
func (c *Connector) Frequency() int {
	if c.FrequencyDays <= 0 {
		return 1
	}
	return c.FrequencyDays
}
