package core

import (
	"database/sql/driver"
	"fmt"
)

// TriState is a three-valued flag: unknown (never attempted), true, false.
// Several outcomes in this domain genuinely have three states (a file may
// be downloaded, failed, or never attempted), so this is not
// a bool. It maps to a nullable BOOLEAN column.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

// TriOf converts a plain bool into the matching known state.
func TriOf(v bool) TriState {
	if v {
		return TriTrue
	}
	return TriFalse
}

// IsTrue reports whether the state is known-true.
func (t TriState) IsTrue() bool { return t == TriTrue }

// IsFalse reports whether the state is known-false.
func (t TriState) IsFalse() bool { return t == TriFalse }

// Known reports whether the state holds a definite value.
func (t TriState) Known() bool { return t != TriUnknown }

func (t TriState) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Value implements driver.Valuer; unknown maps to SQL NULL.
func (t TriState) Value() (driver.Value, error) {
	switch t {
	case TriTrue:
		return true, nil
	case TriFalse:
		return false, nil
	default:
		return nil, nil
	}
}

// Scan implements sql.Scanner for nullable BOOLEAN columns.
func (t *TriState) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = TriUnknown
	case bool:
		*t = TriOf(v)
	default:
		return fmt.Errorf("cannot scan %T into TriState", src)
	}
	return nil
}
