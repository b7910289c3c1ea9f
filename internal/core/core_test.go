package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID(PrefixRun)
	assert.Len(t, id, len(PrefixRun)+1+32)
	assert.Equal(t, PrefixRun, IDPrefix(id))

	other := NewID(PrefixRun)
	assert.NotEqual(t, id, other)
}

func TestCapability_Expand(t *testing.T) {
	assert.Equal(t,
		[]Capability{CapBankAccountImport, CapGLImport, CapVendorImport},
		CapAccountingImportAll.Expand())
	assert.Equal(t, []Capability{CapInvoiceDownload}, CapInvoiceDownload.Expand())

	flat := ExpandAll([]Capability{CapAccountingImportAll, CapVendorImport, CapWebLogin})
	assert.Equal(t,
		[]Capability{CapBankAccountImport, CapGLImport, CapVendorImport, CapWebLogin},
		flat)
}

func TestConnector_Supports(t *testing.T) {
	c := &Connector{Capabilities: CapabilityList{CapBankAccountImport, CapGLImport, CapVendorImport}}
	assert.True(t, c.Supports(CapAccountingImportAll))
	assert.False(t, c.Supports(CapInvoiceDownload))

	partial := &Connector{Capabilities: CapabilityList{CapVendorImport}}
	assert.False(t, partial.Supports(CapAccountingImportAll))
	assert.True(t, partial.SupportsAny(CapAccountingImportAll))
}

func TestRunStatus_Terminal(t *testing.T) {
	for _, s := range []RunStatus{RunSucceeded, RunFailed, RunCanceled, RunPartiallySucceeded} {
		assert.True(t, s.Terminal(), "status %s", s)
	}
	for _, s := range []RunStatus{RunCreated, RunScheduled, RunStarted} {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestTriState(t *testing.T) {
	var ts TriState
	require.NoError(t, ts.Scan(nil))
	assert.False(t, ts.Known())

	require.NoError(t, ts.Scan(true))
	assert.True(t, ts.IsTrue())

	v, err := TriOf(false).Value()
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = TriUnknown.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJob_PropPrecedence(t *testing.T) {
	j := &Job{
		CustomProps: PropMap{PropStrictBankAccCheck: false},
		Connector: &Connector{
			CustomProps: PropMap{
				PropStrictBankAccCheck: true,
				PropVPNRequired:        true,
			},
		},
	}
	assert.False(t, j.Prop(PropStrictBankAccCheck, true), "job override wins")
	assert.True(t, j.Prop(PropVPNRequired, false), "connector fills the gap")
	assert.True(t, j.Prop(PropStrictLocationCheck, true), "default when unset")
}

func TestJob_TaskTimeLimits(t *testing.T) {
	j := &Job{
		Connector: &Connector{
			CustomProps: PropMap{
				PropTaskTimeLimit: map[string]any{"time_limit": 7200, "soft_time_limit": 7000},
			},
		},
	}
	tl, ok := j.TaskTimeLimits()
	require.True(t, ok)
	assert.Equal(t, 7200, tl.TimeLimit)
	assert.Equal(t, 7000, tl.SoftTimeLimit)

	j.CustomProps = PropMap{
		PropTaskTimeLimit: map[string]any{"time_limit": 600, "soft_time_limit": 540},
	}
	tl, ok = j.TaskTimeLimits()
	require.True(t, ok)
	assert.Equal(t, 600, tl.TimeLimit, "job override beats connector default")
}

func TestTombstone(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	got := Tombstone("user@example.com", at)
	assert.Equal(t, "user@example.com##1700000000##deleted", got)
	assert.True(t, IsTombstoned(got))
	assert.False(t, IsTombstoned("user@example.com"))
}

func TestIssueFromError(t *testing.T) {
	now := time.Now()

	typed := NewError(CodeAuthenticationFailedWeb, "bad credentials for %s", "acme")
	issue := IssueFromError("issue_1", typed, now)
	require.NotNil(t, issue)
	assert.Equal(t, CodeAuthenticationFailedWeb, issue.Code)
	assert.Equal(t, "bad credentials for acme", issue.Message)

	wrapped := WrapError(CodeExternalUnavailable, errors.New("503"), "portal down")
	assert.Equal(t, CodeExternalUnavailable, CodeOf(wrapped))

	assert.Nil(t, IssueFromError("issue_2", errors.New("plain"), now))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestClock_Midnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	c := &FixedClock{Instant: time.Date(2026, time.May, 4, 23, 45, 0, 0, loc)}
	today := c.Today()
	assert.Equal(t, time.Date(2026, time.May, 4, 0, 0, 0, 0, loc), today)
}
