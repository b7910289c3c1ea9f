package schedule

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/integrator/internal/core"
)

type fakeHistory struct {
	runs     []*core.Run
	schedule *core.JobSchedule
}

func (f *fakeHistory) LastRun(_ context.Context, jobID string, cap core.Capability) (*core.Run, error) {
	var last *core.Run
	for _, r := range f.runs {
		if r.JobID != jobID || r.Capability != cap {
			continue
		}
		if last == nil || r.CreatedAt.After(last.CreatedAt) {
			last = r
		}
	}
	if last == nil {
		return nil, core.ErrNotFound
	}
	return last, nil
}

func (f *fakeHistory) ListCreatedSince(_ context.Context, jobID string, cap core.Capability, since time.Time) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.runs {
		if r.JobID == jobID && r.Capability == cap && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) GetSchedule(_ context.Context, jobID string) (*core.JobSchedule, error) {
	if f.schedule == nil || f.schedule.JobID != jobID {
		return nil, core.ErrNotFound
	}
	return f.schedule, nil
}

func newEvaluator(h *fakeHistory, at time.Time) *Evaluator {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return New(h, h, &core.FixedClock{Instant: at}, logger)
}

func testJob(manual bool) *core.Job {
	return &core.Job{
		ID: "job_1",
		Connector: &core.Connector{
			ID:            "conn_1",
			AdapterCode:   "acme_foods",
			Enabled:       true,
			FrequencyDays: 1,
		},
		ManualEnabled: manual,
		Enabled:       true,
	}
}

func run(status core.RunStatus, age time.Duration, manual bool, at time.Time) *core.Run {
	return &core.Run{
		ID:         core.NewID(core.PrefixRun),
		JobID:      "job_1",
		Capability: core.CapInvoiceDownload,
		Status:     status,
		IsManual:   manual,
		CreatedAt:  at.Add(-age),
	}
}

func TestInvoiceDownloadAutomated(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name string
		runs []*core.Run
		want bool
	}{
		{
			name: "No history creates",
			runs: nil,
			want: true,
		},
		{
			name: "Last run failed 4h ago creates",
			runs: []*core.Run{run(core.RunFailed, 4*time.Hour, false, now)},
			want: true,
		},
		{
			name: "Last run succeeded 2h ago does not",
			runs: []*core.Run{run(core.RunSucceeded, 2*time.Hour, false, now)},
			want: false,
		},
		{
			name: "Succeeded over 24h ago creates again",
			runs: []*core.Run{run(core.RunSucceeded, 25*time.Hour, false, now)},
			want: true,
		},
		{
			name: "Pending run blocks",
			runs: []*core.Run{
				run(core.RunFailed, 5*time.Hour, false, now),
				run(core.RunScheduled, 4*time.Hour, false, now),
			},
			want: false,
		},
		{
			name: "Three failures in 12h block",
			runs: []*core.Run{
				run(core.RunFailed, 4*time.Hour, false, now),
				run(core.RunFailed, 6*time.Hour, false, now),
				run(core.RunFailed, 8*time.Hour, false, now),
			},
			want: false,
		},
		{
			name: "Two failures still retry",
			runs: []*core.Run{
				run(core.RunFailed, 4*time.Hour, false, now),
				run(core.RunFailed, 8*time.Hour, false, now),
			},
			want: true,
		},
		{
			name: "Three partials in 12h block",
			runs: []*core.Run{
				run(core.RunPartiallySucceeded, 4*time.Hour, false, now),
				run(core.RunPartiallySucceeded, 6*time.Hour, false, now),
				run(core.RunPartiallySucceeded, 8*time.Hour, false, now),
			},
			want: false,
		},
		{
			name: "Last run too recent",
			runs: []*core.Run{run(core.RunFailed, 2*time.Hour, false, now)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvaluator(&fakeHistory{runs: tt.runs}, now)
			got, err := ev.ShouldCreate(ctx, testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvoiceDownloadAutomated_SucceededOver24hCreates(t *testing.T) {
	// A success followed by a failure, both old, frees the job.
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	h := &fakeHistory{runs: []*core.Run{
		run(core.RunSucceeded, 30*time.Hour, false, now),
		run(core.RunFailed, 26*time.Hour, false, now),
	}}
	ev := newEvaluator(h, now)
	got, err := ev.ShouldCreate(context.Background(), testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestInvoiceDownload_JobScheduleGoverns(t *testing.T) {
	// Tuesday 2026-03-10 with a weekly Tuesday schedule.
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Tuesday, now.Weekday())
	sched := &core.JobSchedule{
		JobID:      "job_1",
		Frequency:  core.FreqWeekly,
		DaysOfWeek: core.IntList{int(time.Tuesday)},
	}

	t.Run("Matching day allows", func(t *testing.T) {
		ev := newEvaluator(&fakeHistory{schedule: sched}, now)
		got, err := ev.ShouldCreate(context.Background(), testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("Success today blocks", func(t *testing.T) {
		h := &fakeHistory{
			schedule: sched,
			runs:     []*core.Run{run(core.RunSucceeded, 3*time.Hour, false, now)},
		}
		ev := newEvaluator(h, now)
		got, err := ev.ShouldCreate(context.Background(), testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("Non-matching day blocks even when stale", func(t *testing.T) {
		wednesday := now.AddDate(0, 0, 1)
		ev := newEvaluator(&fakeHistory{schedule: sched}, wednesday)
		got, err := ev.ShouldCreate(context.Background(), testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("Three manual runs today block", func(t *testing.T) {
		h := &fakeHistory{
			schedule: sched,
			runs: []*core.Run{
				run(core.RunFailed, 1*time.Hour, true, now),
				run(core.RunFailed, 2*time.Hour, true, now),
				run(core.RunFailed, 3*time.Hour, true, now),
			},
		}
		ev := newEvaluator(h, now)
		got, err := ev.ShouldCreate(context.Background(), testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestInvoiceDownloadManual(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	job := testJob(true)

	t.Run("Two manual runs allow a third", func(t *testing.T) {
		h := &fakeHistory{runs: []*core.Run{
			run(core.RunFailed, 5*time.Hour, true, now),
			run(core.RunFailed, 9*time.Hour, true, now),
		}}
		got, err := newEvaluator(h, now).ShouldCreate(ctx, job, core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("Third manual run caps the window", func(t *testing.T) {
		h := &fakeHistory{runs: []*core.Run{
			run(core.RunFailed, 5*time.Hour, true, now),
			run(core.RunFailed, 9*time.Hour, true, now),
			run(core.RunFailed, 11*time.Hour, true, now),
		}}
		got, err := newEvaluator(h, now).ShouldCreate(ctx, job, core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("Recent manual run blocks", func(t *testing.T) {
		h := &fakeHistory{runs: []*core.Run{
			run(core.RunFailed, 1*time.Hour, true, now),
		}}
		got, err := newEvaluator(h, now).ShouldCreate(ctx, job, core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("Success in window blocks", func(t *testing.T) {
		h := &fakeHistory{runs: []*core.Run{
			run(core.RunSucceeded, 10*time.Hour, false, now),
		}}
		got, err := newEvaluator(h, now).ShouldCreate(ctx, job, core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("Pending manual run blocks", func(t *testing.T) {
		h := &fakeHistory{runs: []*core.Run{
			run(core.RunScheduled, 5*time.Hour, true, now),
		}}
		got, err := newEvaluator(h, now).ShouldCreate(ctx, job, core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestPaymentExportPolicy(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	job := testJob(false)

	peRun := func(status core.RunStatus, age time.Duration) *core.Run {
		r := run(status, age, false, now)
		r.Capability = core.CapPaymentExportInfo
		return r
	}

	tests := []struct {
		name string
		runs []*core.Run
		want bool
	}{
		{"Clean slate", nil, true},
		{"Success in 24h blocks", []*core.Run{peRun(core.RunSucceeded, 10 * time.Hour)}, false},
		{"Any run in 3h blocks", []*core.Run{peRun(core.RunFailed, 1 * time.Hour)}, false},
		{"Old failure retries", []*core.Run{peRun(core.RunFailed, 10 * time.Hour)}, true},
		{
			"Three failures block",
			[]*core.Run{
				peRun(core.RunFailed, 6 * time.Hour),
				peRun(core.RunFailed, 12 * time.Hour),
				peRun(core.RunFailed, 18 * time.Hour),
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvaluator(&fakeHistory{runs: tt.runs}, now)
			got, err := ev.ShouldCreate(ctx, job, core.CapPaymentExportInfo, core.ViaScheduled)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountingImportPolicy(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	job := testJob(false)

	aiRun := func(status core.RunStatus, age time.Duration) *core.Run {
		r := run(status, age, false, now)
		r.Capability = core.CapAccountingImportAll
		return r
	}

	tests := []struct {
		name string
		runs []*core.Run
		want bool
	}{
		{"Clean slate", nil, true},
		{"Success in 7d blocks", []*core.Run{aiRun(core.RunSucceeded, 3 * 24 * time.Hour)}, false},
		{"Any run in 24h blocks", []*core.Run{aiRun(core.RunFailed, 10 * time.Hour)}, false},
		{"Failure older than a day retries", []*core.Run{aiRun(core.RunFailed, 30 * time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvaluator(&fakeHistory{runs: tt.runs}, now)
			got, err := ev.ShouldCreate(ctx, job, core.CapAccountingImportAll, core.ViaScheduled)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBypassAndIdempotence(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// A state that blocks scheduled creation.
	h := &fakeHistory{runs: []*core.Run{run(core.RunSucceeded, 2*time.Hour, false, now)}}
	ev := newEvaluator(h, now)

	got, err := ev.ShouldCreate(ctx, testJob(false), core.CapInvoiceDownload, core.ViaCustomer)
	require.NoError(t, err)
	assert.True(t, got, "customer requests bypass policy")

	got, err = ev.ShouldCreate(ctx, testJob(false), core.CapInvoiceDownload, core.ViaAdmin)
	require.NoError(t, err)
	assert.True(t, got, "admin requests bypass policy")

	// Fixed clock and history: consecutive verdicts are identical.
	first, err := ev.ShouldCreate(ctx, testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
	require.NoError(t, err)
	for range 5 {
		again, err := ev.ShouldCreate(ctx, testJob(false), core.CapInvoiceDownload, core.ViaScheduled)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
