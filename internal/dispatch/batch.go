package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sevigo/integrator/internal/core"
)

// BatchConfig configures the external batch backend.
type BatchConfig struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// batchJob is the opaque job description consumed by external workers.
type batchJob struct {
	ID          string            `json:"id"`
	Command     []string          `json:"command"`
	Environment map[string]string `json:"environment"`
	Queue       string            `json:"queue"`
}

// batch submits Runs to an external worker fleet through a Redis list.
// Workers pop job descriptions and invoke the crawl command; the
// dispatch id returned here is recorded on the Run for correlation.
type batch struct {
	client *redis.Client
	queue  string
	logger *slog.Logger
}

// NewBatch creates the external batch backend.
func NewBatch(cfg BatchConfig, logger *slog.Logger) core.Dispatcher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &batch{client: client, queue: cfg.Queue, logger: logger}
}

// Dispatch pushes one job description and returns its batch id.
func (b *batch) Dispatch(ctx context.Context, run *core.Run, limits core.TimeLimits) (string, error) {
	if limits.TimeLimit <= 0 {
		limits = DefaultTimeLimits
	}
	job := batchJob{
		ID:      core.NewID("batch"),
		Command: []string{"integrator", "crawl", "--run-id", run.ID},
		Environment: map[string]string{
			"RUN_ID":          run.ID,
			"TIME_LIMIT":      fmt.Sprintf("%d", limits.TimeLimit),
			"SOFT_TIME_LIMIT": fmt.Sprintf("%d", limits.SoftTimeLimit),
		},
		Queue: b.queue,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch job: %w", err)
	}
	if err := b.client.LPush(ctx, b.queue, payload).Err(); err != nil {
		return "", fmt.Errorf("failed to submit batch job for run %s: %w", run.ID, err)
	}
	b.logger.Info("submitted batch job", "run_id", run.ID, "batch_id", job.ID, "queue", b.queue)
	return job.ID, nil
}

// Stop closes the Redis connection.
func (b *batch) Stop() {
	if err := b.client.Close(); err != nil {
		b.logger.Error("failed to close batch backend", "error", err)
	}
}
