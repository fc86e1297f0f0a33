// Package resultlog publishes the outcome of an import run so that an
// orchestrator can react to it. Destinations: Redis, Kafka, RabbitMQ.
package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruslano69/geoimport/pkg/pipeline"
	"github.com/ruslano69/geoimport/pkg/settings"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RunResult is the published JSON document.
type RunResult struct {
	RunID      string         `json:"run_id,omitempty"`
	Name       string         `json:"name"`
	Backend    string         `json:"backend"`
	Status     string         `json:"status"` // "success" | "failed"
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMs int64          `json:"duration_ms"`
	RowsLoaded int            `json:"rows_loaded"`
	Entities   []EntityResult `json:"entities,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

// EntityResult is the part of RunResult describing one entity kind.
type EntityResult struct {
	Kind     string `json:"kind"`
	Table    string `json:"table"`
	File     string `json:"file"`
	Checksum string `json:"xxh3,omitempty"`
	Records  int    `json:"records"`
	Loaded   int    `json:"loaded"`
}

// NewRunResult builds the document of a finished run. runErr == nil means
// success.
func NewRunResult(name string, stats pipeline.Stats, runErr error) RunResult {
	result := RunResult{
		Name:       name,
		Backend:    stats.Backend,
		Status:     StatusSuccess,
		StartedAt:  stats.StartTime,
		FinishedAt: stats.EndTime,
		DurationMs: stats.Duration.Milliseconds(),
		RowsLoaded: stats.TotalLoaded(),
	}
	for _, e := range stats.Entities {
		result.Entities = append(result.Entities, EntityResult{
			Kind:     string(e.Kind),
			Table:    e.Table,
			File:     e.File,
			Checksum: e.Checksum,
			Records:  e.Records,
			Loaded:   e.Loaded,
		})
	}
	if runErr != nil {
		result.Status = StatusFailed
		msg := runErr.Error()
		result.Error = &msg
	}
	return result
}

func (r RunResult) marshal() ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return payload, nil
}

// Publisher delivers run results. Publish is called once per run, whatever
// the outcome.
type Publisher interface {
	Publish(ctx context.Context, result RunResult) error
	Close() error
}

// New returns the publisher configured by cfg. An empty type (or "none")
// yields a publisher that drops results.
func New(cfg settings.ResultLogConfig) (Publisher, error) {
	switch cfg.Type {
	case "", "none":
		return Discard{}, nil
	case "redis":
		return NewRedisPublisher(cfg), nil
	case "kafka":
		return NewKafkaPublisher(cfg)
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg)
	default:
		return nil, fmt.Errorf("unsupported result log type: %s (supported: redis, kafka, rabbitmq)", cfg.Type)
	}
}

// Discard drops every result.
type Discard struct{}

func (Discard) Publish(context.Context, RunResult) error { return nil }
func (Discard) Close() error                             { return nil }
