// Package loader drains parsed records into a backend in fixed-size,
// strictly sequential batches.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/retry"
)

var (
	// ErrEmptyItemList is returned when Load is called without records.
	ErrEmptyItemList = errors.New("empty item list")

	// ErrMissingFormatter is returned when Load is called without a formatter.
	ErrMissingFormatter = errors.New("missing formatter")
)

// Formatter turns one record into a backend write unit.
type Formatter[W any] func(rec geo.Record) (W, error)

// SubmitFunc sends one batch of write units to target in a single backend call.
type SubmitFunc[W any] func(ctx context.Context, target string, batch []W) error

// Options tune batching and throttling for one backend.
type Options struct {
	// BatchSize is the nominal number of records per backend call.
	BatchSize int

	// ClampToTotal lowers BatchSize to the item count when the set is smaller.
	ClampToTotal bool

	// InitialDelay is waited before the first batch.
	InitialDelay time.Duration

	// Delay is waited between successive batches.
	Delay time.Duration
}

// Loader runs batch jobs for one backend. A Loader is not safe for concurrent
// Load calls against the same target; the pipeline sequences them.
type Loader[W any] struct {
	submit   SubmitFunc[W]
	opts     Options
	progress Progress
	journal  *retry.DLQ
	sleep    retry.SleepFunc
}

// New creates a Loader submitting through submit.
func New[W any](submit SubmitFunc[W], opts Options) *Loader[W] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &Loader[W]{
		submit:   submit,
		opts:     opts,
		progress: Discard,
		sleep:    retry.Sleep,
	}
}

// WithProgress sets the progress sink.
func (l *Loader[W]) WithProgress(p Progress) *Loader[W] {
	if p == nil {
		p = Discard
	}
	l.progress = p
	return l
}

// WithJournal makes the loader record failed batches in journal.
func (l *Loader[W]) WithJournal(journal *retry.DLQ) *Loader[W] {
	l.journal = journal
	return l
}

// WithSleep replaces the throttling wait.
func (l *Loader[W]) WithSleep(sleep retry.SleepFunc) *Loader[W] {
	l.sleep = sleep
	return l
}

// Options returns the effective options.
func (l *Loader[W]) Options() Options {
	return l.opts
}

// Load formats and submits items to target batch by batch and returns target
// once every record has been submitted.
//
// The first failing batch aborts the load. Batches submitted before it stay
// committed.
func (l *Loader[W]) Load(ctx context.Context, items []geo.Record, format Formatter[W], target string) (string, error) {
	if err := checkPreconditions(items, format); err != nil {
		return "", err
	}

	total := len(items)
	size := l.opts.BatchSize
	if l.opts.ClampToTotal && total < size {
		size = total
	}
	batches := partition(total, size)

	logger := log.With().Str("target", target).Logger()
	logger.Info().
		Int("records", total).
		Int("batch_size", size).
		Int("batches", len(batches)).
		Msg("Loading records")

	started := time.Now()
	for i, b := range batches {
		wait := l.opts.Delay
		if i == 0 {
			wait = l.opts.InitialDelay
		}
		if wait > 0 {
			logger.Debug().Int("batch", i+1).Dur("delay", wait).Msg("Throttling before batch")
		}
		if err := l.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("load %s: batch %d/%d: %w", target, i+1, len(batches), err)
		}

		chunk := items[b.start:b.end]
		units, err := formatBatch(chunk, format)
		if err != nil {
			l.record(target, i+1, "format_failed", chunk, err)
			batchFailures.WithLabelValues(target).Inc()
			return "", fmt.Errorf("load %s: batch %d/%d: %w", target, i+1, len(batches), err)
		}

		if err := l.submit(ctx, target, units); err != nil {
			l.record(target, i+1, "batch_submit_failed", chunk, err)
			batchFailures.WithLabelValues(target).Inc()
			return "", fmt.Errorf("load %s: batch %d/%d: %w", target, i+1, len(batches), err)
		}

		batchesSubmitted.WithLabelValues(target).Inc()
		recordsSubmitted.WithLabelValues(target).Add(float64(len(chunk)))

		fraction := completion(b.end, total, i == len(batches)-1)
		loadProgress.WithLabelValues(target).Set(fraction)
		l.progress.Report(fraction)

		logger.Debug().
			Int("batch", i+1).
			Int("size", len(chunk)).
			Float64("progress", fraction).
			Msg("Batch submitted")
	}

	logger.Info().
		Int("records", total).
		Dur("elapsed", time.Since(started)).
		Msg("Load complete")

	return target, nil
}

// checkPreconditions evaluates both preconditions so a caller passing neither
// items nor a formatter learns about both.
func checkPreconditions[W any](items []geo.Record, format Formatter[W]) error {
	var errs []error
	if len(items) == 0 {
		errs = append(errs, ErrEmptyItemList)
	}
	if format == nil {
		errs = append(errs, ErrMissingFormatter)
	}
	return errors.Join(errs...)
}

func formatBatch[W any](chunk []geo.Record, format Formatter[W]) ([]W, error) {
	units := make([]W, 0, len(chunk))
	for _, rec := range chunk {
		unit, err := format(rec)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// completion is the fraction reported after the batch ending at end.
func completion(end, total int, last bool) float64 {
	if last {
		return 1.0
	}
	return min(1.0, float64(end)/float64(total))
}

func (l *Loader[W]) record(target string, batch int, failure string, chunk []geo.Record, cause error) {
	if l.journal == nil {
		return
	}
	err := l.journal.Add(retry.DLQEntry{
		Target:      target,
		Batch:       batch,
		LastError:   cause.Error(),
		FailureType: failure,
		Data:        chunk,
	})
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("Failed to journal batch")
	}
}
