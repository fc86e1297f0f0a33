package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/adapters"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/pipeline"
	"github.com/ruslano69/geoimport/pkg/retry"
	"github.com/ruslano69/geoimport/pkg/settings"
	"github.com/ruslano69/geoimport/pkg/source"
)

// run imports the dataset described by cfg. The returned stats cover the
// entity kinds loaded before a failure too.
func run(ctx context.Context, cfg *settings.Settings) (pipeline.Stats, error) {
	stats := pipeline.Stats{Backend: string(cfg.DB)}

	journal, err := openJournal(cfg)
	if err != nil {
		return stats, err
	}
	opts := adapters.Options{Journal: journal}

	backend, err := adapters.New(ctx, cfg, opts)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend")
		}
	}()

	fetcher, err := source.NewFetcher(ctx, cfg.Source)
	if err != nil {
		return stats, err
	}
	src := source.New(fetcher, cfg.Schema.Country.File).WithChecksums(cfg.Source.Checksums)

	p := pipeline.New(backend, src, cfg.Schema.City.Population).
		WithProgress(func(kind geo.Kind, table string) loader.Progress {
			return loader.LogProgress{
				Logger: log.With().Str("kind", string(kind)).Logger(),
				Target: table,
			}
		})

	err = p.Execute(ctx)
	return p.GetStats(), err
}

// openJournal truncates the error file of the run. nil means journaling is
// disabled.
func openJournal(cfg *settings.Settings) (*retry.DLQ, error) {
	if cfg.ErrorFileName == "" {
		return nil, nil
	}
	journal, err := retry.NewDLQ(retry.DLQConfig{
		FilePath: cfg.ErrorFileName,
		Truncate: true,
		MaxSize:  cfg.ErrorFileMaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open error file: %w", err)
	}
	return journal, nil
}
