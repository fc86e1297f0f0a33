// Package pipeline runs one import: countries first, then cities.
//
// Each entity kind passes through the same ordered stages:
//
//	download → ensure table → parse → insert
//
// A State value is threaded through the stages. The first failing stage
// stops the run; the next entity kind is not attempted.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/adapters"
	"github.com/ruslano69/geoimport/pkg/bootstrap"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/source"
)

// Source downloads the raw input of an entity kind.
type Source interface {
	Download(ctx context.Context, kind geo.Kind, population int) (source.Raw, error)
}

// State is what the stages of one entity kind know so far. A stage receives
// a State by value and returns the next one.
type State struct {
	Kind    geo.Kind
	Raw     source.Raw
	Table   bootstrap.Descriptor
	Dataset source.Dataset
	Loaded  int
}

// Stage is one step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st State) (State, error)
}

// ProgressFactory returns the progress sink of the load into table.
type ProgressFactory func(kind geo.Kind, table string) loader.Progress

// EntityStats summarizes the import of one entity kind.
type EntityStats struct {
	Kind     geo.Kind
	Table    string
	File     string
	Checksum string
	Records  int
	Loaded   int
	Duration time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Backend   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Entities  []EntityStats
}

// TotalLoaded is the number of records written across all entity kinds.
func (s Stats) TotalLoaded() int {
	total := 0
	for _, e := range s.Entities {
		total += e.Loaded
	}
	return total
}

// Entity returns the stats of kind, if it was loaded.
func (s Stats) Entity(kind geo.Kind) (EntityStats, bool) {
	for _, e := range s.Entities {
		if e.Kind == kind {
			return e, true
		}
	}
	return EntityStats{}, false
}

// Pipeline imports the dataset into one backend.
type Pipeline struct {
	backend    adapters.Backend
	source     Source
	population int
	progress   ProgressFactory
	stats      Stats
}

// New creates a pipeline loading cities of population into backend.
func New(backend adapters.Backend, src Source, population int) *Pipeline {
	return &Pipeline{
		backend:    backend,
		source:     src,
		population: population,
		progress: func(geo.Kind, string) loader.Progress {
			return loader.Discard
		},
	}
}

// WithProgress sets the progress sink factory.
func (p *Pipeline) WithProgress(f ProgressFactory) *Pipeline {
	if f != nil {
		p.progress = f
	}
	return p
}

// Stages returns the stages run for every entity kind, in order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: "download", Run: p.download},
		{Name: "ensure table", Run: p.ensureTable},
		{Name: "parse", Run: p.parse},
		{Name: "insert", Run: p.insert},
	}
}

// Execute runs the stages for countries, then for cities.
func (p *Pipeline) Execute(ctx context.Context) error {
	p.stats = Stats{Backend: p.backend.Name(), StartTime: time.Now()}
	defer func() {
		p.stats.EndTime = time.Now()
		p.stats.Duration = p.stats.EndTime.Sub(p.stats.StartTime)
	}()

	stages := p.Stages()
	for _, kind := range geo.Kinds {
		started := time.Now()
		st := State{Kind: kind}

		for i, stage := range stages {
			log.Debug().Str("kind", string(kind)).Str("stage", stage.Name).Msg("Running stage")

			next, err := stage.Run(ctx, st)
			if err != nil {
				return fmt.Errorf("%s: stage %d (%s): %w", kind, i+1, stage.Name, err)
			}
			st = next
		}

		p.stats.Entities = append(p.stats.Entities, EntityStats{
			Kind:     kind,
			Table:    st.Table.Name,
			File:     st.Dataset.File,
			Checksum: st.Dataset.Checksum,
			Records:  len(st.Dataset.Records),
			Loaded:   st.Loaded,
			Duration: time.Since(started),
		})

		log.Info().
			Str("kind", string(kind)).
			Str("table", st.Table.Name).
			Int("loaded", st.Loaded).
			Msg("Entity imported")
	}

	return nil
}

// GetStats returns the stats of the last Execute call.
func (p *Pipeline) GetStats() Stats {
	return p.stats
}
