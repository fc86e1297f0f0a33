/*
Package adapters connects the importer to its storage backends.

# Architecture

	┌─────────────────────────────────────────┐
	│    pipeline.Pipeline                    │
	│  - country stages, then city stages     │
	└─────────────────┬───────────────────────┘
	                  │
	┌─────────────────▼───────────────────────┐
	│  Backend interface                      │  ← pkg/adapters/adapter.go
	│                                         │
	│  EnsureTable(ctx, kind)                 │
	│  Insert(ctx, kind, records, progress)   │
	│  Close(ctx)                             │
	└─────────────────┬───────────────────────┘
	                  │
	         ┌────────┴────────┐
	         │                 │
	┌────────▼─────┐   ┌───────▼──────┐
	│ DynamoDB     │   │ PostgreSQL   │
	│ 25 / 15s / 5s│   │ 100, clamped │
	└──────────────┘   └──────────────┘

Each backend combines three pieces: a bootstrap.Admin that creates and drops
tables, the record formatters of its write unit, and a loader.Loader tuned to
its write capacity.

# Usage

Backends register themselves in init(); import them for side effects and
create one from settings:

	import (
	    "github.com/ruslano69/geoimport/pkg/adapters"
	    _ "github.com/ruslano69/geoimport/pkg/adapters/dynamodb"
	    _ "github.com/ruslano69/geoimport/pkg/adapters/postgres"
	)

	backend, err := adapters.New(ctx, cfg, adapters.Options{})
	if err != nil {
	    return err
	}
	defer backend.Close(ctx)

	if _, err := backend.EnsureTable(ctx, geo.Country); err != nil {
	    return err
	}
	n, err := backend.Insert(ctx, geo.Country, countries, progress)
*/
package adapters
