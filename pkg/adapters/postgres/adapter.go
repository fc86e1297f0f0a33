// Package postgres loads GeoNames records into PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/geoimport/pkg/adapters"
	"github.com/ruslano69/geoimport/pkg/bootstrap"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/settings"
)

// BatchSize is the number of INSERT statements sent in one Exec.
const BatchSize = 100

// DB is the part of *pgxpool.Pool the backend uses. Each Exec runs on a
// pooled connection that is released when the call returns.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// Compile-time check
var _ adapters.Backend = (*Backend)(nil)

// Регистрация в глобальной фабрике
func init() {
	adapters.Register(settings.PostgreSQL, New)
}

// buildConnectionURL assembles a postgres:// URL from the connection settings.
func buildConnectionURL(conn settings.Connection) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(conn.User, conn.Password),
		Host:   net.JoinHostPort(conn.IP, strconv.Itoa(conn.Port)),
		Path:   "/" + conn.Database,
	}
	if conn.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {conn.SSLMode}}.Encode()
	}
	return u.String()
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, conn settings.Connection) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(buildConnectionURL(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if conn.MaxConns > 0 {
		config.MaxConns = conn.MaxConns
	} else {
		config.MaxConns = 4 // один пайплайн, батчи последовательно
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Backend writes countries and cities to PostgreSQL.
type Backend struct {
	db         DB
	bootstrap  *bootstrap.Bootstrapper
	tables     map[geo.Kind]bootstrap.Descriptor
	formatters map[geo.Kind]loader.Formatter[string]
	opts       adapters.Options
}

// New is the adapters.Constructor of the PostgreSQL backend.
func New(ctx context.Context, cfg *settings.Settings, opts adapters.Options) (adapters.Backend, error) {
	if err := validateTables(cfg); err != nil {
		return nil, err
	}

	pool, err := Connect(ctx, cfg.Connection)
	if err != nil {
		return nil, err
	}

	backend, err := NewBackend(pool, cfg, opts)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return backend, nil
}

// NewBackend wraps an open database handle.
func NewBackend(db DB, cfg *settings.Settings, opts adapters.Options) (*Backend, error) {
	if err := validateTables(cfg); err != nil {
		return nil, err
	}

	countryTable, cityTable := cfg.Schema.Country.Table, cfg.Schema.City.Table
	adm := &admin{
		db: db,
		ddl: map[string]string{
			countryTable: countryDDL(countryTable),
			cityTable:    cityDDL(cityTable, countryTable),
		},
	}

	boot := bootstrap.New(adm)
	if opts.Sleep != nil {
		boot.WithSleep(opts.Sleep)
	}

	return &Backend{
		db:        db,
		bootstrap: boot,
		tables: map[geo.Kind]bootstrap.Descriptor{
			geo.Country: CountryTable(countryTable),
			geo.City:    CityTable(cityTable),
		},
		formatters: map[geo.Kind]loader.Formatter[string]{
			geo.Country: CountryStatement(countryTable),
			geo.City:    CityStatement(cityTable),
		},
		opts: opts,
	}, nil
}

func validateTables(cfg *settings.Settings) error {
	for _, t := range []string{cfg.Schema.Country.Table, cfg.Schema.City.Table} {
		if err := validateIdentifier(t); err != nil {
			return err
		}
	}
	return nil
}

// Name returns "postgresql".
func (b *Backend) Name() string {
	return string(settings.PostgreSQL)
}

// EnsureTable creates the table of kind. An existing table is dropped first.
func (b *Backend) EnsureTable(ctx context.Context, kind geo.Kind) (bootstrap.Descriptor, error) {
	desc, ok := b.tables[kind]
	if !ok {
		return bootstrap.Descriptor{}, fmt.Errorf("unknown entity kind: %s", kind)
	}
	return b.bootstrap.EnsureTable(ctx, desc)
}

// Insert writes records of kind, up to 100 statements per Exec.
func (b *Backend) Insert(ctx context.Context, kind geo.Kind, records []geo.Record, progress loader.Progress) (int, error) {
	desc, ok := b.tables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind: %s", kind)
	}

	l := b.newLoader().WithProgress(progress)
	if _, err := l.Load(ctx, records, b.formatters[kind], desc.Name); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close closes the connection pool.
func (b *Backend) Close(ctx context.Context) error {
	if b.db != nil {
		b.db.Close()
	}
	return nil
}

func (b *Backend) newLoader() *loader.Loader[string] {
	l := loader.New(b.submit, loader.Options{
		BatchSize:    BatchSize,
		ClampToTotal: true,
	}).WithJournal(b.opts.Journal)
	if b.opts.Sleep != nil {
		l.WithSleep(b.opts.Sleep)
	}
	return l
}
