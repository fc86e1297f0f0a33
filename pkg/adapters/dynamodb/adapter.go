// Package dynamodb loads GeoNames records into Amazon DynamoDB.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ruslano69/geoimport/pkg/adapters"
	"github.com/ruslano69/geoimport/pkg/bootstrap"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/settings"
)

const (
	// BatchSize is the BatchWriteItem limit.
	BatchSize = 25

	// InitialDelay lets freshly created tables leave CREATING before the
	// first write.
	InitialDelay = 15 * time.Second

	// Delay keeps writes within the provisioned write capacity.
	Delay = 5 * time.Second

	waitTimeout = 5 * time.Minute
)

// API is the subset of the DynamoDB client the backend uses.
type API interface {
	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *ddb.DeleteTableInput, optFns ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)
}

func init() {
	adapters.Register(settings.DynamoDB, New)
}

// NewClient builds a DynamoDB client from the connection settings. Static
// credentials are used when given, otherwise the default AWS chain applies.
func NewClient(ctx context.Context, conn settings.Connection) (*ddb.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(conn.Region),
	}
	if conn.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conn.AccessKeyID, conn.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return ddb.NewFromConfig(cfg, func(o *ddb.Options) {
		if conn.Endpoint != "" {
			o.BaseEndpoint = aws.String(conn.Endpoint)
		}
	}), nil
}

// Backend writes countries and cities to DynamoDB.
type Backend struct {
	api       API
	bootstrap *bootstrap.Bootstrapper
	tables    map[geo.Kind]bootstrap.Descriptor
	opts      adapters.Options
}

// New is the adapters.Constructor of the DynamoDB backend.
func New(ctx context.Context, cfg *settings.Settings, opts adapters.Options) (adapters.Backend, error) {
	client, err := NewClient(ctx, cfg.Connection)
	if err != nil {
		return nil, err
	}
	return NewBackend(client, cfg, opts), nil
}

// NewBackend wraps an existing client.
func NewBackend(api API, cfg *settings.Settings, opts adapters.Options) *Backend {
	adm := &admin{
		api:           api,
		waitForActive: cfg.Connection.WaitForActive,
		waitTimeout:   waitTimeout,
	}

	boot := bootstrap.New(adm)
	if opts.Sleep != nil {
		boot.WithSleep(opts.Sleep)
	}

	country, city := cfg.Schema.Country, cfg.Schema.City
	return &Backend{
		api:       api,
		bootstrap: boot,
		tables: map[geo.Kind]bootstrap.Descriptor{
			geo.Country: CountryTable(country.Table, bootstrap.Capacity{Read: country.ReadCapacity, Write: country.WriteCapacity}),
			geo.City:    CityTable(city.Table, bootstrap.Capacity{Read: city.ReadCapacity, Write: city.WriteCapacity}),
		},
		opts: opts,
	}
}

// Name returns "dynamodb".
func (b *Backend) Name() string {
	return string(settings.DynamoDB)
}

// EnsureTable creates the table of kind.
func (b *Backend) EnsureTable(ctx context.Context, kind geo.Kind) (bootstrap.Descriptor, error) {
	desc, ok := b.tables[kind]
	if !ok {
		return bootstrap.Descriptor{}, fmt.Errorf("unknown entity kind: %s", kind)
	}
	return b.bootstrap.EnsureTable(ctx, desc)
}

// Insert writes records of kind in batches of 25.
func (b *Backend) Insert(ctx context.Context, kind geo.Kind, records []geo.Record, progress loader.Progress) (int, error) {
	desc, ok := b.tables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind: %s", kind)
	}

	format := CountryRequest
	if kind == geo.City {
		format = CityRequest
	}

	l := b.newLoader().WithProgress(progress)
	if _, err := l.Load(ctx, records, format, desc.Name); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close is a no-op: the SDK client holds no connection.
func (b *Backend) Close(ctx context.Context) error {
	return nil
}

func (b *Backend) newLoader() *loader.Loader[types.WriteRequest] {
	l := loader.New(b.submit, loader.Options{
		BatchSize:    BatchSize,
		InitialDelay: InitialDelay,
		Delay:        Delay,
	}).WithJournal(b.opts.Journal)
	if b.opts.Sleep != nil {
		l.WithSleep(b.opts.Sleep)
	}
	return l
}
