// Package settings loads and validates the importer settings file.
//
// Settings are read with yaml.v3, so the JSON settings files used by earlier
// importer releases load unchanged.
package settings

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/geoimport/pkg/geo"
)

// DB names a storage backend.
type DB string

const (
	DynamoDB   DB = "dynamodb"
	PostgreSQL DB = "postgresql"
)

// DefaultBaseURL is the GeoNames export directory.
const DefaultBaseURL = "http://download.geonames.org/export/dump/"

// Populations lists the city population thresholds GeoNames publishes
// archives for.
var Populations = []int{500, 1000, 5000, 15000}

var (
	ErrMissingEngine      = errors.New("missing db engine")
	ErrWrongEngine        = errors.New("db engine must be dynamodb or postgresql")
	ErrNoSchema           = errors.New("missing schema attribute")
	ErrNoCountrySchema    = errors.New("missing schema for country")
	ErrNoCitySchema       = errors.New("missing schema for city")
	ErrWrongPopulation    = errors.New("wrong city population")
	ErrDuplicateTable     = errors.New("country and city must use different tables")
	ErrMissingConnection  = errors.New("missing connection attribute")
	ErrInvalidResultLog   = errors.New("invalid result log")
	ErrInvalidLogSettings = errors.New("invalid log settings")
	ErrInvalidErrorFile   = errors.New("invalid error file settings")
)

// Settings is the full settings file.
type Settings struct {
	DB            DB              `yaml:"db"`
	Connection    Connection      `yaml:"connection"`
	Schema        *Schema         `yaml:"schema"`
	ErrorFileName string          `yaml:"errorFileName"` // журнал неудачных батчей, пусто = отключен
	Source        SourceConfig    `yaml:"source"`
	ResultLog     ResultLogConfig `yaml:"resultLog"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Log           LogConfig       `yaml:"log"`

	// ErrorFileMaxEntries caps the journal; the oldest entries are dropped
	// first. 0 keeps every entry.
	ErrorFileMaxEntries int `yaml:"errorFileMaxEntries"`
}

// Connection holds the credentials of either backend. Environment variables
// named in the env tags override the file.
type Connection struct {
	// DynamoDB
	Region          string `yaml:"region" env:"GEOIMPORT_AWS_REGION"`
	Endpoint        string `yaml:"endpoint" env:"GEOIMPORT_DYNAMODB_ENDPOINT"`
	AccessKeyID     string `yaml:"accessKeyId" env:"GEOIMPORT_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secretAccessKey" env:"GEOIMPORT_AWS_SECRET_ACCESS_KEY"`
	WaitForActive   bool   `yaml:"waitForActive"` // ждать ACTIVE после пересоздания таблицы

	// PostgreSQL
	User     string `yaml:"user" env:"GEOIMPORT_PG_USER"`
	Password string `yaml:"password" env:"GEOIMPORT_PG_PASSWORD"`
	IP       string `yaml:"ip" env:"GEOIMPORT_PG_HOST"`
	Port     int    `yaml:"port" env:"GEOIMPORT_PG_PORT"`
	Database string `yaml:"database" env:"GEOIMPORT_PG_DATABASE"`
	SSLMode  string `yaml:"sslMode"`
	MaxConns int32  `yaml:"maxConns"`
}

// Schema names the target tables.
type Schema struct {
	Country *TableSchema `yaml:"country"`
	City    *TableSchema `yaml:"city"`
}

// TableSchema describes one target table.
type TableSchema struct {
	Table         string `yaml:"table"`
	Population    int    `yaml:"population"` // city only
	File          string `yaml:"file"`       // country only: local code,name CSV
	ReadCapacity  int64  `yaml:"readCapacity"`
	WriteCapacity int64  `yaml:"writeCapacity"`
}

// Table returns the schema of kind.
func (s *Schema) Table(kind geo.Kind) *TableSchema {
	if kind == geo.Country {
		return s.Country
	}
	return s.City
}

// SourceConfig tells where the dataset is downloaded from.
type SourceConfig struct {
	BaseURL string    `yaml:"baseUrl"`
	S3      *S3Source `yaml:"s3,omitempty"`
	Timeout int       `yaml:"timeout"` // секунды на один файл
	WorkDir string    `yaml:"workDir"` // кэш скачанных файлов, пусто = без кэша

	// Checksums maps a downloaded file name to its expected xxh3 hex digest.
	Checksums map[string]string `yaml:"checksums,omitempty"`
}

// S3Source is a bucket mirroring the GeoNames export directory.
type S3Source struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// ResultLogConfig selects where the run result is published.
type ResultLogConfig struct {
	Type     string              `yaml:"type"` // redis, kafka, rabbitmq (пустое = отключено)
	Name     string              `yaml:"name"`
	Address  string              `yaml:"address" env:"GEOIMPORT_RESULTLOG_ADDRESS"`
	Password string              `yaml:"password" env:"GEOIMPORT_RESULTLOG_PASSWORD"`
	DB       int                 `yaml:"db"`
	TTL      int                 `yaml:"ttl"`
	Kafka    *KafkaResultConfig  `yaml:"kafka,omitempty"`
	RabbitMQ *RabbitResultConfig `yaml:"rabbitmq,omitempty"`
}

// KafkaResultConfig is the Kafka destination of the run result.
type KafkaResultConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RabbitResultConfig is the RabbitMQ destination of the run result.
type RabbitResultConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushGateway string `yaml:"pushGateway"`
	Job         string `yaml:"job"`
}

// LogConfig sets logger defaults; command-line flags override them.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json
}

// Load reads, validates and completes the settings file at path. Environment
// overrides are applied before validation.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and completes settings from data.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	s.SetDefaults()
	return &s, nil
}

// LoadEnvFile adds the variables of a dotenv file to the process
// environment. Variables already set are kept.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials with the GEOIMPORT_* environment variables
// that are set.
func (s *Settings) ApplyEnv() error {
	if err := env.Parse(&s.Connection); err != nil {
		return fmt.Errorf("connection env: %w", err)
	}
	if err := env.Parse(&s.ResultLog); err != nil {
		return fmt.Errorf("resultLog env: %w", err)
	}
	return nil
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	s.DB = DB(strings.ToLower(string(s.DB)))
	switch s.DB {
	case "":
		return ErrMissingEngine
	case DynamoDB, PostgreSQL:
	default:
		return fmt.Errorf("%w: %q", ErrWrongEngine, s.DB)
	}

	if s.Schema == nil {
		return ErrNoSchema
	}
	if s.Schema.Country == nil || s.Schema.Country.Table == "" {
		return ErrNoCountrySchema
	}
	if s.Schema.City == nil || s.Schema.City.Table == "" {
		return ErrNoCitySchema
	}
	if sameTable(s.DB, s.Schema.Country.Table, s.Schema.City.Table) {
		return fmt.Errorf("%w: %q", ErrDuplicateTable, s.Schema.City.Table)
	}
	if !slices.Contains(Populations, s.Schema.City.Population) {
		return fmt.Errorf("%w: %d (allowed: %v)", ErrWrongPopulation, s.Schema.City.Population, Populations)
	}

	if s.ErrorFileMaxEntries < 0 {
		return fmt.Errorf("%w: errorFileMaxEntries must be >= 0, got %d", ErrInvalidErrorFile, s.ErrorFileMaxEntries)
	}

	if err := s.Connection.validate(s.DB); err != nil {
		return fmt.Errorf("connection: %w", err)
	}

	if err := s.ResultLog.Validate(); err != nil {
		return fmt.Errorf("resultLog: %w", err)
	}

	switch strings.ToLower(s.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: format must be console or json", ErrInvalidLogSettings)
	}

	return nil
}

// sameTable compares table names the way the backend resolves them:
// PostgreSQL folds unquoted identifiers to lower case, DynamoDB does not.
func sameTable(db DB, a, b string) bool {
	if db == PostgreSQL {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (c *Connection) validate(db DB) error {
	var missing []string
	switch db {
	case DynamoDB:
		if c.Region == "" {
			missing = append(missing, "region")
		}
		if c.Endpoint == "" {
			missing = append(missing, "endpoint")
		}
	case PostgreSQL:
		if c.User == "" {
			missing = append(missing, "user")
		}
		if c.Password == "" {
			missing = append(missing, "password")
		}
		if c.IP == "" {
			missing = append(missing, "ip")
		}
		if c.Database == "" {
			missing = append(missing, "database")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConnection, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the result log destination.
func (r *ResultLogConfig) Validate() error {
	r.Type = strings.ToLower(r.Type)
	switch r.Type {
	case "", "none":
		return nil
	case "redis":
		if r.Address == "" {
			return fmt.Errorf("%w: address is required when type is 'redis'", ErrInvalidResultLog)
		}
	case "kafka":
		if r.Kafka == nil || len(r.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka.brokers is required", ErrInvalidResultLog)
		}
		if r.Kafka.Topic == "" {
			return fmt.Errorf("%w: kafka.topic is required", ErrInvalidResultLog)
		}
	case "rabbitmq":
		if r.RabbitMQ == nil || r.RabbitMQ.Host == "" {
			return fmt.Errorf("%w: rabbitmq.host is required", ErrInvalidResultLog)
		}
		if r.RabbitMQ.Queue == "" {
			return fmt.Errorf("%w: rabbitmq.queue is required", ErrInvalidResultLog)
		}
	default:
		return fmt.Errorf("%w: unsupported type '%s', must be one of: redis, kafka, rabbitmq", ErrInvalidResultLog, r.Type)
	}
	return nil
}

// SetDefaults fills optional fields.
func (s *Settings) SetDefaults() {
	if s.Source.BaseURL == "" {
		s.Source.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(s.Source.BaseURL, "/") {
		s.Source.BaseURL += "/"
	}
	if s.Source.Timeout == 0 {
		s.Source.Timeout = 300
	}

	for _, t := range []*TableSchema{s.Schema.Country, s.Schema.City} {
		if t.ReadCapacity == 0 {
			t.ReadCapacity = 5
		}
		if t.WriteCapacity == 0 {
			t.WriteCapacity = 5
		}
	}

	if s.DB == PostgreSQL {
		if s.Connection.Port == 0 {
			s.Connection.Port = 5432
		}
		if s.Connection.SSLMode == "" {
			s.Connection.SSLMode = "disable"
		}
	}

	switch s.ResultLog.Type {
	case "", "none":
	default:
		if s.ResultLog.Name == "" {
			s.ResultLog.Name = "geoimport"
		}
		if s.ResultLog.TTL == 0 {
			s.ResultLog.TTL = 3600
		}
	}
	if r := s.ResultLog.RabbitMQ; r != nil {
		if r.Port == 0 {
			r.Port = 5672
		}
		if r.User == "" {
			r.User = "guest"
		}
		if r.Password == "" {
			r.Password = "guest"
		}
	}

	if s.Metrics.Job == "" {
		s.Metrics.Job = "geoimport"
	}

	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.Log.Format == "" {
		s.Log.Format = "console"
	}
}
