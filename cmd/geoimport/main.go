// geoimport loads the GeoNames countries and cities into DynamoDB or
// PostgreSQL.
//
// Usage:
//
//	geoimport -settings settings.yaml [-env-file .env] [-log-level debug] [-log-format json]
//
// GEOIMPORT_* environment variables override the connection and result log
// credentials of the settings file.
//
// The target tables are recreated on every run. Exit status is 0 on success,
// 1 when the import fails and 2 on invalid usage or settings.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	_ "github.com/ruslano69/geoimport/pkg/adapters/dynamodb"
	_ "github.com/ruslano69/geoimport/pkg/adapters/postgres"
	"github.com/ruslano69/geoimport/pkg/resultlog"
	"github.com/ruslano69/geoimport/pkg/settings"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, stderr io.Writer) int {
	flags, err := ParseFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "geoimport: %v\n", err)
		return 2
	}
	if *flags.Version {
		fmt.Fprintf(stderr, "geoimport version %s\n", version)
		return 0
	}

	if err := setupLogger(*flags.LogLevel, *flags.LogFormat, stderr); err != nil {
		fmt.Fprintf(stderr, "geoimport: %v\n", err)
		return 2
	}

	if *flags.EnvFile != "" {
		if err := settings.LoadEnvFile(*flags.EnvFile); err != nil {
			log.Error().Err(err).Str("env_file", *flags.EnvFile).Msg("Env file load failed")
			return 2
		}
	}

	cfg, err := settings.Load(*flags.Settings)
	if err != nil {
		log.Error().Err(err).Str("settings", *flags.Settings).Msg("Settings load failed")
		return 2
	}

	level := firstNonEmpty(*flags.LogLevel, cfg.Log.Level)
	format := firstNonEmpty(*flags.LogFormat, cfg.Log.Format)
	if err := setupLogger(level, format, stderr); err != nil {
		log.Error().Err(err).Msg("Logger setup failed")
		return 2
	}

	runID := uuid.NewString()
	log.Logger = log.With().Str("run_id", runID).Logger()

	log.Info().
		Str("version", version).
		Str("db", string(cfg.DB)).
		Int("population", cfg.Schema.City.Population).
		Msg("geoimport started")

	stats, runErr := run(ctx, cfg)
	result := resultlog.NewRunResult(cfg.ResultLog.Name, stats, runErr)
	result.RunID = runID
	recordRun(result)

	// Результат публикуется и после отмены основного контекста
	reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report(reportCtx, cfg, result)

	if runErr != nil {
		log.Error().Err(runErr).Msg("Import failed")
		return 1
	}

	log.Info().
		Int("rows_loaded", result.RowsLoaded).
		Dur("elapsed", stats.Duration).
		Msg("Import complete")
	return 0
}

// report publishes the run result and pushes metrics. Failures are logged,
// they do not change the exit status.
func report(ctx context.Context, cfg *settings.Settings, result resultlog.RunResult) {
	publisher, err := resultlog.New(cfg.ResultLog)
	if err != nil {
		log.Warn().Err(err).Msg("Result log unavailable")
	} else {
		if err := publisher.Publish(ctx, result); err != nil {
			log.Warn().Err(err).Str("type", cfg.ResultLog.Type).Msg("Failed to publish run result")
		}
		publisher.Close()
	}

	if err := pushMetrics(ctx, cfg.Metrics, string(cfg.DB)); err != nil {
		log.Warn().Err(err).Str("gateway", cfg.Metrics.PushGateway).Msg("Metrics push failed")
	}
}
