package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/ruslano69/geoimport/pkg/adapters"
	"github.com/ruslano69/geoimport/pkg/adapters/postgres"
	"github.com/ruslano69/geoimport/pkg/bootstrap"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/resultlog"
	"github.com/ruslano69/geoimport/pkg/retry"
	"github.com/ruslano69/geoimport/pkg/settings"
)

// stubBackend грузит записи через настоящий loader без внешней БД
type stubBackend struct {
	opts     adapters.Options
	failKind geo.Kind
	loaded   map[geo.Kind]int
	closed   bool
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) EnsureTable(ctx context.Context, kind geo.Kind) (bootstrap.Descriptor, error) {
	return bootstrap.Descriptor{Name: string(kind)}, nil
}

func (b *stubBackend) Insert(ctx context.Context, kind geo.Kind, records []geo.Record, progress loader.Progress) (int, error) {
	submit := func(ctx context.Context, target string, batch []geo.Record) error {
		if kind == b.failKind {
			return errors.New("write capacity exceeded")
		}
		b.loaded[kind] += len(batch)
		return nil
	}
	identity := func(rec geo.Record) (geo.Record, error) { return rec, nil }

	l := loader.New(submit, loader.Options{BatchSize: 2}).
		WithProgress(progress).
		WithJournal(b.opts.Journal)
	if _, err := l.Load(ctx, records, identity, string(kind)); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (b *stubBackend) Close(ctx context.Context) error {
	b.closed = true
	return nil
}

func useStub(t *testing.T, stub *stubBackend) {
	t.Helper()
	adapters.Register(settings.PostgreSQL, func(ctx context.Context, cfg *settings.Settings, opts adapters.Options) (adapters.Backend, error) {
		stub.opts = opts
		return stub, nil
	})
	t.Cleanup(func() { adapters.Register(settings.PostgreSQL, postgres.New) })
}

const testCities = "3039154\tEl Tarter\tEl Tarter\t\t42.57952\t1.65362\tP\tPPL\tAD\t\t02\t\t\t\t1052\n" +
	"3039163\tSant Julià de Lòria\tSant Julia de Loria\t\t42.46372\t1.49129\tP\tPPLA\tAD\t\t06\t\t\t\t8022\n" +
	"3041563\tAndorra la Vella\tAndorra la Vella\t\t42.50779\t1.52109\tP\tPPLC\tAD\t\t07\t\t\t\t20430\n"

type fixture struct {
	dir      string
	settings string
	redis    *miniredis.Miniredis

	mu     sync.Mutex
	pushes []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), redis: miniredis.RunT(t)}

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, _ := zw.Create("cities1000.txt")
	w.Write([]byte(testCities))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	geonames := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dump/countryInfo.txt":
			w.Write([]byte("#ISO\tISO3\tISO-Numeric\tfips\tCountry\nAD\tAND\t020\tAN\tAndorra\nFR\tFRA\t250\tFR\tFrance\n"))
		case "/dump/cities1000.zip":
			w.Write(archive.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(geonames.Close)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pushes = append(f.pushes, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gateway.Close)

	yaml := fmt.Sprintf(`db: postgresql
connection: {user: geo, password: geo, ip: 127.0.0.1, database: geonames}
schema:
  country: {table: country}
  city: {table: city, population: 1000}
errorFileName: %q
source: {baseUrl: %q, timeout: 5}
resultLog: {type: redis, name: test, address: %q, ttl: 60}
metrics: {pushGateway: %q, job: geoimport}
log: {level: error}
`, filepath.Join(f.dir, "errors.json"), geonames.URL+"/dump", f.redis.Addr(), gateway.URL)

	f.settings = filepath.Join(f.dir, "settings.yaml")
	if err := os.WriteFile(f.settings, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) result(t *testing.T) resultlog.RunResult {
	t.Helper()
	stored, err := f.redis.Get(resultlog.StateKey("test"))
	if err != nil {
		t.Fatalf("run result not published: %v", err)
	}
	var result resultlog.RunResult
	if err := json.Unmarshal([]byte(stored), &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestRealMain_Success(t *testing.T) {
	f := newFixture(t)
	stub := &stubBackend{loaded: map[geo.Kind]int{}}
	useStub(t, stub)

	var stderr bytes.Buffer
	if code := realMain(context.Background(), []string{"-settings", f.settings}, &stderr); code != 0 {
		t.Fatalf("realMain() = %d, want 0; output:\n%s", code, stderr.String())
	}

	if stub.loaded[geo.Country] != 2 || stub.loaded[geo.City] != 3 {
		t.Errorf("loaded = %v, want 2 countries and 3 cities", stub.loaded)
	}
	if !stub.closed {
		t.Error("backend was not closed")
	}

	result := f.result(t)
	if result.Status != resultlog.StatusSuccess || result.RowsLoaded != 5 || result.Backend != "stub" {
		t.Errorf("result = %+v", result)
	}
	if _, err := uuid.Parse(result.RunID); err != nil {
		t.Errorf("run id %q: %v", result.RunID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) != 1 || f.pushes[0] != "PUT /metrics/job/geoimport/backend/postgresql" {
		t.Errorf("pushes = %v", f.pushes)
	}
}

func TestRealMain_FailureJournalsBatch(t *testing.T) {
	f := newFixture(t)
	stub := &stubBackend{loaded: map[geo.Kind]int{}, failKind: geo.City}
	useStub(t, stub)

	var stderr bytes.Buffer
	if code := realMain(context.Background(), []string{"-settings", f.settings}, &stderr); code != 1 {
		t.Fatalf("realMain() = %d, want 1", code)
	}

	result := f.result(t)
	if result.Status != resultlog.StatusFailed || result.Error == nil {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(*result.Error, "city: stage 4 (insert)") {
		t.Errorf("error = %q", *result.Error)
	}
	if result.RowsLoaded != 2 {
		t.Errorf("rows loaded = %d, want the 2 countries", result.RowsLoaded)
	}

	journal, err := retry.NewDLQ(retry.DLQConfig{FilePath: filepath.Join(f.dir, "errors.json")})
	if err != nil {
		t.Fatal(err)
	}
	entries := journal.Get()
	if len(entries) != 1 || entries[0].Target != "city" || entries[0].Batch != 1 {
		t.Errorf("journal = %+v", entries)
	}
}

func TestRealMain_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no settings", nil, 2},
		{"unknown flag", []string{"-bogus"}, 2},
		{"missing file", []string{"-settings", "/nonexistent/settings.yaml"}, 2},
		{"missing env file", []string{"-settings", "x.yaml", "-env-file", "/nonexistent/.env"}, 2},
		{"bad log level", []string{"-settings", "x.yaml", "-log-level", "loud"}, 2},
		{"version", []string{"-version"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := realMain(context.Background(), tt.args, &stderr); got != tt.want {
				t.Errorf("realMain(%v) = %d, want %d; output:\n%s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}

func TestRealMain_InvalidSettings(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	// JSON — тоже валидный YAML
	content := `{"db": "mongodb", "schema": {"country": {"table": "c"}, "city": {"table": "x", "population": 1000}}}`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	if code := realMain(context.Background(), []string{"-settings", file}, &stderr); code != 2 {
		t.Errorf("realMain() = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "db engine must be dynamodb or postgresql") {
		t.Errorf("output = %s", stderr.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "json", "console"); got != "json" {
		t.Errorf("firstNonEmpty() = %q, want json", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}

func TestOpenJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "errors.json")
	if err := os.WriteFile(path, []byte(`[{"id":"previous-run","target":"city"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &settings.Settings{ErrorFileName: path, ErrorFileMaxEntries: 2}
	journal, err := openJournal(cfg)
	if err != nil {
		t.Fatalf("openJournal() error = %v", err)
	}
	if journal.Size() != 0 {
		t.Errorf("journal size = %d, want 0: previous run kept", journal.Size())
	}

	for batch := 1; batch <= 3; batch++ {
		if err := journal.Add(retry.DLQEntry{Target: "city", Batch: batch}); err != nil {
			t.Fatal(err)
		}
	}
	// Остаются два последних батча
	entries := journal.Get()
	if len(entries) != 2 || entries[0].Batch != 2 || entries[1].Batch != 3 {
		t.Errorf("journal = %+v, want batches 2 and 3", entries)
	}

	disabled, err := openJournal(&settings.Settings{})
	if err != nil || disabled != nil {
		t.Errorf("openJournal() without file = %v, %v; want nil, nil", disabled, err)
	}
}
