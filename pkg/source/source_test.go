package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zip"

	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/retry"
)

const countryInfo = "# GeoNames country info\n" +
	"#ISO\tISO3\tISO-Numeric\tfips\tCountry\tCapital\n" +
	"AD\tAND\t020\tAN\tAndorra\tAndorra la Vella\n" +
	"\n" +
	"CI\tCIV\t384\tIV\tIvory Coast\tYamoussoukro\r\n"

const cities = "3039154\tEl Tarter\tEl Tarter\tAin Tarter\t42.57952\t1.65362\tP\tPPL\tAD\t\t02\t\t\t\t1052\t\t1721\tEurope/Andorra\t2012-11-03\n" +
	"3039163\tSant Julià de Lòria\tSant Julia de Loria\t\t42.46372\t1.49129\tP\tPPLA\tAD\t\t06\t\t\t\t8022\t\t921\tEurope/Andorra\t2013-11-23\r\n" +
	"\n"

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testRetryer(t *testing.T) *retry.Retryer {
	t.Helper()
	policy := retry.DownloadConfig()
	policy.Retryable = IsTransient
	r, err := retry.NewRetryer(policy)
	if err != nil {
		t.Fatal(err)
	}
	return r.WithSleep(noSleep)
}

// newServer отдает файлы каталога экспорта GeoNames
func newServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/export/dump/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseCountryInfo(t *testing.T) {
	records, err := ParseCountryInfo(strings.NewReader(countryInfo))
	if err != nil {
		t.Fatalf("ParseCountryInfo() error = %v", err)
	}

	want := []geo.Record{{"AD", "Andorra"}, {"CI", "Ivory Coast"}}
	if len(records) != len(want) {
		t.Fatalf("records = %v, want %v", records, want)
	}
	for i := range want {
		if records[i][0] != want[i][0] || records[i][1] != want[i][1] {
			t.Errorf("record %d = %v, want %v", i, records[i], want[i])
		}
	}
}

func TestParseCountryInfo_ShortLine(t *testing.T) {
	_, err := ParseCountryInfo(strings.NewReader("AD\tAND\n"))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("ParseCountryInfo() error = %v, want line 1 error", err)
	}
}

func TestParseCountryCSV(t *testing.T) {
	input := "code,name\nAD,Andorra\n\nCI,\"Côte d'Ivoire\"\nKR,\"Korea, Republic of\"\n"

	records, err := ParseCountryCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCountryCSV() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %v, want 3", records)
	}
	if records[1][1] != "Côte d'Ivoire" {
		t.Errorf("records[1] = %v", records[1])
	}
	if records[2][1] != "Korea, Republic of" {
		t.Errorf("records[2] = %v", records[2])
	}
}

func TestParseCities(t *testing.T) {
	records, err := ParseCities(strings.NewReader(cities))
	if err != nil {
		t.Fatalf("ParseCities() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	rec := records[1]
	if rec[geo.CityIDField] != "3039163" || rec[geo.CityCountryCodeField] != "AD" {
		t.Errorf("record = %v", rec)
	}
	// \r не должен попасть в последнее поле
	if last := rec[len(rec)-1]; last != "2013-11-23" {
		t.Errorf("last field = %q, want 2013-11-23", last)
	}
	if rec[geo.CityPopulationField] != "8022" {
		t.Errorf("population = %q, want 8022", rec[geo.CityPopulationField])
	}
}

func TestParseCities_LongLine(t *testing.T) {
	alt := strings.Repeat("x,", 60*1024)
	line := "1\tName\tName\t" + alt + "\t0\t0\tP\tPPL\tFR\n"

	records, err := ParseCities(strings.NewReader(line))
	if err != nil {
		t.Fatalf("ParseCities() error = %v", err)
	}
	if len(records) != 1 || records[0][8] != "FR" {
		t.Errorf("records = %d", len(records))
	}
}

func TestExtract(t *testing.T) {
	archive := makeZip(t, map[string]string{"cities1000.txt": cities, "readme.txt": "x"})

	data, err := Extract(archive, "cities1000.txt")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if string(data) != cities {
		t.Errorf("Extract() returned %d bytes, want %d", len(data), len(cities))
	}

	if _, err := Extract(archive, "cities500.txt"); !errors.Is(err, ErrNotInArchive) {
		t.Errorf("Extract() error = %v, want ErrNotInArchive", err)
	}
	if _, err := Extract([]byte("not a zip"), "cities1000.txt"); err == nil {
		t.Error("Extract() should fail on a corrupt archive")
	}
}

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte(cities))
	if len(sum) != 16 {
		t.Errorf("Checksum() = %q, want 16 hex digits", sum)
	}
	if sum != Checksum([]byte(cities)) {
		t.Error("Checksum() is not deterministic")
	}
	if err := VerifyChecksum([]byte(cities), sum); err != nil {
		t.Errorf("VerifyChecksum() error = %v", err)
	}
	if err := VerifyChecksum([]byte(countryInfo), sum); err == nil {
		t.Error("VerifyChecksum() should detect different data")
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := newServer(t, map[string][]byte{CountryInfoFile: []byte(countryInfo)})
	f := NewHTTPFetcher(srv.URL+"/export/dump/", 5*time.Second)

	data, err := f.Fetch(context.Background(), CountryInfoFile)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != countryInfo {
		t.Errorf("Fetch() = %q", data)
	}

	_, err = f.Fetch(context.Background(), "missing.zip")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("Fetch() error = %v, want 404 StatusError", err)
	}
	if se.Temporary() {
		t.Error("404 should not be temporary")
	}
}

func TestWithRetry_TransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := WithRetry(NewHTTPFetcher(srv.URL, 5*time.Second), testRetryer(t))

	data, err := f.Fetch(context.Background(), "countryInfo.txt")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "ok" || hits.Load() != 3 {
		t.Errorf("Fetch() = %q after %d requests, want ok after 3", data, hits.Load())
	}
}

func TestWithRetry_NotFoundIsFinal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := WithRetry(NewHTTPFetcher(srv.URL, 5*time.Second), testRetryer(t))

	if _, err := f.Fetch(context.Background(), "cities42.zip"); err == nil {
		t.Fatal("Fetch() should fail")
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := WithRetry(NewHTTPFetcher(srv.URL, 5*time.Second), testRetryer(t))

	_, err := f.Fetch(context.Background(), "countryInfo.txt")
	if !errors.Is(err, retry.ErrTooManyAttempts) {
		t.Errorf("Fetch() error = %v, want ErrTooManyAttempts", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("Fetch() error = %v, want the last StatusError", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{StatusCode: 500}, true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 403}, false},
		{fmt.Errorf("download: %w", context.Canceled), false},
		{errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type countingFetcher struct {
	calls int
	data  []byte
}

func (f *countingFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	f.calls++
	return f.data, nil
}

func TestWithCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	next := &countingFetcher{data: []byte("archive")}
	f := WithCache(next, dir)

	for i := 0; i < 2; i++ {
		data, err := f.Fetch(context.Background(), "cities1000.zip")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(data) != "archive" {
			t.Errorf("Fetch() = %q", data)
		}
	}
	if next.calls != 1 {
		t.Errorf("downloads = %d, want 1", next.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "cities1000.zip")); err != nil {
		t.Errorf("cached file missing: %v", err)
	}
}

// fakeS3 отдает объекты с поддержкой Range, как это делает S3
type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(in.Key))
	}

	start, end := 0, len(data)-1
	if in.Range != nil {
		fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end)
	}
	if end >= len(data) {
		end = len(data) - 1
	}
	chunk := data[start : end+1]

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(chunk)),
		ContentLength: aws.Int64(int64(len(chunk))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

func TestS3Fetcher_Fetch(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"mirror/geonames/countryInfo.txt": []byte(countryInfo),
	}}
	f := NewS3Fetcher(client, "mirror", "geonames")

	data, err := f.Fetch(context.Background(), CountryInfoFile)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != countryInfo {
		t.Errorf("Fetch() = %q", data)
	}

	if _, err := f.Fetch(context.Background(), "cities500.zip"); err == nil {
		t.Error("Fetch() should fail for a missing key")
	}
}

// load runs Download and Parse the way the pipeline stages do.
func load(g *Geonames, kind geo.Kind, population int) (Dataset, error) {
	raw, err := g.Download(context.Background(), kind, population)
	if err != nil {
		return Dataset{}, err
	}
	return Parse(raw)
}

func TestGeonames_Download(t *testing.T) {
	archive := makeZip(t, map[string]string{"cities1000.txt": cities})
	srv := newServer(t, map[string][]byte{
		CountryInfoFile:  []byte(countryInfo),
		"cities1000.zip": archive,
	})
	g := New(NewHTTPFetcher(srv.URL+"/export/dump/", 5*time.Second), "")

	raw, err := g.Download(context.Background(), geo.Country, 0)
	if err != nil {
		t.Fatalf("Download(country) error = %v", err)
	}
	if raw.Format != FormatCountryInfo || raw.File != CountryInfoFile || string(raw.Data) != countryInfo {
		t.Errorf("Download(country) = %+v", raw)
	}

	countries, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if countries.Kind != geo.Country || len(countries.Records) != 2 || countries.File != CountryInfoFile {
		t.Errorf("Parse() = %+v", countries)
	}

	ds, err := load(g, geo.City, 1000)
	if err != nil {
		t.Fatalf("load(city) error = %v", err)
	}
	if ds.Kind != geo.City || len(ds.Records) != 2 || ds.File != "cities1000.txt" {
		t.Errorf("load(city) = %+v", ds)
	}
	if ds.Checksum != Checksum([]byte(cities)) {
		t.Errorf("Checksum = %s, want checksum of the extracted dump", ds.Checksum)
	}

	if _, err := g.Download(context.Background(), geo.City, 5000); err == nil {
		t.Error("Download(city, 5000) should fail, archive is missing")
	}
}

func TestGeonames_ChecksumMismatch(t *testing.T) {
	srv := newServer(t, map[string][]byte{CountryInfoFile: []byte(countryInfo)})
	g := New(NewHTTPFetcher(srv.URL+"/export/dump/", 5*time.Second), "").
		WithChecksums(map[string]string{CountryInfoFile: "0000000000000000"})

	_, err := g.Download(context.Background(), geo.Country, 0)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Download() error = %v, want checksum mismatch", err)
	}
}

func TestGeonames_LocalCountryFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "countries.csv")
	if err := os.WriteFile(file, []byte("AD,Andorra\nFR,France\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	next := &countingFetcher{}
	ds, err := load(New(next, file), geo.Country, 0)
	if err != nil {
		t.Fatalf("load(country) error = %v", err)
	}
	if len(ds.Records) != 2 || ds.Records[1][0] != "FR" {
		t.Errorf("load(country) = %+v", ds.Records)
	}
	if next.calls != 0 {
		t.Errorf("downloads = %d, want 0", next.calls)
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	if _, err := Parse(Raw{Kind: geo.City, Format: "xml"}); err == nil {
		t.Error("Parse() should reject an unknown format")
	}
}
