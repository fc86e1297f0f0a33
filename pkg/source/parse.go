package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruslano69/geoimport/pkg/geo"
)

// maxLineSize bounds one line of a GeoNames dump. Lines with long
// alternatenames lists exceed bufio's default 64 KiB.
const maxLineSize = 1 << 20

// countryInfo.txt columns.
const (
	infoISOColumn     = 0
	infoCountryColumn = 4
)

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

// ParseCountryInfo reads GeoNames countryInfo.txt and projects every country
// onto the [code, name] layout. Comment lines start with '#'.
func ParseCountryInfo(r io.Reader) ([]geo.Record, error) {
	var records []geo.Record

	sc := newScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) <= infoCountryColumn {
			return nil, fmt.Errorf("countryInfo line %d: expected at least %d columns, got %d",
				line, infoCountryColumn+1, len(fields))
		}
		records = append(records, geo.Record{fields[infoISOColumn], fields[infoCountryColumn]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read countryInfo: %w", err)
	}
	return records, nil
}

// ParseCountryCSV reads a local code,name file. An optional "code,name"
// header is skipped.
func ParseCountryCSV(r io.Reader) ([]geo.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records []geo.Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read countries csv: %w", err)
		}

		rec := geo.Record(fields)
		if rec.IsBlank() {
			continue
		}
		if len(records) == 0 && isHeader(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func isHeader(rec geo.Record) bool {
	return len(rec) >= 2 &&
		strings.EqualFold(strings.TrimSpace(rec[0]), "code") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "name")
}

// ParseCities reads a tab separated citiesN.txt dump. Empty lines, such as the
// trailing newline, are skipped.
func ParseCities(r io.Reader) ([]geo.Record, error) {
	var records []geo.Record

	sc := newScanner(r)
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		records = append(records, geo.Record(strings.Split(text, "\t")))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cities: %w", err)
	}
	return records, nil
}
