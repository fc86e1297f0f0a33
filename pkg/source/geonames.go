// Package source fetches and parses the GeoNames dataset.
//
// Files come from the GeoNames export directory over HTTP or from an S3
// bucket mirroring it:
//
//	countryInfo.txt     tab separated, '#' comments, projected to [code, name]
//	cities<N>.zip       holds cities<N>.txt, one tab separated city per line
//
// A local code,name CSV can replace countryInfo.txt.
package source

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/geo"
)

// CountryInfoFile is the GeoNames country list.
const CountryInfoFile = "countryInfo.txt"

// CitiesArchive is the archive of cities above population.
func CitiesArchive(population int) string {
	return fmt.Sprintf("cities%d.zip", population)
}

// CitiesFile is the dump inside CitiesArchive(population).
func CitiesFile(population int) string {
	return fmt.Sprintf("cities%d.txt", population)
}

// Format tells how a raw file is parsed.
type Format string

const (
	FormatCountryInfo Format = "countryInfo"
	FormatCountryCSV  Format = "csv"
	FormatCities      Format = "cities"
)

// Raw is a downloaded, unpacked input file.
type Raw struct {
	Kind   geo.Kind
	File   string
	Format Format
	Data   []byte
}

// Dataset is one parsed input file.
type Dataset struct {
	Kind     geo.Kind
	File     string
	Checksum string
	Records  []geo.Record
}

// Geonames reads countries and cities through a Fetcher.
type Geonames struct {
	fetcher     Fetcher
	countryFile string
	checksums   map[string]string
}

// New returns a dataset reader. A non-empty countryFile is read from disk
// instead of downloading countryInfo.txt.
func New(fetcher Fetcher, countryFile string) *Geonames {
	return &Geonames{fetcher: fetcher, countryFile: countryFile}
}

// WithChecksums makes every downloaded file listed in checksums verified
// against its expected digest.
func (g *Geonames) WithChecksums(checksums map[string]string) *Geonames {
	g.checksums = checksums
	return g
}

// Download returns the raw input of kind. population selects the cities
// archive and is ignored for countries.
func (g *Geonames) Download(ctx context.Context, kind geo.Kind, population int) (Raw, error) {
	switch kind {
	case geo.Country:
		if g.countryFile != "" {
			data, err := os.ReadFile(g.countryFile)
			if err != nil {
				return Raw{}, fmt.Errorf("failed to read countries file: %w", err)
			}
			return Raw{Kind: kind, File: g.countryFile, Format: FormatCountryCSV, Data: data}, nil
		}

		data, err := g.fetch(ctx, CountryInfoFile)
		if err != nil {
			return Raw{}, err
		}
		return Raw{Kind: kind, File: CountryInfoFile, Format: FormatCountryInfo, Data: data}, nil

	case geo.City:
		archive, err := g.fetch(ctx, CitiesArchive(population))
		if err != nil {
			return Raw{}, err
		}
		name := CitiesFile(population)
		data, err := Extract(archive, name)
		if err != nil {
			return Raw{}, err
		}
		return Raw{Kind: kind, File: name, Format: FormatCities, Data: data}, nil

	default:
		return Raw{}, fmt.Errorf("unknown entity kind: %s", kind)
	}
}

// Parse turns a raw file into records.
func Parse(raw Raw) (Dataset, error) {
	var (
		records []geo.Record
		err     error
	)
	r := bytes.NewReader(raw.Data)
	switch raw.Format {
	case FormatCountryInfo:
		records, err = ParseCountryInfo(r)
	case FormatCountryCSV:
		records, err = ParseCountryCSV(r)
	case FormatCities:
		records, err = ParseCities(r)
	default:
		err = fmt.Errorf("unknown format %q", raw.Format)
	}
	if err != nil {
		return Dataset{}, err
	}

	ds := Dataset{
		Kind:     raw.Kind,
		File:     raw.File,
		Checksum: Checksum(raw.Data),
		Records:  records,
	}
	log.Info().
		Str("kind", string(ds.Kind)).
		Str("file", ds.File).
		Str("xxh3", ds.Checksum).
		Int("records", len(records)).
		Msg("Parsed dataset")
	return ds, nil
}

func (g *Geonames) fetch(ctx context.Context, name string) ([]byte, error) {
	log.Info().Str("file", name).Msg("Downloading")

	data, err := g.fetcher.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	if expected, ok := g.checksums[name]; ok {
		if err := VerifyChecksum(data, expected); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return data, nil
}
