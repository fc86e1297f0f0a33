// Package geo describes the records imported from the GeoNames dataset.
//
// A Record is the raw field array produced by the parser. Its layout is
// positional and depends on the entity kind:
//
//	country: code, name
//	city:    geonameid, name, asciiname, alternatenames, latitude, longitude,
//	         feature class, feature code, country code, cc2, admin1..admin4,
//	         population, elevation, dem, timezone, modification date
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies one of the two fixed record shapes.
type Kind string

const (
	Country Kind = "country"
	City    Kind = "city"
)

// Kinds lists entity kinds in load order. Cities reference countries.
var Kinds = []Kind{Country, City}

// Field offsets of a country record.
const (
	CountryCodeField = 0
	CountryNameField = 1
)

// Field offsets of a city record.
const (
	CityIDField          = 0
	CityNameField        = 1
	CityASCIINameField   = 2
	CityLatitudeField    = 4
	CityLongitudeField   = 5
	CityCountryCodeField = 8
	CityPopulationField  = 14
)

// Record is one parsed line. Records are never modified after parsing.
type Record []string

// Field returns the value at index i and whether it exists.
func (r Record) Field(i int) (string, bool) {
	if i < 0 || i >= len(r) {
		return "", false
	}
	return r[i], true
}

// Required returns the trimmed value at index i or a DataFormatError when the
// field is absent or blank.
func (r Record) Required(kind Kind, i int, name string) (string, error) {
	v, ok := r.Field(i)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", &DataFormatError{Kind: kind, Field: name, Index: i, Reason: "missing"}
	}
	return v, nil
}

// Optional returns the trimmed value at index i, or def when absent or blank.
func (r Record) Optional(i int, def string) string {
	v, ok := r.Field(i)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	return v
}

// ID returns the required field at index i, which must be all digits. The
// text is returned as is, leading zeros included.
func (r Record) ID(kind Kind, i int, name string) (string, error) {
	v, err := r.Required(kind, i, name)
	if err != nil {
		return "", err
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return "", Malformed(kind, i, name, v)
		}
	}
	return v, nil
}

// Int parses the optional integer at index i; absent or blank yields def.
func (r Record) Int(kind Kind, i int, name string, def int64) (int64, error) {
	v := r.Optional(i, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, Malformed(kind, i, name, v)
	}
	return n, nil
}

// Float parses the optional finite number at index i; absent or blank yields
// def.
func (r Record) Float(kind Kind, i int, name string, def float64) (float64, error) {
	v := r.Optional(i, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, Malformed(kind, i, name, v)
	}
	return f, nil
}

// IsBlank reports whether the record carries no data at all (an empty line).
func (r Record) IsBlank() bool {
	for _, f := range r {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ErrDataFormat matches every DataFormatError via errors.Is.
var ErrDataFormat = errors.New("cannot format data")

// DataFormatError reports a record that a formatter could not turn into a
// write unit.
type DataFormatError struct {
	Kind   Kind
	Field  string
	Index  int
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("%s: %s field %q (index %d) %s", ErrDataFormat, e.Kind, e.Field, e.Index, e.Reason)
}

// Is makes errors.Is(err, ErrDataFormat) true.
func (e *DataFormatError) Is(target error) bool {
	return target == ErrDataFormat
}

// Malformed builds a DataFormatError for a present but invalid field.
func Malformed(kind Kind, i int, name, value string) error {
	return &DataFormatError{Kind: kind, Field: name, Index: i, Reason: fmt.Sprintf("malformed value %q", value)}
}
