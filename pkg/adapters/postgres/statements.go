package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
)

// CountryStatement returns the formatter of country inserts into table:
//
//	INSERT INTO country (code, name) VALUES ('AD', 'Andorra');
func CountryStatement(table string) loader.Formatter[string] {
	return func(rec geo.Record) (string, error) {
		code, err := rec.Required(geo.Country, geo.CountryCodeField, "code")
		if err != nil {
			return "", err
		}
		name, err := rec.Required(geo.Country, geo.CountryNameField, "name")
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("INSERT INTO %s (code, name) VALUES (%s, %s);",
			table, quote(strings.ToUpper(code)), quote(name)), nil
	}
}

// CityStatement returns the formatter of city inserts into table. Numeric
// columns are validated before they are written into the statement.
func CityStatement(table string) loader.Formatter[string] {
	return func(rec geo.Record) (string, error) {
		id, err := rec.ID(geo.City, geo.CityIDField, "geonameid")
		if err != nil {
			return "", err
		}
		name, err := rec.Required(geo.City, geo.CityNameField, "name")
		if err != nil {
			return "", err
		}
		code, err := rec.Required(geo.City, geo.CityCountryCodeField, "country_code")
		if err != nil {
			return "", err
		}
		population, err := rec.Int(geo.City, geo.CityPopulationField, "population", 0)
		if err != nil {
			return "", err
		}
		lat, err := rec.Float(geo.City, geo.CityLatitudeField, "latitude", 0)
		if err != nil {
			return "", err
		}
		lon, err := rec.Float(geo.City, geo.CityLongitudeField, "longitude", 0)
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("INSERT INTO %s (city_id, country_code, name, ascii_name, population, latitude, longitude) VALUES (%s, %s, %s, %s, %d, %s, %s);",
			table,
			id,
			quote(strings.ToUpper(code)),
			quote(name),
			quote(rec.Optional(geo.CityASCIINameField, "")),
			population,
			formatFloat(lat),
			formatFloat(lon),
		), nil
	}
}

// quote makes s a SQL string literal, doubling single quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
