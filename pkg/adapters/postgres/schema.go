package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ruslano69/geoimport/pkg/bootstrap"
)

// PostgreSQL error codes the bootstrapper reacts to.
const (
	codeDuplicateTable   = "42P07"
	codeUndefinedTable   = "42P01"
	codeObjectInUse      = "55006"
	codeLockNotAvailable = "55P03"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// validateIdentifier rejects table names that are not plain (optionally
// schema-qualified) identifiers; they are written into statements unquoted.
func validateIdentifier(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// CountryTable describes the country table, keyed by code.
func CountryTable(name string) bootstrap.Descriptor {
	return bootstrap.Descriptor{
		Name: name,
		Key:  []bootstrap.KeyElement{{Field: "code", Role: bootstrap.Primary}},
	}
}

// CityTable describes the city table, keyed by city_id.
func CityTable(name string) bootstrap.Descriptor {
	return bootstrap.Descriptor{
		Name: name,
		Key:  []bootstrap.KeyElement{{Field: "city_id", Role: bootstrap.Primary}},
	}
}

func countryDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	code VARCHAR(2) NOT NULL,
	name VARCHAR(255) NOT NULL,
	PRIMARY KEY (code)
);`, table)
}

func cityDDL(table, countryTable string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	city_id INT NOT NULL,
	name VARCHAR(255) NOT NULL,
	ascii_name VARCHAR(255) NULL,
	population INT NOT NULL DEFAULT 0,
	latitude FLOAT NOT NULL DEFAULT 0,
	longitude FLOAT NOT NULL DEFAULT 0,
	country_code VARCHAR(2) NOT NULL REFERENCES %s (code),
	PRIMARY KEY (city_id)
);`, table, countryTable)
}

// admin implements bootstrap.Admin with DDL statements.
type admin struct {
	db  DB
	ddl map[string]string // table name → CREATE TABLE
}

func (a *admin) CreateTable(ctx context.Context, desc bootstrap.Descriptor) error {
	ddl, ok := a.ddl[desc.Name]
	if !ok {
		return fmt.Errorf("no definition for table %s", desc.Name)
	}
	_, err := a.db.Exec(ctx, ddl)
	return err
}

// DeleteTable drops name together with the foreign keys pointing at it.
func (a *admin) DeleteTable(ctx context.Context, name string) error {
	_, err := a.db.Exec(ctx, fmt.Sprintf("DROP TABLE %s CASCADE;", name))
	return err
}

func (a *admin) Classify(err error) bootstrap.Class {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return bootstrap.Other
	}
	switch pgErr.Code {
	case codeDuplicateTable, codeObjectInUse, codeLockNotAvailable:
		return bootstrap.Conflict
	case codeUndefinedTable:
		return bootstrap.NotFound
	default:
		return bootstrap.Other
	}
}
