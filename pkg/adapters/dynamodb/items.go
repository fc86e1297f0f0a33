package dynamodb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ruslano69/geoimport/pkg/geo"
)

// CountryItem is a row of the country table.
type CountryItem struct {
	CountryCode string `dynamodbav:"CountryCode"`
	Name        string `dynamodbav:"Name"`
}

// CityItem is a row of the city table. NameId keeps cities with the same
// name apart within a country.
type CityItem struct {
	CountryCode string  `dynamodbav:"CountryCode"`
	NameID      string  `dynamodbav:"NameId"`
	CityID      string  `dynamodbav:"CityId"`
	Name        string  `dynamodbav:"Name"`
	ASCIIName   string  `dynamodbav:"AsciiName"`
	Population  int64   `dynamodbav:"Population"`
	Latitude    float64 `dynamodbav:"Latitude"`
	Longitude   float64 `dynamodbav:"Longitude"`
}

// NewCountryItem maps a country record.
func NewCountryItem(rec geo.Record) (CountryItem, error) {
	code, err := rec.Required(geo.Country, geo.CountryCodeField, "code")
	if err != nil {
		return CountryItem{}, err
	}
	name, err := rec.Required(geo.Country, geo.CountryNameField, "name")
	if err != nil {
		return CountryItem{}, err
	}
	return CountryItem{CountryCode: strings.ToUpper(code), Name: name}, nil
}

// NewCityItem maps a city record.
func NewCityItem(rec geo.Record) (CityItem, error) {
	id, err := rec.ID(geo.City, geo.CityIDField, "geonameid")
	if err != nil {
		return CityItem{}, err
	}
	name, err := rec.Required(geo.City, geo.CityNameField, "name")
	if err != nil {
		return CityItem{}, err
	}
	code, err := rec.Required(geo.City, geo.CityCountryCodeField, "country_code")
	if err != nil {
		return CityItem{}, err
	}
	population, err := rec.Int(geo.City, geo.CityPopulationField, "population", 0)
	if err != nil {
		return CityItem{}, err
	}
	lat, err := rec.Float(geo.City, geo.CityLatitudeField, "latitude", 0)
	if err != nil {
		return CityItem{}, err
	}
	lon, err := rec.Float(geo.City, geo.CityLongitudeField, "longitude", 0)
	if err != nil {
		return CityItem{}, err
	}

	return CityItem{
		CountryCode: strings.ToUpper(code),
		NameID:      id + "_" + name,
		CityID:      id,
		Name:        name,
		ASCIIName:   rec.Optional(geo.CityASCIINameField, ""),
		Population:  population,
		Latitude:    lat,
		Longitude:   lon,
	}, nil
}

// CountryRequest formats a country record as a put request.
func CountryRequest(rec geo.Record) (types.WriteRequest, error) {
	item, err := NewCountryItem(rec)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return putRequest(item)
}

// CityRequest formats a city record as a put request.
func CityRequest(rec geo.Record) (types.WriteRequest, error) {
	item, err := NewCityItem(rec)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return putRequest(item)
}

func putRequest(item any) (types.WriteRequest, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.WriteRequest{}, fmt.Errorf("error marshalling item for dynamo: %w", err)
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}, nil
}
