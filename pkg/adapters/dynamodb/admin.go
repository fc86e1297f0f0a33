package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/bootstrap"
)

// CountryTable describes the country table: partition CountryCode, sort Name.
func CountryTable(name string, capacity bootstrap.Capacity) bootstrap.Descriptor {
	return bootstrap.Descriptor{
		Name: name,
		Key: []bootstrap.KeyElement{
			{Field: "CountryCode", Role: bootstrap.Partition},
			{Field: "Name", Role: bootstrap.Sort},
		},
		Capacity: capacity,
	}
}

// CityTable describes the city table: partition CountryCode, sort NameId.
func CityTable(name string, capacity bootstrap.Capacity) bootstrap.Descriptor {
	return bootstrap.Descriptor{
		Name: name,
		Key: []bootstrap.KeyElement{
			{Field: "CountryCode", Role: bootstrap.Partition},
			{Field: "NameId", Role: bootstrap.Sort},
		},
		Capacity: capacity,
	}
}

// createTableInput translates a descriptor. Every key attribute is a string.
func createTableInput(desc bootstrap.Descriptor) *ddb.CreateTableInput {
	input := &ddb.CreateTableInput{
		TableName: aws.String(desc.Name),
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(desc.Capacity.Read),
			WriteCapacityUnits: aws.Int64(desc.Capacity.Write),
		},
	}

	for _, k := range desc.Key {
		keyType := types.KeyTypeHash
		if k.Role == bootstrap.Sort {
			keyType = types.KeyTypeRange
		}
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(k.Field),
			AttributeType: types.ScalarAttributeTypeS,
		})
		input.KeySchema = append(input.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(k.Field),
			KeyType:       keyType,
		})
	}
	return input
}

// admin implements bootstrap.Admin over the DynamoDB control plane.
type admin struct {
	api           API
	waitForActive bool
	waitTimeout   time.Duration
}

func (a *admin) CreateTable(ctx context.Context, desc bootstrap.Descriptor) error {
	if _, err := a.api.CreateTable(ctx, createTableInput(desc)); err != nil {
		return err
	}
	if !a.waitForActive {
		return nil
	}

	log.Debug().Str("table", desc.Name).Msg("Waiting for table to become active")
	waiter := ddb.NewTableExistsWaiter(a.api)
	err := waiter.Wait(ctx, &ddb.DescribeTableInput{TableName: aws.String(desc.Name)}, a.waitTimeout)
	if err != nil {
		return fmt.Errorf("wait for table %s: %w", desc.Name, err)
	}
	return nil
}

func (a *admin) DeleteTable(ctx context.Context, name string) error {
	_, err := a.api.DeleteTable(ctx, &ddb.DeleteTableInput{TableName: aws.String(name)})
	return err
}

// Classify maps ResourceInUseException to a conflict and
// ResourceNotFoundException to not found.
func (a *admin) Classify(err error) bootstrap.Class {
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return bootstrap.Conflict
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return bootstrap.NotFound
	}
	return bootstrap.Other
}
