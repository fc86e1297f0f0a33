package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/retry"
)

// ErrUnprocessedItems means DynamoDB kept rejecting part of a batch.
var ErrUnprocessedItems = errors.New("unprocessed items")

// UnprocessedError reports the requests of a batch DynamoDB did not write.
type UnprocessedError struct {
	Table string
	Count int
}

func (e *UnprocessedError) Error() string {
	return fmt.Sprintf("%d %s writing to %s", e.Count, ErrUnprocessedItems, e.Table)
}

func (e *UnprocessedError) Is(target error) bool {
	return target == ErrUnprocessedItems
}

// submit sends one batch with BatchWriteItem. Unprocessed requests are sent
// again under the unprocessed retry policy; whatever is left after the last
// attempt fails the batch.
func (b *Backend) submit(ctx context.Context, table string, batch []types.WriteRequest) error {
	policy := retry.UnprocessedConfig()
	policy.Retryable = func(err error) bool { return errors.Is(err, ErrUnprocessedItems) }
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn().Err(err).Str("table", table).Int("attempt", attempt).Dur("delay", delay).
			Msg("Resubmitting unprocessed items")
	}

	retryer, err := retry.NewRetryer(policy)
	if err != nil {
		return err
	}
	if b.opts.Sleep != nil {
		retryer.WithSleep(b.opts.Sleep)
	}

	pending := batch
	return retryer.Do(ctx, func(ctx context.Context) error {
		resp, err := b.api.BatchWriteItem(ctx, &ddb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{table: pending},
		})
		if err != nil {
			return fmt.Errorf("error writing batch to dynamo: %w", err)
		}

		left := resp.UnprocessedItems[table]
		if len(left) == 0 {
			return nil
		}
		pending = left
		return &UnprocessedError{Table: table, Count: len(left)}
	})
}
