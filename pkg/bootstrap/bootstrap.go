// Package bootstrap makes sure a target table exists with the expected key
// structure, dropping and recreating it when creation collides with an
// existing or in-flight definition of the same name.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/retry"
)

// Role is the part a key attribute plays in the table's key.
type Role string

const (
	Partition Role = "partition"
	Sort      Role = "sort"
	Primary   Role = "primary"
)

// KeyElement is one attribute of the key schema.
type KeyElement struct {
	Field string
	Role  Role
}

// Capacity holds throughput hints. Backends without provisioned throughput
// ignore it.
type Capacity struct {
	Read  int64
	Write int64
}

// Descriptor is the logical definition of a table.
type Descriptor struct {
	Name     string
	Key      []KeyElement
	Capacity Capacity
}

// KeyField returns the attribute playing role, or "" if none does.
func (d Descriptor) KeyField(role Role) string {
	for _, k := range d.Key {
		if k.Role == role {
			return k.Field
		}
	}
	return ""
}

// Class is the outcome category of a failed admin call.
type Class int

const (
	// Other errors are fatal.
	Other Class = iota
	// Conflict means the name is taken or an operation on it is in progress.
	Conflict
	// NotFound means the table does not exist.
	NotFound
)

func (c Class) String() string {
	switch c {
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Admin is the table administration surface of a backend.
type Admin interface {
	CreateTable(ctx context.Context, desc Descriptor) error
	DeleteTable(ctx context.Context, name string) error
	Classify(err error) Class
}

// Bootstrapper runs EnsureTable against one backend.
type Bootstrapper struct {
	admin  Admin
	policy retry.Config
	sleep  retry.SleepFunc
}

// New creates a Bootstrapper with the schema retry policy: five delete
// attempts, five seconds apart.
func New(admin Admin) *Bootstrapper {
	return &Bootstrapper{
		admin:  admin,
		policy: retry.SchemaConfig(),
		sleep:  retry.Sleep,
	}
}

// WithPolicy replaces the retry policy.
func (b *Bootstrapper) WithPolicy(policy retry.Config) *Bootstrapper {
	b.policy = policy
	return b
}

// WithSleep replaces the wait between attempts.
func (b *Bootstrapper) WithSleep(sleep retry.SleepFunc) *Bootstrapper {
	b.sleep = sleep
	return b
}

// EnsureTable creates desc. When creation conflicts, the table is deleted and
// creation is tried again.
//
// Delete conflicts are retried under the retry policy; exhausting it returns
// retry.ErrTooManyAttempts. A missing table on delete counts as deleted. Any
// other error is returned at once, without retry.
//
// A recreated table may still be provisioning when EnsureTable returns.
func (b *Bootstrapper) EnsureTable(ctx context.Context, desc Descriptor) (Descriptor, error) {
	logger := log.With().Str("table", desc.Name).Logger()

	// One state per call: repeated or parallel bootstraps never share a budget.
	policy := b.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Table busy, retrying")
		if userHook != nil {
			userHook(attempt, err, delay)
		}
	}
	state := retry.NewState(policy, b.sleep)

	dropped := false
	for {
		err := b.admin.CreateTable(ctx, desc)
		if err == nil {
			tablesCreated.WithLabelValues(desc.Name).Inc()
			logger.Info().Bool("recreated", dropped).Int("retries", state.Attempts()).Msg("Table created")
			return desc, nil
		}

		if b.admin.Classify(err) != Conflict {
			return Descriptor{}, fmt.Errorf("create table %s: %w", desc.Name, err)
		}

		// Deletion still in flight: wait on the same budget before dropping again.
		if dropped {
			if err := state.Backoff(ctx, err); err != nil {
				return Descriptor{}, fmt.Errorf("create table %s: %w", desc.Name, err)
			}
		}

		logger.Info().Err(err).Msg("Table exists, dropping it")
		if err := b.drop(ctx, desc.Name, state); err != nil {
			return Descriptor{}, err
		}
		dropped = true
	}
}

// drop deletes name, retrying conflicts on state.
func (b *Bootstrapper) drop(ctx context.Context, name string, state *retry.State) error {
	for {
		deleteAttempts.WithLabelValues(name).Inc()
		err := b.admin.DeleteTable(ctx, name)
		if err == nil {
			return nil
		}

		switch b.admin.Classify(err) {
		case NotFound:
			return nil
		case Conflict:
			if err := state.Backoff(ctx, err); err != nil {
				return fmt.Errorf("delete table %s: %w", name, err)
			}
		default:
			return fmt.Errorf("delete table %s: %w", name, err)
		}
	}
}
