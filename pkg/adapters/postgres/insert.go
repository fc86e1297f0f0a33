package postgres

import (
	"context"
	"fmt"
	"strings"
)

// submit runs a batch of INSERT statements as one multi-statement Exec.
// Without arguments pgx uses the simple protocol, which accepts several
// statements in one string.
func (b *Backend) submit(ctx context.Context, table string, batch []string) error {
	if _, err := b.db.Exec(ctx, strings.Join(batch, "\n")); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}
