package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// LedgerRevision returns the counter bumped by every write that changes how
// open items are paid or split.
func (s *SQLiteStore) LedgerRevision(ctx context.Context) (int64, error) {
	return ledgerRevision(ctx, s.db)
}

func ledgerRevision(ctx context.Context, q querier) (int64, error) {
	var revision int64
	if err := q.QueryRowContext(ctx, "SELECT revision FROM ledger_revision WHERE id = 1").Scan(&revision); err != nil {
		return 0, fmt.Errorf("failed to read ledger revision: %w", err)
	}
	return revision, nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "UPDATE ledger_revision SET revision = revision + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to bump ledger revision: %w", err)
	}
	return nil
}
