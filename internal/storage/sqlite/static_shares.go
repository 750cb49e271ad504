package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// GetStaticShare returns the static share for a product name.
// Returns nil if none exists.
func (s *SQLiteStore) GetStaticShare(ctx context.Context, itemName string) (*models.StaticShare, error) {
	return getStaticShare(ctx, s.db, itemName)
}

func getStaticShare(ctx context.Context, q querier, itemName string) (*models.StaticShare, error) {
	share := &models.StaticShare{Percentages: make(map[string]decimal.Decimal)}
	err := q.QueryRowContext(ctx,
		"SELECT id, item_name, updated_at FROM static_shares WHERE item_name = ?", itemName,
	).Scan(&share.ID, &share.ItemName, &share.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get static share: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT participant_id, percentage FROM static_share_percentages WHERE static_share_id = ?", share.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get static share percentages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var participantID string
		var pct decimal.Decimal
		if err := rows.Scan(&participantID, &pct); err != nil {
			return nil, fmt.Errorf("failed to scan static share percentage: %w", err)
		}
		share.Percentages[participantID] = pct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate static share percentages: %w", err)
	}
	return share, nil
}

// UpsertStaticShare creates or replaces the static share for share.ItemName and
// appends a history entry for every participant whose percentage changed.
func (s *SQLiteStore) UpsertStaticShare(ctx context.Context, share *models.StaticShare, changedBy, reason string) error {
	now := time.Now().Unix()
	share.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getStaticShare(ctx, tx, share.ItemName)
		if err != nil {
			return err
		}

		old := map[string]decimal.Decimal{}
		if existing != nil {
			share.ID = existing.ID
			old = existing.Percentages
			if _, err := tx.ExecContext(ctx,
				"UPDATE static_shares SET updated_at = ? WHERE id = ?", now, share.ID); err != nil {
				return fmt.Errorf("failed to update static share: %w", err)
			}
		} else {
			if share.ID == "" {
				share.ID = uuid.New().String()
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO static_shares (id, item_name, updated_at) VALUES (?, ?, ?)",
				share.ID, share.ItemName, now); err != nil {
				return fmt.Errorf("failed to insert static share: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM static_share_percentages WHERE static_share_id = ?", share.ID); err != nil {
			return fmt.Errorf("failed to clear static share percentages: %w", err)
		}

		participantIDs := make([]string, 0, len(share.Percentages))
		for id := range share.Percentages {
			participantIDs = append(participantIDs, id)
		}
		sort.Strings(participantIDs)

		for _, participantID := range participantIDs {
			pct := share.Percentages[participantID]
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO static_share_percentages (static_share_id, participant_id, percentage) VALUES (?, ?, ?)",
				share.ID, participantID, pct); err != nil {
				return fmt.Errorf("failed to insert static share percentage: %w", err)
			}

			var oldValue any
			if prev, ok := old[participantID]; ok {
				if prev.Equal(pct) {
					continue
				}
				oldValue = prev
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO static_share_history
				  (static_share_id, participant_id, old_percentage, new_percentage, changed_by, reason, changed_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				share.ID, participantID, oldValue, pct, changedBy, reason, now); err != nil {
				return fmt.Errorf("failed to record static share change: %w", err)
			}
		}
		return bumpRevision(ctx, tx)
	})
}

// ListStaticShareChanges returns the audit history of the static share for itemName, oldest first.
func (s *SQLiteStore) ListStaticShareChanges(ctx context.Context, itemName string) ([]models.StaticShareChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.static_share_id, h.participant_id, h.old_percentage, h.new_percentage,
		        h.changed_by, h.reason, h.changed_at
		 FROM static_share_history h JOIN static_shares s ON s.id = h.static_share_id
		 WHERE s.item_name = ? ORDER BY h.id`,
		itemName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list static share changes: %w", err)
	}
	defer rows.Close()

	var changes []models.StaticShareChange
	for rows.Next() {
		var c models.StaticShareChange
		var old decimal.NullDecimal
		if err := rows.Scan(&c.StaticShareID, &c.ParticipantID, &old, &c.New,
			&c.ChangedBy, &c.Reason, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan static share change: %w", err)
		}
		if old.Valid {
			c.Old = &old.Decimal
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate static share changes: %w", err)
	}
	return changes, nil
}
