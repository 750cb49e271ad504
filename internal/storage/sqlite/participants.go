package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// EnsureParticipants creates missing participants by name and updates the
// position and excluded flag of existing ones.
func (s *SQLiteStore) EnsureParticipants(ctx context.Context, participants []models.Participant) ([]models.Participant, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range participants {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO participants (id, name, position, excluded) VALUES (?, ?, ?, ?)
				 ON CONFLICT (name) DO UPDATE SET position = excluded.position, excluded = excluded.excluded`,
				uuid.New().String(), p.Name, p.Position, p.Excluded,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert participant %q: %w", p.Name, err)
			}
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	return s.ListParticipants(ctx)
}

// ListParticipants returns all participants ordered by position.
func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, position, excluded FROM participants ORDER BY position, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Position, &p.Excluded); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// AssignPaymentMethod maps a payment name to a participant. Stored receipts
// paid with name move to the new owner.
func (s *SQLiteStore) AssignPaymentMethod(ctx context.Context, name, participantID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payment_methods (name, participant_id) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET participant_id = excluded.participant_id`,
			name, participantID,
		)
		if err != nil {
			return fmt.Errorf("failed to assign payment method: %w", err)
		}
		return bumpRevision(ctx, tx)
	})
}

// GetPaymentMethod returns the owner of a payment name.
// Returns nil if the name is not assigned.
func (s *SQLiteStore) GetPaymentMethod(ctx context.Context, name string) (*models.PaymentMethod, error) {
	pm := &models.PaymentMethod{}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, participant_id FROM payment_methods WHERE name = ?", name,
	).Scan(&pm.Name, &pm.ParticipantID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Payment name not assigned
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}

	return pm, nil
}

// IgnorePaymentName adds a payment name to the ignore list.
func (s *SQLiteStore) IgnorePaymentName(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ignored_payments (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("failed to ignore payment name: %w", err)
	}
	return nil
}

// IsPaymentIgnored reports whether a payment name is on the ignore list.
func (s *SQLiteStore) IsPaymentIgnored(ctx context.Context, name string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM ignored_payments WHERE name = ?", name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ignored payment: %w", err)
	}
	return true, nil
}
