package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserBalance is a user's current allowance balance.
type UserBalance struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	BalanceCents int64  `json:"balance_cents"`
}

// AppendAllowance records a ledger entry, computing the running balance from
// the newest prior entry inside one transaction.
func (store *Store) AppendAllowance(ctx context.Context, userID string, amountCents int64, note string) (*AllowanceEntry, error) {
	var entry *AllowanceEntry
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous AllowanceEntry
		balance := int64(0)
		err := tx.Where("user_id = ?", userID).Order("created_at DESC").Take(&previous).Error
		if err == nil {
			balance = previous.BalanceCents
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		entry = &AllowanceEntry{
			ID:           uuid.NewString(),
			UserID:       userID,
			AmountCents:  amountCents,
			BalanceCents: balance + amountCents,
			Note:         note,
		}
		return tx.Create(entry).Error
	})
	if txErr != nil {
		return nil, fmt.Errorf("store.allowance.append: %w", txErr)
	}
	return entry, nil
}

// ListAllowance returns a user's ledger, newest first.
func (store *Store) ListAllowance(ctx context.Context, userID string) ([]AllowanceEntry, error) {
	var entries []AllowanceEntry
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store.allowance.list: %w", err)
	}
	return entries, nil
}

// AllowanceBalances returns current balances for every tracked user.
func (store *Store) AllowanceBalances(ctx context.Context) ([]UserBalance, error) {
	var balances []UserBalance
	err := store.db.WithContext(ctx).Raw(`
		SELECT u.id AS user_id, u.name AS name, COALESCE(
			(SELECT balance_cents FROM allowance_ledger
			 WHERE user_id = u.id
			 ORDER BY created_at DESC
			 LIMIT 1), 0) AS balance_cents
		FROM users u
		WHERE u.track_allowance = ?
		ORDER BY u.name`, true).Scan(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("store.allowance.balances: %w", err)
	}
	return balances, nil
}
