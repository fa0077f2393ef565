package repository

import (
	"context"
	"time"

	"marketplace/internal/domain"

	"gorm.io/gorm"
)

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// DebitWallet subtracts amount only when the balance covers it. The guard and
// the decrement are one UPDATE statement so concurrent debits cannot overdraw.
func (s *Store) DebitWallet(ctx context.Context, userID, amount int64) (int64, error) {
	res := s.conn(ctx).Model(&domain.User{}).
		Where("id = ? AND wallet_balance >= ?", userID, amount).
		Updates(map[string]any{
			"wallet_balance": gorm.Expr("wallet_balance - ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientFunds
	}
	return s.balance(ctx, userID)
}

// ForceDebitWallet subtracts amount even if the balance goes negative.
// Used for provider claw-backs that are reconciled manually.
func (s *Store) ForceDebitWallet(ctx context.Context, userID, amount int64) (int64, error) {
	return s.adjust(ctx, userID, -amount)
}

func (s *Store) CreditWallet(ctx context.Context, userID, amount int64) (int64, error) {
	return s.adjust(ctx, userID, amount)
}

func (s *Store) adjust(ctx context.Context, userID, delta int64) (int64, error) {
	res := s.conn(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"wallet_balance": gorm.Expr("wallet_balance + ?", delta),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return s.balance(ctx, userID)
}

func (s *Store) balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	row := s.conn(ctx).Model(&domain.User{}).Select("wallet_balance").Where("id = ?", userID).Row()
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}
