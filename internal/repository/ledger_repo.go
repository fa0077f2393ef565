package repository

import (
	"context"

	"marketplace/internal/domain"

	"gorm.io/gorm"
)

func (s *Store) AppendLedger(ctx context.Context, entry *domain.LedgerEntry) error {
	return s.conn(ctx).Create(entry).Error
}

func (s *Store) ListLedgerForBooking(ctx context.Context, bookingID int64) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	if err := s.conn(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListLedgerForUser pages through a user's entries, newest first.
func (s *Store) ListLedgerForUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	q := s.conn(ctx).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []domain.LedgerEntry
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
