package repository

import (
	"context"
	"time"

	"marketplace/internal/domain"

	"gorm.io/gorm"
)

// BookingFilter narrows ListBookings. Nil pointers mean "any".
type BookingFilter struct {
	CustomerID     *int64
	ProviderID     *int64
	Status         domain.BookingStatus
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func notDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

func activeStatuses(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", []domain.BookingStatus{
		domain.BookingPending,
		domain.BookingConfirmed,
		domain.BookingInProgress,
	})
}

// CreateBooking inserts b. A unique violation on the provider/day index is
// reported as ErrSlotTaken.
func (s *Store) CreateBooking(ctx context.Context, b *domain.Booking) error {
	if err := s.conn(ctx).Create(b).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id int64, includeDeleted bool) (*domain.Booking, error) {
	q := s.conn(ctx)
	if !includeDeleted {
		q = q.Scopes(notDeleted)
	}
	var b domain.Booking
	if err := q.First(&b, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// CompareAndSetStatus moves the booking from -> to only if it is still in
// from. It returns false when another writer got there first.
func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.BookingStatus, at time.Time) (bool, error) {
	res := s.conn(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) MarkDeleted(ctx context.Context, id, actorID int64, reason string, at time.Time) (bool, error) {
	res := s.conn(ctx).Model(&domain.Booking{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"is_deleted":      true,
			"deleted_at":      at,
			"deleted_by":      actorID,
			"deletion_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearDeleted restores a soft-deleted booking. Restoring an active booking
// whose day was taken in the meantime fails with ErrSlotTaken.
func (s *Store) ClearDeleted(ctx context.Context, id int64) (bool, error) {
	res := s.conn(ctx).Model(&domain.Booking{}).
		Where("id = ? AND is_deleted = ?", id, true).
		Updates(map[string]any{
			"is_deleted":      false,
			"deleted_at":      nil,
			"deleted_by":      nil,
			"deletion_reason": "",
		})
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return false, ErrSlotTaken
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HardDeleteBooking removes a booking that is already soft-deleted.
func (s *Store) HardDeleteBooking(ctx context.Context, id int64) (bool, error) {
	res := s.conn(ctx).Where("id = ? AND is_deleted = ?", id, true).Delete(&domain.Booking{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDeletedBefore returns ids of bookings soft-deleted before cutoff,
// oldest first.
func (s *Store) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).Model(&domain.Booking{}).
		Where("is_deleted = ? AND deleted_at < ?", true, cutoff.UTC()).
		Order("deleted_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Store) CountActiveForProviderDay(ctx context.Context, providerID int64, slotDate string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&domain.Booking{}).
		Scopes(notDeleted, activeStatuses).
		Where("provider_id = ? AND slot_date = ?", providerID, slotDate).
		Count(&n).Error
	return n, err
}

// CountCreatedByCustomerSince counts soft-deleted rows too, so deleting a
// booking does not free quota.
func (s *Store) CountCreatedByCustomerSince(ctx context.Context, customerID int64, since time.Time) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&domain.Booking{}).
		Where("customer_id = ? AND created_at >= ?", customerID, since.UTC()).
		Count(&n).Error
	return n, err
}

func (s *Store) ListBookings(ctx context.Context, f BookingFilter) ([]domain.Booking, int64, error) {
	q := s.conn(ctx).Model(&domain.Booking{})
	if !f.IncludeDeleted {
		q = q.Scopes(notDeleted)
	}
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.ProviderID != nil {
		q = q.Where("provider_id = ?", *f.ProviderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("date < ?", f.To.UTC())
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q = q.Order("date desc").Order("id desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []domain.Booking
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
