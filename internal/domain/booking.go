package domain

import "time"

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCompleted, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Active statuses hold the provider's day.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed || s == BookingInProgress
}

// CanTransition reports whether from -> to is in the legality table.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking rows are unique per provider and day while active and not soft-deleted.
// The where clause avoids commas because gorm splits index options on them.
type Booking struct {
	ID              int64         `json:"id"`
	CustomerID      int64         `json:"customer_id" gorm:"not null;index"`
	ProviderID      int64         `json:"provider_id" gorm:"not null;uniqueIndex:idx_provider_active_slot,priority:1,where:status <> 'completed' AND status <> 'cancelled' AND is_deleted = false"`
	ServiceID       int64         `json:"service_id" gorm:"not null;index"`
	Date            time.Time     `json:"date" gorm:"not null"`
	SlotDate        string        `json:"slot_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_provider_active_slot,priority:2"`
	Status          BookingStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	Price           int64         `json:"price" gorm:"not null"`
	PlatformFee     int64         `json:"platform_fee" gorm:"not null"`
	ProviderEarning int64         `json:"provider_earning" gorm:"not null"`
	Note            string        `json:"note,omitempty" gorm:"type:text"`
	CreatedAt       time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// Soft-delete audit fields stay out of default projections.
	IsDeleted      bool       `json:"-" gorm:"not null;default:false;index"`
	DeletedAt      *time.Time `json:"-"`
	DeletedBy      *int64     `json:"-"`
	DeletionReason string     `json:"-" gorm:"type:text"`
}

// DeletionInfo exposes the soft-delete fields for include-deleted reads.
type DeletionInfo struct {
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
	Reason    string     `json:"deletion_reason,omitempty"`
}

func (b *Booking) Deletion() *DeletionInfo {
	if !b.IsDeleted {
		return nil
	}
	return &DeletionInfo{
		IsDeleted: true,
		DeletedAt: b.DeletedAt,
		DeletedBy: b.DeletedBy,
		Reason:    b.DeletionReason,
	}
}

// IsParticipant reports whether userID is the booking's customer or provider.
func (b *Booking) IsParticipant(userID int64) bool {
	return b.CustomerID == userID || b.ProviderID == userID
}
