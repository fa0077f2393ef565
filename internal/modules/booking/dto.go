package booking

import (
	"time"

	"marketplace/internal/domain"
)

type CreateBookingRequest struct {
	CustomerID int64  `json:"-"`
	ServiceID  int64  `json:"service_id" binding:"required,gt=0"`
	Date       string `json:"date" binding:"required"`
	Note       string `json:"note" binding:"max=1000"`
}

type CreateBookingResult struct {
	Booking    *domain.Booking `json:"booking"`
	Fees       FeeBreakdown    `json:"fees"`
	NewBalance int64           `json:"new_balance"`
}

type UpdateStatusRequest struct {
	Status domain.BookingStatus `json:"status" binding:"required,booking_status"`
}

type SoftDeleteRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ListFilter is the caller-facing listing query. Page starts at 1.
type ListFilter struct {
	Status         domain.BookingStatus
	From           *time.Time
	To             *time.Time
	Page           int
	Limit          int
	IncludeDeleted bool
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// BookingView is a booking as returned to callers. Deletion is filled only
// in include-deleted listings.
type BookingView struct {
	*domain.Booking
	Deletion *domain.DeletionInfo `json:"deletion,omitempty"`
}
