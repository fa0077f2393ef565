package booking

import (
	"errors"
	"fmt"
	"strings"

	"marketplace/internal/domain"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrSelfBooking        = errors.New("cannot book your own service")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrSlotConflict       = errors.New("provider already has a booking on this day")
	ErrDailyQuotaExceeded = errors.New("daily booking limit reached")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnauthorized       = errors.New("not allowed to perform this action")
	ErrAlreadyDeleted     = errors.New("booking already deleted")
	ErrNotDeleted         = errors.New("booking is not deleted")
	ErrNotSoftDeleted     = errors.New("booking must be soft-deleted first")
	ErrUnavailable        = errors.New("store temporarily unavailable")
	ErrInternal           = errors.New("internal error")
	errInvariant          = errors.New("invariant violated")
	errStatusRaced        = errors.New("status changed concurrently")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrValidation, "VALIDATION_ERROR"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrSelfBooking, "SELF_BOOKING_FORBIDDEN"},
	{ErrInvalidSchedule, "INVALID_SCHEDULE"},
	{ErrSlotConflict, "SLOT_CONFLICT"},
	{ErrDailyQuotaExceeded, "DAILY_QUOTA_EXCEEDED"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrAlreadyDeleted, "ALREADY_DELETED"},
	{ErrNotDeleted, "NOT_DELETED"},
	{ErrNotSoftDeleted, "NOT_SOFT_DELETED"},
	{ErrUnavailable, "UNAVAILABLE"},
}

// Code returns the stable error code for err. Unknown errors are INTERNAL.
func Code(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) && len(verr.Violations) > 0 {
		return verr.Violations[0].Code
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL"
}

// Schedule sub-reasons reported with INVALID_SCHEDULE.
const (
	ReasonUnparseable   = "unparseable"
	ReasonInPast        = "in_past"
	ReasonBeyondHorizon = "beyond_horizon"
	ReasonOutsideHours  = "outside_business_hours"
)

// Violation is one failed booking rule.
type Violation struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

// ValidationError collects every rule a booking request broke so callers can
// render them together. errors.Is matches any of the underlying sentinels.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		errs = append(errs, v.err)
	}
	return errs
}

func (e *ValidationError) add(err error, code, reason, msg string) {
	e.Violations = append(e.Violations, Violation{Code: code, Reason: reason, Message: msg, err: err})
}

func slotConflictError() error {
	verr := &ValidationError{}
	verr.add(ErrSlotConflict, "SLOT_CONFLICT", "", ErrSlotConflict.Error())
	return verr
}

// TransitionError is returned for transitions outside the legality table,
// including retries of a transition that already happened. Current holds
// the booking's status at the time of the rejection.
type TransitionError struct {
	Current domain.BookingStatus
	To      domain.BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s", e.Current, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
