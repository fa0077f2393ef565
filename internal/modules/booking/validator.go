package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/repository"
)

const slotDateLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Rules configures schedule and quota checks.
type Rules struct {
	Location         *time.Location
	OpenHour         int
	CloseHour        int
	MaxHorizonMonths int
	// DailyQuota caps bookings a customer may create per local day; 0 disables it.
	DailyQuota int
}

// Plan is what a successful validation hands to the transaction manager.
type Plan struct {
	Service  *domain.ServiceListing
	Date     time.Time
	SlotDate string
}

type Validator struct {
	catalog  ServiceCatalog
	schedule ScheduleReader
	rules    Rules
	now      func() time.Time
}

func NewValidator(catalog ServiceCatalog, schedule ScheduleReader, rules Rules) *Validator {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &Validator{
		catalog:  catalog,
		schedule: schedule,
		rules:    rules,
		now:      time.Now,
	}
}

// Validate checks a booking request without writing anything. A missing
// service ends validation immediately; all other rule failures are gathered
// into one *ValidationError. Store failures are returned as they are.
func (v *Validator) Validate(ctx context.Context, req CreateBookingRequest) (*Plan, error) {
	svc, err := v.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("service %d: %w", req.ServiceID, ErrNotFound)
		}
		return nil, err
	}

	verr := &ValidationError{}
	if svc.ProviderID == req.CustomerID {
		verr.add(ErrSelfBooking, "SELF_BOOKING_FORBIDDEN", "", ErrSelfBooking.Error())
	}

	date, reason := v.checkSchedule(req.Date)
	if reason != "" {
		verr.add(ErrInvalidSchedule, "INVALID_SCHEDULE", reason, scheduleMessage(reason, v.rules))
	}

	var slotDate string
	if !date.IsZero() {
		slotDate = date.In(v.rules.Location).Format(slotDateLayout)
		n, err := v.schedule.CountActiveForProviderDay(ctx, svc.ProviderID, slotDate)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			verr.add(ErrSlotConflict, "SLOT_CONFLICT", "", ErrSlotConflict.Error())
		}
	}

	if v.rules.DailyQuota > 0 {
		n, err := v.schedule.CountCreatedByCustomerSince(ctx, req.CustomerID, v.startOfToday())
		if err != nil {
			return nil, err
		}
		if n >= int64(v.rules.DailyQuota) {
			verr.add(ErrDailyQuotaExceeded, "DAILY_QUOTA_EXCEEDED", "",
				fmt.Sprintf("at most %d bookings can be created per day", v.rules.DailyQuota))
		}
	}

	if len(verr.Violations) > 0 {
		return nil, verr
	}
	return &Plan{Service: svc, Date: date.UTC(), SlotDate: slotDate}, nil
}

// checkSchedule returns the parsed date and, if a rule failed, its reason.
// The date is zero only when it could not be parsed.
func (v *Validator) checkSchedule(raw string) (time.Time, string) {
	date, ok := parseDate(strings.TrimSpace(raw), v.rules.Location)
	if !ok {
		return time.Time{}, ReasonUnparseable
	}

	now := v.now()
	if !date.After(now) {
		return date, ReasonInPast
	}
	if v.rules.MaxHorizonMonths > 0 && date.After(now.AddDate(0, v.rules.MaxHorizonMonths, 0)) {
		return date, ReasonBeyondHorizon
	}

	local := date.In(v.rules.Location)
	minutes := local.Hour()*60 + local.Minute()
	if minutes < v.rules.OpenHour*60 || minutes >= v.rules.CloseHour*60 {
		return date, ReasonOutsideHours
	}
	return date, ""
}

func (v *Validator) startOfToday() time.Time {
	now := v.now().In(v.rules.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.rules.Location)
}

func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func scheduleMessage(reason string, r Rules) string {
	switch reason {
	case ReasonUnparseable:
		return "date must be RFC3339 or YYYY-MM-DDTHH:MM"
	case ReasonInPast:
		return "date must be in the future"
	case ReasonBeyondHorizon:
		return fmt.Sprintf("date must be within %d months", r.MaxHorizonMonths)
	case ReasonOutsideHours:
		return fmt.Sprintf("time must be between %02d:00 and %02d:00", r.OpenHour, r.CloseHour)
	}
	return ErrInvalidSchedule.Error()
}
