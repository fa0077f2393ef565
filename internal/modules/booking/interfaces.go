package booking

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/realtime"
)

// ServiceCatalog is the service-price lookup owned by the listings module.
type ServiceCatalog interface {
	GetService(ctx context.Context, id int64) (*domain.ServiceListing, error)
}

// ScheduleReader answers the read-only questions booking validation asks.
type ScheduleReader interface {
	CountActiveForProviderDay(ctx context.Context, providerID int64, slotDate string) (int64, error)
	CountCreatedByCustomerSince(ctx context.Context, customerID int64, since time.Time) (int64, error)
}

// Dispatcher pushes an event to every live connection of a user and reports
// whether at least one of them accepted it.
type Dispatcher interface {
	Dispatch(userID int64, event realtime.Event) bool
}
