package realtime

import (
	"encoding/json"
	"time"

	"marketplace/internal/domain"
)

type EventType string

const (
	TypeNewBooking         EventType = "new_booking"
	TypeStatusChanged      EventType = "status_changed"
	TypeLocationUpdate     EventType = "location_update"
	TypeWorkerDisconnected EventType = "worker_disconnected"
	TypeNotification       EventType = "notification"
)

// Event is the closed set of payloads the router delivers. Only types in
// this package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

// NewBooking goes to the provider once a booking is committed.
type NewBooking struct {
	BookingID       int64     `json:"booking_id"`
	CustomerID      int64     `json:"customer_id"`
	ServiceID       int64     `json:"service_id"`
	Date            time.Time `json:"date"`
	Price           int64     `json:"price"`
	ProviderEarning int64     `json:"provider_earning"`
	Note            string    `json:"note,omitempty"`
}

type StatusChanged struct {
	BookingID  int64                `json:"booking_id"`
	CustomerID int64                `json:"customer_id"`
	ProviderID int64                `json:"provider_id"`
	From       domain.BookingStatus `json:"from"`
	To         domain.BookingStatus `json:"to"`
	ChangedBy  int64                `json:"changed_by"`
	At         time.Time            `json:"at"`
}

// LocationUpdate is a worker position relayed to the customer of an active job.
type LocationUpdate struct {
	BookingID int64     `json:"booking_id"`
	WorkerID  int64     `json:"worker_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	At        time.Time `json:"at"`
}

type WorkerDisconnected struct {
	BookingID int64     `json:"booking_id"`
	WorkerID  int64     `json:"worker_id"`
	At        time.Time `json:"at"`
}

// Notification carries chat and friend-request alerts raised outside the
// booking flow.
type Notification struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	FromID int64  `json:"from_id,omitempty"`
}

func (NewBooking) Type() EventType         { return TypeNewBooking }
func (StatusChanged) Type() EventType      { return TypeStatusChanged }
func (LocationUpdate) Type() EventType     { return TypeLocationUpdate }
func (WorkerDisconnected) Type() EventType { return TypeWorkerDisconnected }
func (Notification) Type() EventType       { return TypeNotification }

func (NewBooking) isEvent()         {}
func (StatusChanged) isEvent()      {}
func (LocationUpdate) isEvent()     {}
func (WorkerDisconnected) isEvent() {}
func (Notification) isEvent()       {}

// Envelope is the wire frame pushed to clients.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload Event     `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

func Encode(ev Event, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Type(), Payload: ev, SentAt: at.UTC()})
}
