package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketplace/internal/domain"

	"go.uber.org/zap"
)

var (
	ErrNoActiveJob     = errors.New("no active job for this worker")
	ErrInvalidLocation = errors.New("coordinates out of range")
)

type JobState string

const (
	JobActive             JobState = "active"
	JobWorkerDisconnected JobState = "worker_disconnected"
)

// Job is a booking in progress, as seen by the push layer.
type Job struct {
	BookingID  int64     `json:"booking_id"`
	WorkerID   int64     `json:"worker_id"`
	CustomerID int64     `json:"customer_id"`
	State      JobState  `json:"state"`
	Since      time.Time `json:"since"`
}

// Mirror receives a copy of every dispatched event.
type Mirror interface {
	Publish(ctx context.Context, userID int64, ev Event) error
}

type Option func(*Router)

func WithMirror(m Mirror) Option {
	return func(r *Router) { r.mirror = m }
}

// Router delivers events to every live connection of a user. Delivery is
// best effort: events for users with no connection are dropped.
type Router struct {
	presence Presence
	log      *zap.Logger
	mirror   Mirror
	now      func() time.Time

	mu   sync.Mutex
	jobs map[int64]*Job
}

func NewRouter(presence Presence, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		presence: presence,
		log:      logger.Named("realtime"),
		now:      time.Now,
		jobs:     make(map[int64]*Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch reports whether at least one connection accepted the event.
func (r *Router) Dispatch(userID int64, ev Event) bool {
	r.track(ev)

	msg, err := Encode(ev, r.now())
	if err != nil {
		r.log.Error("encode event", zap.String("type", string(ev.Type())), zap.Error(err))
		return false
	}

	delivered := false
	for _, c := range r.presence.Connections(userID) {
		if c.Send(msg) {
			delivered = true
		}
	}
	if !delivered {
		r.log.Debug("event dropped, user offline",
			zap.Int64("user_id", userID),
			zap.String("type", string(ev.Type())))
	}

	if r.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.mirror.Publish(ctx, userID, ev); err != nil {
			r.log.Warn("mirror publish failed", zap.String("type", string(ev.Type())), zap.Error(err))
		}
		cancel()
	}
	return delivered
}

// track keeps the job table in step with committed status changes.
func (r *Router) track(ev Event) {
	sc, ok := ev.(StatusChanged)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case sc.To == domain.BookingInProgress:
		if _, exists := r.jobs[sc.BookingID]; !exists {
			r.jobs[sc.BookingID] = &Job{
				BookingID:  sc.BookingID,
				WorkerID:   sc.ProviderID,
				CustomerID: sc.CustomerID,
				State:      JobActive,
				Since:      sc.At,
			}
		}
	case sc.To.Terminal():
		delete(r.jobs, sc.BookingID)
	}
}

// Connect registers c. A worker coming back resumes its disconnected jobs.
func (r *Router) Connect(userID int64, c Conn) error {
	if err := r.presence.Register(userID, c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.WorkerID == userID && j.State == JobWorkerDisconnected {
			j.State = JobActive
			j.Since = r.now().UTC()
		}
	}
	return nil
}

// Disconnect unregisters c. When it was the user's last connection, the
// user's active jobs are marked worker_disconnected and their customers told.
func (r *Router) Disconnect(c Conn) {
	userID, remaining, ok := r.presence.Unregister(c)
	if !ok || remaining > 0 {
		return
	}

	at := r.now().UTC()
	var orphaned []Job
	r.mu.Lock()
	for _, j := range r.jobs {
		if j.WorkerID == userID && j.State == JobActive {
			j.State = JobWorkerDisconnected
			j.Since = at
			orphaned = append(orphaned, *j)
		}
	}
	r.mu.Unlock()

	for _, j := range orphaned {
		r.log.Info("worker disconnected during job",
			zap.Int64("booking_id", j.BookingID),
			zap.Int64("worker_id", j.WorkerID))
		r.Dispatch(j.CustomerID, WorkerDisconnected{
			BookingID: j.BookingID,
			WorkerID:  j.WorkerID,
			At:        at,
		})
	}
}

// ForwardLocation relays a worker's position to the customer of the job.
func (r *Router) ForwardLocation(workerID, bookingID int64, lat, lng float64) (bool, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return false, ErrInvalidLocation
	}
	j, ok := r.Job(bookingID)
	if !ok || j.WorkerID != workerID || j.State != JobActive {
		return false, ErrNoActiveJob
	}
	return r.Dispatch(j.CustomerID, LocationUpdate{
		BookingID: bookingID,
		WorkerID:  workerID,
		Lat:       lat,
		Lng:       lng,
		At:        r.now().UTC(),
	}), nil
}

func (r *Router) Job(bookingID int64) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[bookingID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}
