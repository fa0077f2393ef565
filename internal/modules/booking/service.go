package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/realtime"
	"marketplace/internal/repository"

	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxReasonLength  = 500
)

type Options struct {
	// TxTimeout bounds every atomic unit. On expiry the unit rolls back.
	TxTimeout time.Duration
	// AdminClawback debits the provider by the price when an admin cancels.
	AdminClawback bool
}

// Service is the booking transaction manager: it moves money between
// wallets as bookings progress and notifies the parties after each commit.
type Service struct {
	store      *repository.Store
	validator  *Validator
	fees       FeePolicy
	dispatcher Dispatcher
	log        *zap.Logger
	opts       Options
	locks      *keyedMutex
	now        func() time.Time
}

func NewService(
	store *repository.Store,
	validator *Validator,
	fees FeePolicy,
	dispatcher Dispatcher,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		validator:  validator,
		fees:       fees,
		dispatcher: dispatcher,
		log:        logger.Named("booking"),
		opts:       opts,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// CreateBooking validates the request, debits the customer and inserts the
// booking with its payment entry in one atomic unit. If another request takes
// the provider's day between validation and commit, validation runs once more
// and the request fails with SlotConflict if the day is still taken.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	if req.CustomerID <= 0 || req.ServiceID <= 0 {
		return nil, fmt.Errorf("%w: customer and service are required", ErrValidation)
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}

	for attempt := 0; ; attempt++ {
		plan, err := s.validator.Validate(ctx, req)
		if err != nil {
			return nil, s.translate(err, "validate booking")
		}

		fees, err := s.fees.Calculate(plan.Service.Price)
		if err != nil {
			s.log.Error("service has unusable price",
				zap.Int64("service_id", plan.Service.ID),
				zap.Int64("price", plan.Service.Price))
			return nil, ErrInternal
		}
		if fees.Clamped {
			s.log.Warn("minimum fee exceeds price, fee clamped to price",
				zap.Int64("service_id", plan.Service.ID),
				zap.Int64("price", fees.Price),
				zap.Int64("minimum_fee", s.fees.MinimumFee))
		}

		res, err := s.createAtomic(ctx, req, plan, fees)
		if errors.Is(err, repository.ErrSlotTaken) {
			if attempt == 0 {
				s.log.Debug("slot contested, validating again",
					zap.Int64("provider_id", plan.Service.ProviderID),
					zap.String("slot_date", plan.SlotDate))
				continue
			}
			return nil, slotConflictError()
		}
		if err != nil {
			return nil, s.translate(err, "create booking")
		}

		b := res.Booking
		s.log.Info("booking created",
			zap.Int64("booking_id", b.ID),
			zap.Int64("customer_id", b.CustomerID),
			zap.Int64("provider_id", b.ProviderID),
			zap.Int64("price", b.Price))

		s.dispatcher.Dispatch(b.ProviderID, realtime.NewBooking{
			BookingID:       b.ID,
			CustomerID:      b.CustomerID,
			ServiceID:       b.ServiceID,
			Date:            b.Date,
			Price:           b.Price,
			ProviderEarning: b.ProviderEarning,
			Note:            b.Note,
		})
		return res, nil
	}
}

func (s *Service) createAtomic(ctx context.Context, req CreateBookingRequest, plan *Plan, fees FeeBreakdown) (*CreateBookingResult, error) {
	at := s.now().UTC()
	var res *CreateBookingResult

	err := s.atomic(ctx, func(ctx context.Context, tx *repository.Store) error {
		n, err := tx.CountActiveForProviderDay(ctx, plan.Service.ProviderID, plan.SlotDate)
		if err != nil {
			return err
		}
		if n > 0 {
			return repository.ErrSlotTaken
		}

		balance, err := tx.DebitWallet(ctx, req.CustomerID, fees.Price)
		if err != nil {
			return err
		}
		if balance < 0 {
			return fmt.Errorf("%w: customer %d balance %d after debit", errInvariant, req.CustomerID, balance)
		}

		b := &domain.Booking{
			CustomerID:      req.CustomerID,
			ProviderID:      plan.Service.ProviderID,
			ServiceID:       plan.Service.ID,
			Date:            plan.Date,
			SlotDate:        plan.SlotDate,
			Status:          domain.BookingPending,
			Price:           fees.Price,
			PlatformFee:     fees.PlatformFee,
			ProviderEarning: fees.ProviderEarning,
			Note:            strings.TrimSpace(req.Note),
			CreatedAt:       at,
			UpdatedAt:       at,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}

		payment := newEntry(b.ID, userRef(b.CustomerID), -b.Price, domain.LedgerPayment,
			fmt.Sprintf("payment for booking #%d", b.ID), &balance, at)
		if err := tx.AppendLedger(ctx, payment); err != nil {
			return err
		}

		res = &CreateBookingResult{Booking: b, Fees: fees, NewBalance: balance}
		return nil
	})
	return res, err
}

// UpdateStatus applies a legal status transition. Completion pays the
// provider and the platform; cancellation refunds the customer. Money
// movement and the status write share one atomic unit, and the status write
// is conditional on the status that was read, so a retried or concurrent
// request can never pay twice.
func (s *Service) UpdateStatus(ctx context.Context, bookingID int64, to domain.BookingStatus, actor domain.Actor) (*domain.Booking, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	unlock := s.locks.Lock(bookingID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		cur, err := s.store.GetBooking(ctx, bookingID, actor.IsAdmin())
		if err != nil {
			return nil, s.translate(err, "load booking")
		}
		if err := authorizeTransition(cur, to, actor); err != nil {
			return nil, err
		}
		if !domain.CanTransition(cur.Status, to) {
			return nil, &TransitionError{Current: cur.Status, To: to}
		}

		at := s.now().UTC()
		var providerBalance *int64
		err = s.atomic(ctx, func(ctx context.Context, tx *repository.Store) error {
			ok, err := tx.CompareAndSetStatus(ctx, cur.ID, cur.Status, to, at)
			if err != nil {
				return err
			}
			if !ok {
				return errStatusRaced
			}
			switch to {
			case domain.BookingCompleted:
				return payout(ctx, tx, cur, at)
			case domain.BookingCancelled:
				providerBalance, err = s.refund(ctx, tx, cur, actor, at)
				return err
			}
			return nil
		})
		if errors.Is(err, errStatusRaced) {
			if attempt == 0 {
				continue
			}
			latest, err := s.store.GetBooking(ctx, bookingID, true)
			if err != nil {
				return nil, s.translate(err, "load booking")
			}
			return nil, &TransitionError{Current: latest.Status, To: to}
		}
		if err != nil {
			return nil, s.translate(err, "update booking status")
		}

		if providerBalance != nil && *providerBalance < 0 {
			s.log.Warn("provider balance negative after admin claw-back",
				zap.Int64("booking_id", cur.ID),
				zap.Int64("provider_id", cur.ProviderID),
				zap.Int64("balance", *providerBalance))
		}

		from := cur.Status
		updated := *cur
		updated.Status = to
		updated.UpdatedAt = at

		s.log.Info("booking status changed",
			zap.Int64("booking_id", updated.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int64("actor_id", actor.ID),
			zap.String("actor_role", string(actor.Role)))

		s.notifyStatus(&updated, from, actor, at)
		return &updated, nil
	}
}

// notifyStatus runs synchronously under the booking lock so each party sees
// transitions of one booking in commit order.
func (s *Service) notifyStatus(b *domain.Booking, from domain.BookingStatus, actor domain.Actor, at time.Time) {
	ev := realtime.StatusChanged{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		ProviderID: b.ProviderID,
		From:       from,
		To:         b.Status,
		ChangedBy:  actor.ID,
		At:         at,
	}
	s.dispatcher.Dispatch(b.CustomerID, ev)
	if actor.ID != b.ProviderID {
		s.dispatcher.Dispatch(b.ProviderID, ev)
	}
}

func authorizeTransition(b *domain.Booking, to domain.BookingStatus, actor domain.Actor) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.ID == b.ProviderID:
		return nil
	case actor.ID == b.CustomerID && to == domain.BookingCancelled:
		return nil
	}
	return ErrUnauthorized
}

func payout(ctx context.Context, tx *repository.Store, b *domain.Booking, at time.Time) error {
	balance, err := tx.CreditWallet(ctx, b.ProviderID, b.ProviderEarning)
	if err != nil {
		return err
	}
	earning := newEntry(b.ID, userRef(b.ProviderID), b.ProviderEarning, domain.LedgerEarning,
		fmt.Sprintf("earning for booking #%d", b.ID), &balance, at)
	if err := tx.AppendLedger(ctx, earning); err != nil {
		return err
	}
	commission := newEntry(b.ID, nil, b.PlatformFee, domain.LedgerCommission,
		fmt.Sprintf("platform commission for booking #%d", b.ID), nil, at)
	return tx.AppendLedger(ctx, commission)
}

// refund returns the full price to the customer. When an admin cancels and
// claw-back is enabled the provider is debited by the price as well, even
// into a negative balance; the new provider balance is returned in that case.
func (s *Service) refund(ctx context.Context, tx *repository.Store, b *domain.Booking, actor domain.Actor, at time.Time) (*int64, error) {
	balance, err := tx.CreditWallet(ctx, b.CustomerID, b.Price)
	if err != nil {
		return nil, err
	}
	refund := newEntry(b.ID, userRef(b.CustomerID), b.Price, domain.LedgerRefund,
		fmt.Sprintf("refund for cancelled booking #%d", b.ID), &balance, at)
	if err := tx.AppendLedger(ctx, refund); err != nil {
		return nil, err
	}

	if !actor.IsAdmin() || !s.opts.AdminClawback {
		return nil, nil
	}

	providerBalance, err := tx.ForceDebitWallet(ctx, b.ProviderID, b.Price)
	if err != nil {
		return nil, err
	}
	clawback := newEntry(b.ID, userRef(b.ProviderID), -b.Price, domain.LedgerRefund,
		fmt.Sprintf("claw-back for booking #%d cancelled by admin %d", b.ID, actor.ID), &providerBalance, at)
	if err := tx.AppendLedger(ctx, clawback); err != nil {
		return nil, err
	}
	return &providerBalance, nil
}

// SoftDelete hides a booking. It does not cancel it: money already debited
// for an active booking stays debited until someone cancels it.
func (s *Service) SoftDelete(ctx context.Context, bookingID int64, actor domain.Actor, reason string) (*domain.Booking, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, fmt.Errorf("%w: reason must be at most %d characters", ErrValidation, maxReasonLength)
	}

	unlock := s.locks.Lock(bookingID)
	defer unlock()

	b, err := s.store.GetBooking(ctx, bookingID, true)
	if err != nil {
		return nil, s.translate(err, "load booking")
	}
	if !actor.IsAdmin() && !b.IsParticipant(actor.ID) {
		return nil, ErrUnauthorized
	}
	if b.IsDeleted {
		return nil, ErrAlreadyDeleted
	}

	at := s.now().UTC()
	var marked bool
	err = s.atomic(ctx, func(ctx context.Context, tx *repository.Store) error {
		var err error
		marked, err = tx.MarkDeleted(ctx, b.ID, actor.ID, reason, at)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "soft delete booking")
	}
	if !marked {
		return nil, ErrAlreadyDeleted
	}

	actorID := actor.ID
	b.IsDeleted = true
	b.DeletedAt = &at
	b.DeletedBy = &actorID
	b.DeletionReason = reason

	fields := []zap.Field{
		zap.Int64("booking_id", b.ID),
		zap.Int64("actor_id", actor.ID),
		zap.String("status", string(b.Status)),
	}
	if b.Status.Active() {
		s.log.Warn("active booking soft-deleted, customer funds stay debited", fields...)
	} else {
		s.log.Info("booking soft-deleted", fields...)
	}
	return b, nil
}

// Restore clears the soft-delete fields. Admin only.
func (s *Service) Restore(ctx context.Context, bookingID int64, actor domain.Actor) (*domain.Booking, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	unlock := s.locks.Lock(bookingID)
	defer unlock()

	b, err := s.store.GetBooking(ctx, bookingID, true)
	if err != nil {
		return nil, s.translate(err, "load booking")
	}
	if !b.IsDeleted {
		return nil, ErrNotDeleted
	}

	var cleared bool
	err = s.atomic(ctx, func(ctx context.Context, tx *repository.Store) error {
		var err error
		cleared, err = tx.ClearDeleted(ctx, b.ID)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "restore booking")
	}
	if !cleared {
		return nil, ErrNotDeleted
	}

	b.IsDeleted = false
	b.DeletedAt = nil
	b.DeletedBy = nil
	b.DeletionReason = ""

	s.log.Info("booking restored", zap.Int64("booking_id", b.ID), zap.Int64("actor_id", actor.ID))
	return b, nil
}

// HardDelete permanently removes a soft-deleted booking. Admin only.
// Ledger entries keep their booking reference for audit.
func (s *Service) HardDelete(ctx context.Context, bookingID int64, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return ErrUnauthorized
	}

	unlock := s.locks.Lock(bookingID)
	defer unlock()

	b, err := s.store.GetBooking(ctx, bookingID, true)
	if err != nil {
		return s.translate(err, "load booking")
	}
	if !b.IsDeleted {
		return ErrNotSoftDeleted
	}

	var removed bool
	err = s.atomic(ctx, func(ctx context.Context, tx *repository.Store) error {
		var err error
		removed, err = tx.HardDeleteBooking(ctx, b.ID)
		return err
	})
	if err != nil {
		return s.translate(err, "hard delete booking")
	}
	if !removed {
		return ErrNotSoftDeleted
	}

	s.log.Info("booking hard-deleted", zap.Int64("booking_id", b.ID), zap.Int64("actor_id", actor.ID))
	return nil
}

// PurgeDeleted hard-deletes bookings that have been soft-deleted for longer
// than retention. It returns how many rows were removed.
func (s *Service) PurgeDeleted(ctx context.Context, retention time.Duration, batch int) (int, error) {
	if retention <= 0 || batch <= 0 {
		return 0, fmt.Errorf("%w: retention and batch must be positive", ErrValidation)
	}
	ids, err := s.store.ListDeletedBefore(ctx, s.now().UTC().Add(-retention), batch)
	if err != nil {
		return 0, s.translate(err, "list deleted bookings")
	}

	system := domain.Actor{Role: domain.RoleAdmin}
	purged := 0
	for _, id := range ids {
		err := s.HardDelete(ctx, id, system)
		switch {
		case err == nil:
			purged++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotSoftDeleted):
			// restored or removed since the listing
		default:
			return purged, err
		}
	}
	return purged, nil
}

// ListBookings returns the caller's bookings: customers see their own,
// providers the ones assigned to them, admins everything.
func (s *Service) ListBookings(ctx context.Context, actor domain.Actor, f ListFilter) ([]BookingView, Pagination, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, Pagination{}, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, Pagination{}, fmt.Errorf("%w: from must be before to", ErrValidation)
	}
	if f.IncludeDeleted && !actor.IsAdmin() {
		return nil, Pagination{}, ErrUnauthorized
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	rf := repository.BookingFilter{
		Status:         f.Status,
		From:           f.From,
		To:             f.To,
		IncludeDeleted: f.IncludeDeleted,
		Limit:          limit,
		Offset:         (page - 1) * limit,
	}
	id := actor.ID
	switch actor.Role {
	case domain.RoleCustomer:
		rf.CustomerID = &id
	case domain.RoleProvider:
		rf.ProviderID = &id
	case domain.RoleAdmin:
	default:
		return nil, Pagination{}, ErrUnauthorized
	}

	rows, total, err := s.store.ListBookings(ctx, rf)
	if err != nil {
		return nil, Pagination{}, s.translate(err, "list bookings")
	}

	views := make([]BookingView, 0, len(rows))
	for i := range rows {
		v := BookingView{Booking: &rows[i]}
		if f.IncludeDeleted {
			v.Deletion = rows[i].Deletion()
		}
		views = append(views, v)
	}

	return views, Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// ListLedger returns every ledger entry linked to a booking, oldest first.
func (s *Service) ListLedger(ctx context.Context, bookingID int64, actor domain.Actor) ([]domain.LedgerEntry, error) {
	b, err := s.store.GetBooking(ctx, bookingID, actor.IsAdmin())
	if err != nil {
		return nil, s.translate(err, "load booking")
	}
	if !actor.IsAdmin() && !b.IsParticipant(actor.ID) {
		return nil, ErrUnauthorized
	}
	entries, err := s.store.ListLedgerForBooking(ctx, b.ID)
	if err != nil {
		return nil, s.translate(err, "list ledger")
	}
	return entries, nil
}

// atomic runs fn in a transaction bounded by the configured timeout and
// retries it once on a transient store error.
func (s *Service) atomic(ctx context.Context, fn func(ctx context.Context, tx *repository.Store) error) error {
	err := s.runTx(ctx, fn)
	if err != nil && repository.IsTransient(err) && ctx.Err() == nil {
		s.log.Warn("transient store error, retrying once", zap.Error(err))
		err = s.runTx(ctx, fn)
	}
	return err
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context, tx *repository.Store) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()
	return s.store.Atomic(txCtx, func(tx *repository.Store) error {
		return fn(txCtx, tx)
	})
}

// translate maps store errors onto the booking error taxonomy.
func (s *Service) translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errInvariant):
		s.log.Error("invariant violation", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, ErrInternal)
	case Code(err) != "INTERNAL":
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrSlotTaken):
		return slotConflictError()
	case repository.IsTransient(err):
		s.log.Warn("store unavailable", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		s.log.Error("store failure", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}

func newEntry(bookingID int64, userID *int64, amount int64, typ domain.LedgerEntryType, desc string, balanceAfter *int64, at time.Time) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		UserID:       userID,
		BookingID:    &bookingID,
		Amount:       amount,
		Type:         typ,
		Status:       domain.LedgerStatusCompleted,
		Description:  desc,
		BalanceAfter: balanceAfter,
		CreatedAt:    at,
	}
}

func userRef(id int64) *int64 {
	return &id
}
