package wallet

import (
	"context"
	"errors"

	"marketplace/internal/domain"
	"marketplace/internal/repository"
)

var ErrNotFound = errors.New("wallet not found")

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Store interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListLedgerForUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error)
}

// Service is the read side of a user's wallet. Balances only change through
// booking operations or external top-up flows.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type Summary struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

func (s *Service) Get(ctx context.Context, userID int64) (*Summary, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Summary{UserID: u.ID, Balance: u.WalletBalance}, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListLedgerForUser(ctx, userID, limit, offset)
}
