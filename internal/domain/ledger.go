package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LedgerEntryType string

const (
	LedgerDeposit    LedgerEntryType = "deposit"
	LedgerPayment    LedgerEntryType = "payment"
	LedgerRefund     LedgerEntryType = "refund"
	LedgerEarning    LedgerEntryType = "earning"
	LedgerCommission LedgerEntryType = "commission"
	LedgerWithdraw   LedgerEntryType = "withdraw"
)

type LedgerEntryStatus string

const (
	LedgerStatusPending   LedgerEntryStatus = "pending"
	LedgerStatusCompleted LedgerEntryStatus = "completed"
	LedgerStatusFailed    LedgerEntryStatus = "failed"
	LedgerStatusCancelled LedgerEntryStatus = "cancelled"
)

// LedgerEntry records one balance mutation. Amount is the signed delta applied
// to the owner's balance: negative for debits, positive for credits.
// UserID is nil for platform-owned entries such as commission.
type LedgerEntry struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       *int64            `json:"user_id" gorm:"index"`
	BookingID    *int64            `json:"booking_id,omitempty" gorm:"index"`
	Amount       int64             `json:"amount" gorm:"not null"`
	Type         LedgerEntryType   `json:"type" gorm:"type:varchar(16);not null;index"`
	Status       LedgerEntryStatus `json:"status" gorm:"type:varchar(16);not null"`
	Description  string            `json:"description"`
	BalanceAfter *int64            `json:"balance_after,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "transactions"
}

func (e *LedgerEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
