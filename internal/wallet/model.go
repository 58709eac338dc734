package wallet

import (
	"time"

	"trailsbuddy/internal/money"
)

// TransactionType tags every ledger row with the business event that moved
// the balance. Values are stable string tags stored as text.
type TransactionType string

const (
	TypeAddBalance            TransactionType = "AddBalance"
	TypeWithdraw              TransactionType = "Withdraw"
	TypePayForContest         TransactionType = "PayForContest"
	TypeContestWin            TransactionType = "ContestWin"
	TypeReferralBonus         TransactionType = "ReferralBonus"
	TypeReferrerBonus         TransactionType = "ReferrerBonus"
	TypeRefundContestEntryFee TransactionType = "RefundContestEntryFee"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "Pending"
	StatusCompleted TransactionStatus = "Completed"
	StatusError     TransactionStatus = "Error"
)

// Wallet is a user's current balance. One row per user, created lazily on
// the first credit.
type Wallet struct {
	ID                  int64     `db:"id" json:"id"`
	UserID              int64     `db:"user_id" json:"user_id"`
	BalanceReal         int64     `db:"balance_real" json:"balance_real"`
	BalanceBonus        int64     `db:"balance_bonus" json:"balance_bonus"`
	BalanceWithdrawable int64     `db:"balance_withdrawable" json:"balance_withdrawable"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

func (w *Wallet) Balance() money.Money {
	return money.NewWithdrawable(w.BalanceReal, w.BalanceBonus, w.BalanceWithdrawable)
}

// Transaction is one immutable ledger row. Rows are only ever appended;
// status is the single mutable field (withdrawals move Pending -> Completed
// or Pending -> Error).
type Transaction struct {
	ID                 int64             `db:"id" json:"id"`
	UserID             int64             `db:"user_id" json:"user_id"`
	Type               TransactionType   `db:"type" json:"type"`
	Status             TransactionStatus `db:"status" json:"status"`
	AmountReal         int64             `db:"amount_real" json:"amount_real"`
	AmountBonus        int64             `db:"amount_bonus" json:"amount_bonus"`
	AmountWithdrawable int64             `db:"amount_withdrawable" json:"amount_withdrawable"`
	BalanceBeforeReal  int64             `db:"balance_before_real" json:"balance_before_real"`
	BalanceBeforeBonus int64             `db:"balance_before_bonus" json:"balance_before_bonus"`
	BalanceAfterReal   int64             `db:"balance_after_real" json:"balance_after_real"`
	BalanceAfterBonus  int64             `db:"balance_after_bonus" json:"balance_after_bonus"`
	TrackingID         string            `db:"tracking_id" json:"tracking_id"`
	Remarks            string            `db:"remarks" json:"remarks"`
	ReceiverUpiID      *string           `db:"receiver_upi_id" json:"receiver_upi_id,omitempty"`
	ErrorReason        *string           `db:"error_reason" json:"error_reason,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

func (t *Transaction) Amount() money.Money {
	return money.NewWithdrawable(t.AmountReal, t.AmountBonus, t.AmountWithdrawable)
}
