package wallet

import (
	"context"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/db"
	"trailsbuddy/internal/money"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMissingUpiID  = errors.New("receiver UPI id is required")
)

// Notifier enqueues an outbound notification request using the caller's
// executor so the enqueue commits or aborts together with the balance
// change.
type Notifier interface {
	Submit(ctx context.Context, q db.Queryer, userID int64, eventName string, data map[string]string) error
}

const (
	eventWithdrawalInitiated = "wallet.withdrawal.initiated"
	eventWithdrawalCompleted = "wallet.withdrawal.completed"
	eventWithdrawalFailed    = "wallet.withdrawal.failed"
	eventReferralBonus       = "wallet.referral.bonus"
	eventReferrerBonus       = "wallet.referrer.bonus"
)

type Service struct {
	pool     *sqlx.DB
	repo     *Repository
	notifier Notifier
}

func NewService(pool *sqlx.DB, repo *Repository, notifier Notifier) *Service {
	return &Service{pool: pool, repo: repo, notifier: notifier}
}

func (s *Service) Balance(ctx context.Context, userID int64) (money.Money, error) {
	return s.repo.Balance(ctx, s.pool, userID)
}

func (s *Service) Transactions(ctx context.Context, userID int64, limit, offset int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

func (s *Service) TopUp(ctx context.Context, userID int64, amountReal int64) error {
	if amountReal <= 0 {
		return ErrInvalidAmount
	}
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		_, err := s.repo.AddBalance(ctx, tx, userID, amountReal)
		return err
	})
}

// Withdraw debits the withdrawable balance and records a Pending withdrawal
// for the payout provider to settle.
func (s *Service) Withdraw(ctx context.Context, userID int64, amountReal int64, receiverUpiID string) (transactionID int64, err error) {
	if amountReal <= 0 {
		return 0, ErrInvalidAmount
	}
	if receiverUpiID == "" {
		return 0, ErrMissingUpiID
	}
	err = db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		transactionID, err = s.repo.InitiateWithdrawal(ctx, tx, userID, amountReal, receiverUpiID)
		if err != nil {
			return err
		}
		return s.notifier.Submit(ctx, tx, userID, eventWithdrawalInitiated, map[string]string{
			"amount":        strconv.FormatInt(amountReal, 10),
			"transactionId": strconv.FormatInt(transactionID, 10),
		})
	})
	if err != nil {
		return 0, err
	}
	return transactionID, nil
}

func (s *Service) CompleteWithdrawal(ctx context.Context, transactionID int64) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		if err := s.repo.CompleteWithdrawal(ctx, tx, transactionID); err != nil {
			return err
		}
		entry, err := s.repo.GetTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		return s.notifier.Submit(ctx, tx, entry.UserID, eventWithdrawalCompleted, map[string]string{
			"amount":        strconv.FormatInt(entry.AmountReal, 10),
			"transactionId": strconv.FormatInt(transactionID, 10),
		})
	})
}

func (s *Service) FailWithdrawal(ctx context.Context, transactionID int64, reason string) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		if err := s.repo.FailWithdrawal(ctx, tx, transactionID, reason); err != nil {
			return err
		}
		entry, err := s.repo.GetTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		return s.notifier.Submit(ctx, tx, entry.UserID, eventWithdrawalFailed, map[string]string{
			"amount":        strconv.FormatInt(entry.AmountReal, 10),
			"transactionId": strconv.FormatInt(transactionID, 10),
			"reason":        reason,
		})
	})
}

// GrantReferralBonuses credits the referred user and the referrer in one
// transaction.
func (s *Service) GrantReferralBonuses(ctx context.Context, referredUserID, referrerUserID, bonus int64) error {
	if bonus <= 0 {
		return ErrInvalidAmount
	}
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		if _, err := s.repo.CreditReferralBonus(ctx, tx, referredUserID, bonus); err != nil {
			return err
		}
		if err := s.notifier.Submit(ctx, tx, referredUserID, eventReferralBonus, map[string]string{
			"bonus": strconv.FormatInt(bonus, 10),
		}); err != nil {
			return err
		}
		if _, err := s.repo.CreditReferrerBonus(ctx, tx, referrerUserID, bonus); err != nil {
			return err
		}
		return s.notifier.Submit(ctx, tx, referrerUserID, eventReferrerBonus, map[string]string{
			"bonus": strconv.FormatInt(bonus, 10),
		})
	})
}
