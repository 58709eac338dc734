package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/db"
	"trailsbuddy/internal/metrics"
	"trailsbuddy/internal/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrLedgerInconsistent means the post-write re-read did not match the
	// expected balance. The enclosing transaction must be aborted.
	ErrLedgerInconsistent  = errors.New("ledger balance inconsistency detected")
	ErrTransactionNotFound = errors.New("wallet transaction not found")
)

type Repository struct {
	pool *sqlx.DB
}

func NewRepository(pool *sqlx.DB) *Repository {
	return &Repository{pool: pool}
}

// Balance returns the user's current balance, zero when no wallet row
// exists yet.
func (r *Repository) Balance(ctx context.Context, q db.Queryer, userID int64) (money.Money, error) {
	w := &Wallet{}
	err := q.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return money.Zero(), nil
	}
	if err != nil {
		return money.Zero(), err
	}
	return w.Balance(), nil
}

// lockWallet reads the wallet row FOR UPDATE, inserting it first when absent
// and createIfMissing is set.
func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID int64, createIfMissing bool) (*Wallet, error) {
	w := &Wallet{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance_real, balance_bonus, balance_withdrawable, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(w)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if !createIfMissing {
		return nil, ErrInsufficientBalance
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 RETURNING id, user_id, balance_real, balance_bonus, balance_withdrawable, created_at, updated_at`,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Adjust is the single balance read-modify-write primitive. It must run
// inside a transaction; the caller's tx also carries the ledger row and any
// other records that must commit atomically with the balance change.
//
// A debit is rejected with ErrInsufficientBalance when the real, bonus or
// (when amount.Withdrawable > 0) withdrawable component falls short. After
// the write the row is re-read and verified against the expected balance;
// a mismatch returns ErrLedgerInconsistent and the caller must roll back.
func (r *Repository) Adjust(ctx context.Context, tx *sqlx.Tx, userID int64, amount money.Money, subtract bool) (before, after money.Money, err error) {
	w, err := r.lockWallet(ctx, tx, userID, !subtract)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}
	before = w.Balance()

	if subtract {
		if !before.Covers(amount) {
			return money.Zero(), money.Zero(), ErrInsufficientBalance
		}
		if amount.Withdrawable > 0 && before.Withdrawable < amount.Withdrawable {
			return money.Zero(), money.Zero(), ErrInsufficientBalance
		}
		after, err = before.Sub(amount)
		if err != nil {
			return money.Zero(), money.Zero(), ErrInsufficientBalance
		}
		// Spending non-withdrawable real money can strand the withdrawable
		// counter above the real balance; keep withdrawable <= real.
		if after.Withdrawable > after.Real {
			after.Withdrawable = after.Real
		}
	} else {
		after = before.Add(amount)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_real = $1, balance_bonus = $2, balance_withdrawable = $3, updated_at = NOW()
		 WHERE id = $4`,
		after.Real, after.Bonus, after.Withdrawable, w.ID,
	)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}

	// Re-read the row and verify the arithmetic held. The row is locked, so
	// a mismatch here means the update itself is corrupt, not a race.
	check := &Wallet{}
	err = tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance_real, balance_bonus, balance_withdrawable, created_at, updated_at
		 FROM wallets WHERE id = $1`,
		w.ID,
	).StructScan(check)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}
	got := check.Balance()
	if !got.Equal(after) || got.Withdrawable != after.Withdrawable {
		return money.Zero(), money.Zero(),
			fmt.Errorf("%w: user %d expected %v got %v", ErrLedgerInconsistent, userID, after, got)
	}

	return before, after, nil
}

// Record appends one immutable ledger row. A tracking id is assigned when
// the caller did not set one.
func (r *Repository) Record(ctx context.Context, q db.Queryer, entry *Transaction) (int64, error) {
	if entry.TrackingID == "" {
		entry.TrackingID = uuid.NewString()
	}
	var id int64
	err := q.QueryRowxContext(ctx,
		`INSERT INTO wallet_transactions
		   (user_id, type, status, amount_real, amount_bonus, amount_withdrawable,
		    balance_before_real, balance_before_bonus, balance_after_real, balance_after_bonus,
		    tracking_id, remarks, receiver_upi_id, error_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`,
		entry.UserID, entry.Type, entry.Status,
		entry.AmountReal, entry.AmountBonus, entry.AmountWithdrawable,
		entry.BalanceBeforeReal, entry.BalanceBeforeBonus,
		entry.BalanceAfterReal, entry.BalanceAfterBonus,
		entry.TrackingID, entry.Remarks, entry.ReceiverUpiID, entry.ErrorReason,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	entry.ID = id
	metrics.RecordWalletTransaction(string(entry.Type))
	return id, nil
}

// apply runs Adjust and Record as one unit and returns the ledger row id.
func (r *Repository) apply(ctx context.Context, tx *sqlx.Tx, userID int64, amount money.Money, subtract bool, txType TransactionType, status TransactionStatus, remarks string, receiverUpiID *string) (int64, error) {
	before, after, err := r.Adjust(ctx, tx, userID, amount, subtract)
	if err != nil {
		return 0, err
	}
	return r.Record(ctx, tx, &Transaction{
		UserID:             userID,
		Type:               txType,
		Status:             status,
		AmountReal:         amount.Real,
		AmountBonus:        amount.Bonus,
		AmountWithdrawable: amount.Withdrawable,
		BalanceBeforeReal:  before.Real,
		BalanceBeforeBonus: before.Bonus,
		BalanceAfterReal:   after.Real,
		BalanceAfterBonus:  after.Bonus,
		Remarks:            remarks,
		ReceiverUpiID:      receiverUpiID,
	})
}

// DebitEntryFee charges a contest entry fee that was already pre-checked by
// the caller in the same transaction.
func (r *Repository) DebitEntryFee(ctx context.Context, tx *sqlx.Tx, userID int64, fee money.Money, contestTitle string) (int64, error) {
	remarks := fmt.Sprintf("paid entry fee real: %d, bonus: %d for contest: %s", fee.Real, fee.Bonus, contestTitle)
	return r.apply(ctx, tx, userID, fee, true, TypePayForContest, StatusCompleted, remarks, nil)
}

// CreditPrize pays contest winnings. The real component becomes
// withdrawable.
func (r *Repository) CreditPrize(ctx context.Context, tx *sqlx.Tx, userID int64, prize money.Money, contestTitle string) (int64, error) {
	prize.Withdrawable = prize.Real
	remarks := fmt.Sprintf("congrats! won real: %d, bonus: %d in contest: %s", prize.Real, prize.Bonus, contestTitle)
	return r.apply(ctx, tx, userID, prize, false, TypeContestWin, StatusCompleted, remarks, nil)
}

// RefundEntryFee returns a paid entry fee after a contest cancellation.
// Refunded money goes back to the spendable balance, not the withdrawable
// one.
func (r *Repository) RefundEntryFee(ctx context.Context, tx *sqlx.Tx, userID int64, paid money.Money, contestTitle string) (int64, error) {
	paid.Withdrawable = 0
	remarks := fmt.Sprintf("refund entry fee real: %d, bonus: %d for cancelled contest: %s", paid.Real, paid.Bonus, contestTitle)
	return r.apply(ctx, tx, userID, paid, false, TypeRefundContestEntryFee, StatusCompleted, remarks, nil)
}

func (r *Repository) CreditReferralBonus(ctx context.Context, tx *sqlx.Tx, userID int64, bonus int64) (int64, error) {
	remarks := fmt.Sprintf("referral bonus credited: %d", bonus)
	return r.apply(ctx, tx, userID, money.New(0, bonus), false, TypeReferralBonus, StatusCompleted, remarks, nil)
}

func (r *Repository) CreditReferrerBonus(ctx context.Context, tx *sqlx.Tx, userID int64, bonus int64) (int64, error) {
	remarks := fmt.Sprintf("referrer bonus credited: %d", bonus)
	return r.apply(ctx, tx, userID, money.New(0, bonus), false, TypeReferrerBonus, StatusCompleted, remarks, nil)
}

// AddBalance credits a top-up to the real balance. Deposits are spendable
// but not withdrawable.
func (r *Repository) AddBalance(ctx context.Context, tx *sqlx.Tx, userID int64, amountReal int64) (int64, error) {
	remarks := fmt.Sprintf("balance added: %d", amountReal)
	return r.apply(ctx, tx, userID, money.New(amountReal, 0), false, TypeAddBalance, StatusCompleted, remarks, nil)
}

// InitiateWithdrawal debits the withdrawable balance and records a Pending
// Withdraw row; the payout provider callback later completes or fails it.
func (r *Repository) InitiateWithdrawal(ctx context.Context, tx *sqlx.Tx, userID int64, amountReal int64, receiverUpiID string) (int64, error) {
	amount := money.NewWithdrawable(amountReal, 0, amountReal)
	remarks := fmt.Sprintf("withdrawal of %d requested to %s", amountReal, receiverUpiID)
	return r.apply(ctx, tx, userID, amount, true, TypeWithdraw, StatusPending, remarks, &receiverUpiID)
}

func (r *Repository) CompleteWithdrawal(ctx context.Context, q db.Queryer, transactionID int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE wallet_transactions
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND type = $3 AND status = $4`,
		StatusCompleted, transactionID, TypeWithdraw, StatusPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FailWithdrawal marks a pending withdrawal as Error and credits the amount
// back, withdrawable again, in the same transaction.
func (r *Repository) FailWithdrawal(ctx context.Context, tx *sqlx.Tx, transactionID int64, reason string) error {
	entry := &Transaction{}
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM wallet_transactions
		 WHERE id = $1 AND type = $2 AND status = $3
		 FOR UPDATE`,
		transactionID, TypeWithdraw, StatusPending,
	).StructScan(entry)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallet_transactions
		 SET status = $1, error_reason = $2, updated_at = NOW()
		 WHERE id = $3`,
		StatusError, reason, entry.ID,
	)
	if err != nil {
		return err
	}

	refund := money.NewWithdrawable(entry.AmountReal, 0, entry.AmountReal)
	remarks := fmt.Sprintf("withdrawal %s reversed: %s", entry.TrackingID, reason)
	_, err = r.apply(ctx, tx, entry.UserID, refund, false, TypeAddBalance, StatusCompleted, remarks, nil)
	return err
}

func (r *Repository) GetTransaction(ctx context.Context, q db.Queryer, id int64) (*Transaction, error) {
	entry := &Transaction{}
	err := q.GetContext(ctx, entry, `SELECT * FROM wallet_transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []Transaction
	err := r.pool.SelectContext(ctx, &txs, `
		SELECT * FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txs, nil
}
