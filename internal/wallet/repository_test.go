package wallet

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailsbuddy/internal/money"
)

var walletCols = []string{"id", "user_id", "balance_real", "balance_bonus", "balance_withdrawable", "created_at", "updated_at"}

const (
	selectWalletForUpdate = `SELECT id, user_id, balance_real, balance_bonus, balance_withdrawable, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`
	selectWalletByID = `SELECT id, user_id, balance_real, balance_bonus, balance_withdrawable, created_at, updated_at
		 FROM wallets WHERE id = $1`
	updateWallet = `UPDATE wallets
		 SET balance_real = $1, balance_bonus = $2, balance_withdrawable = $3, updated_at = NOW()
		 WHERE id = $4`
)

func setupWalletMock(t *testing.T) (*Repository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	sqlxDB := sqlx.NewDb(raw, "sqlmock")
	return NewRepository(sqlxDB), sqlxDB, mock
}

func beginTx(t *testing.T, sqlxDB *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	return tx
}

func walletRow(id, userID, real, bonus, withdrawable int64) *sqlmock.Rows {
	return sqlmock.NewRows(walletCols).AddRow(id, userID, real, bonus, withdrawable, time.Now(), time.Now())
}

func TestBalance_NoWallet(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnError(sql.ErrNoRows)

	balance, err := repo.Balance(context.Background(), sqlxDB, 10)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAdjust_CreditCreatesWallet(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(10)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallets (user_id)`)).
		WithArgs(int64(10)).
		WillReturnRows(walletRow(5, 10, 0, 0, 0))
	mock.ExpectExec(regexp.QuoteMeta(updateWallet)).
		WithArgs(int64(100), int64(25), int64(0), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletByID)).
		WithArgs(int64(5)).
		WillReturnRows(walletRow(5, 10, 100, 25, 0))

	before, after, err := repo.Adjust(context.Background(), tx, 10, money.New(100, 25), false)
	require.NoError(t, err)
	assert.True(t, before.IsZero())
	assert.True(t, after.Equal(money.New(100, 25)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjust_DebitInsufficientRejected(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(20)).
		WillReturnRows(walletRow(7, 20, 50, 10, 0))

	_, _, err := repo.Adjust(context.Background(), tx, 20, money.New(80, 20), true)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	// No UPDATE was expected: rejection happens before any write.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjust_DebitMissingWalletRejected(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(20)).
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.Adjust(context.Background(), tx, 20, money.New(10, 0), true)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestAdjust_VerifyMismatchFails(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(20)).
		WillReturnRows(walletRow(7, 20, 100, 20, 0))
	mock.ExpectExec(regexp.QuoteMeta(updateWallet)).
		WithArgs(int64(20), int64(0), int64(0), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Re-read comes back with a balance that does not match the expected
	// one; the adjust must surface the inconsistency.
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletByID)).
		WithArgs(int64(7)).
		WillReturnRows(walletRow(7, 20, 99, 0, 0))

	_, _, err := repo.Adjust(context.Background(), tx, 20, money.New(80, 20), true)
	assert.ErrorIs(t, err, ErrLedgerInconsistent)
}

func TestAdjust_DebitClampsWithdrawable(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	// real 100 of which 100 withdrawable; paying 80 non-withdrawable must
	// pull withdrawable down to the remaining real.
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(20)).
		WillReturnRows(walletRow(7, 20, 100, 20, 100))
	mock.ExpectExec(regexp.QuoteMeta(updateWallet)).
		WithArgs(int64(20), int64(0), int64(20), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletByID)).
		WithArgs(int64(7)).
		WillReturnRows(walletRow(7, 20, 20, 0, 20))

	_, after, err := repo.Adjust(context.Background(), tx, 20, money.New(80, 20), true)
	require.NoError(t, err)
	assert.Equal(t, int64(20), after.Withdrawable)
}

func TestDebitEntryFee_PaymentScenario(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	// entryFee=100 split as real 80 + bonus 20.
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(42)).
		WillReturnRows(walletRow(3, 42, 500, 60, 0))
	mock.ExpectExec(regexp.QuoteMeta(updateWallet)).
		WithArgs(int64(420), int64(40), int64(0), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletByID)).
		WithArgs(int64(3)).
		WillReturnRows(walletRow(3, 42, 420, 40, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WithArgs(int64(42), TypePayForContest, StatusCompleted,
			int64(80), int64(20), int64(0),
			int64(500), int64(60), int64(420), int64(40),
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))

	id, err := repo.DebitEntryFee(context.Background(), tx, 42, money.New(80, 20), "Weekend Movie Quiz")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditPrize_MarksRealWithdrawable(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(42)).
		WillReturnRows(walletRow(3, 42, 100, 0, 10))
	mock.ExpectExec(regexp.QuoteMeta(updateWallet)).
		WithArgs(int64(600), int64(50), int64(510), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletByID)).
		WithArgs(int64(3)).
		WillReturnRows(walletRow(3, 42, 600, 50, 510))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WithArgs(int64(42), TypeContestWin, StatusCompleted,
			int64(500), int64(50), int64(500),
			int64(100), int64(0), int64(600), int64(50),
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))

	_, err := repo.CreditPrize(context.Background(), tx, 42, money.New(500, 50), "Weekend Movie Quiz")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateWithdrawal_RequiresWithdrawable(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)
	tx := beginTx(t, sqlxDB, mock)

	// Plenty of real balance but only 30 withdrawable.
	mock.ExpectQuery(regexp.QuoteMeta(selectWalletForUpdate)).
		WithArgs(int64(42)).
		WillReturnRows(walletRow(3, 42, 500, 0, 30))

	_, err := repo.InitiateWithdrawal(context.Background(), tx, 42, 100, "user@upi")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCompleteWithdrawal_NotPending(t *testing.T) {
	repo, sqlxDB, mock := setupWalletMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallet_transactions`)).
		WithArgs(StatusCompleted, int64(77), TypeWithdraw, StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteWithdrawal(context.Background(), sqlxDB, 77)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
