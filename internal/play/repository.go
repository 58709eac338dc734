package play

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/db"
	"trailsbuddy/internal/money"
)

var (
	ErrTrackerNotFound = errors.New("playTracker not found")
	// ErrWrongStatus means a guarded update found the tracker in a different
	// state than the transition requires.
	ErrWrongStatus = errors.New("playTracker is not in correct status")
)

type Repository struct {
	pool *sqlx.DB
}

func NewRepository(pool *sqlx.DB) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, q db.Queryer, contestID, userID int64) (*Tracker, error) {
	t := &Tracker{}
	err := q.GetContext(ctx, t,
		`SELECT * FROM play_trackers WHERE contest_id = $1 AND user_id = $2`,
		contestID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackerNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetOrCreateForUpdate locks the tracker row, creating it in Init on the
// user's first interaction with the contest.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error) {
	t := &Tracker{}
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM play_trackers WHERE contest_id = $1 AND user_id = $2 FOR UPDATE`,
		contestID, userID,
	).StructScan(t)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO play_trackers (contest_id, user_id, status, init_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING *`,
		contestID, userID, StatusInit,
	).StructScan(t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error) {
	t := &Tracker{}
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM play_trackers WHERE contest_id = $1 AND user_id = $2 FOR UPDATE`,
		contestID, userID,
	).StructScan(t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackerNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarkPaid moves Init -> Paid, stamping the ledger reference and the paid
// amount.
func (r *Repository) MarkPaid(ctx context.Context, tx *sqlx.Tx, trackerID, walletTransactionID int64, paid money.Money) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE play_trackers
		 SET status = $1, wallet_transaction_id = $2, paid_real = $3, paid_bonus = $4, paid_at = NOW(), updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		StatusPaid, walletTransactionID, paid.Real, paid.Bonus, trackerID, StatusInit,
	)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

// MarkStarted moves Init or Paid -> Started. The entry-fee guard (paid
// contests require Paid) is the service's responsibility.
func (r *Repository) MarkStarted(ctx context.Context, tx *sqlx.Tx, trackerID int64, totalQuestions int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE play_trackers
		 SET status = $1, started_at = NOW(), total_questions = $2, updated_at = NOW()
		 WHERE id = $3 AND status IN ($4, $5)`,
		StatusStarted, totalQuestions, trackerID, StatusInit, StatusPaid,
	)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

// AppendResume records a resume timestamp without changing status.
func (r *Repository) AppendResume(ctx context.Context, q db.Queryer, contestID, userID int64, at time.Time) error {
	resumes := Resumes{at}
	raw, err := resumes.Value()
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		`UPDATE play_trackers
		 SET resumes = resumes || $1::jsonb, updated_at = NOW()
		 WHERE contest_id = $2 AND user_id = $3 AND status = $4`,
		raw, contestID, userID, StatusStarted,
	)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

// SaveAnswer persists the appended answer list and score in one guarded
// update; when the answer completed the last active question the same
// update flips the tracker to Finished.
func (r *Repository) SaveAnswer(ctx context.Context, tx *sqlx.Tx, trackerID int64, answers Answers, score int, finished bool) error {
	var res sql.Result
	var err error
	if finished {
		res, err = tx.ExecContext(ctx,
			`UPDATE play_trackers
			 SET answers = $1, score = $2, status = $3, finished_at = NOW(), updated_at = NOW()
			 WHERE id = $4 AND status = $5`,
			answers, score, StatusFinished, trackerID, StatusStarted,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE play_trackers
			 SET answers = $1, score = $2, updated_at = NOW()
			 WHERE id = $3 AND status = $4`,
			answers, score, trackerID, StatusStarted,
		)
	}
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

func (r *Repository) MarkFinished(ctx context.Context, q db.Queryer, contestID, userID int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE play_trackers
		 SET status = $1, finished_at = NOW(), updated_at = NOW()
		 WHERE contest_id = $2 AND user_id = $3 AND status = $4`,
		StatusFinished, contestID, userID, StatusStarted,
	)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

// ListEngagedForUpdate locks every engaged tracker of a contest for the
// settlement transaction.
func (r *Repository) ListEngagedForUpdate(ctx context.Context, tx *sqlx.Tx, contestID int64) ([]Tracker, error) {
	var trackers []Tracker
	err := tx.SelectContext(ctx, &trackers,
		`SELECT * FROM play_trackers
		 WHERE contest_id = $1 AND status IN ($2, $3, $4)
		 ORDER BY id
		 FOR UPDATE`,
		contestID, StatusPaid, StatusStarted, StatusFinished,
	)
	if err != nil {
		return nil, err
	}
	return trackers, nil
}

// SealEnded is the settlement-only transition to the terminal state.
func (r *Repository) SealEnded(ctx context.Context, tx *sqlx.Tx, trackerID int64, rank *int, timeTakenMs int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE play_trackers
		 SET status = $1, rank = $2, time_taken_ms = $3, updated_at = NOW()
		 WHERE id = $4 AND status IN ($5, $6, $7)`,
		StatusEnded, rank, timeTakenMs, trackerID, StatusPaid, StatusStarted, StatusFinished,
	)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrWrongStatus)
}

func oneRowOr(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
