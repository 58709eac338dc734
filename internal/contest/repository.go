package contest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/db"
)

var (
	ErrNotFound          = errors.New("contest not found")
	ErrInvalidTransition = errors.New("contest status transition not allowed")
)

type Repository struct {
	pool *sqlx.DB
}

func NewRepository(pool *sqlx.DB) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, q db.Queryer, id int64) (*Contest, error) {
	c := &Contest{}
	err := q.GetContext(ctx, c, `SELECT * FROM contests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByIDForUpdate locks the contest row for the remainder of the caller's
// transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*Contest, error) {
	c := &Contest{}
	err := tx.QueryRowxContext(ctx, `SELECT * FROM contests WHERE id = $1 FOR UPDATE`, id).StructScan(c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListOpen returns contests players can currently see and join.
func (r *Repository) ListOpen(ctx context.Context, now time.Time) ([]Contest, error) {
	var contests []Contest
	err := r.pool.SelectContext(ctx, &contests, `
		SELECT * FROM contests
		WHERE status = $1 AND end_time > $2
		ORDER BY start_time ASC
	`, StatusActive, now)
	if err != nil {
		return nil, err
	}
	return contests, nil
}

// DueForSettlement returns active contests whose end time has passed and
// that have not exhausted their settlement attempts, oldest-updated first
// so a repeatedly failing contest cannot starve the rest.
func (r *Repository) DueForSettlement(ctx context.Context, q db.Queryer, now time.Time, maxAttempts int) ([]Contest, error) {
	var contests []Contest
	err := q.SelectContext(ctx, &contests, `
		SELECT * FROM contests
		WHERE status = $1 AND end_time <= $2 AND settle_attempts < $3
		ORDER BY updated_at ASC
	`, StatusActive, now, maxAttempts)
	if err != nil {
		return nil, err
	}
	return contests, nil
}

// ActiveQuestions returns the contest's active questions in their stable
// question_no order.
func (r *Repository) ActiveQuestions(ctx context.Context, q db.Queryer, contestID int64) ([]Question, error) {
	var questions []Question
	err := q.SelectContext(ctx, &questions, `
		SELECT * FROM contest_questions
		WHERE contest_id = $1 AND active = TRUE
		ORDER BY question_no ASC
	`, contestID)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *Repository) GetQuestion(ctx context.Context, q db.Queryer, contestID int64, questionNo int) (*Question, error) {
	question := &Question{}
	err := q.GetContext(ctx, question, `
		SELECT * FROM contest_questions
		WHERE contest_id = $1 AND question_no = $2
	`, contestID, questionNo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return question, nil
}

// SetStatus performs a guarded transition; the WHERE clause on the current
// status makes concurrent transitions lose cleanly.
func (r *Repository) SetStatus(ctx context.Context, q db.Queryer, id int64, from, to Status) error {
	if !from.CanTransition(to) {
		return ErrInvalidTransition
	}
	res, err := q.ExecContext(ctx, `
		UPDATE contests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkEnded closes a settled contest and persists the final standings
// snapshot.
func (r *Repository) MarkEnded(ctx context.Context, tx *sqlx.Tx, id int64, standings Standings) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE contests
		SET status = $1, final_standings = $2, settle_error = NULL, settle_error_at = NULL, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, StatusEnded, standings, id, StatusActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE contests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, StatusCancelled, id, StatusActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// RecordSettleFailure annotates a contest after a failed settlement
// attempt. Runs outside the settlement transaction, which has already been
// rolled back.
func (r *Repository) RecordSettleFailure(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := r.pool.ExecContext(ctx, `
		UPDATE contests
		SET settle_attempts = settle_attempts + 1, settle_error = $1, settle_error_at = $2, updated_at = NOW()
		WHERE id = $3
	`, reason, at, id)
	return err
}
