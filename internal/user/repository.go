package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trailsbuddy/internal/db"
	"trailsbuddy/internal/money"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	pool *sqlx.DB
}

func NewRepository(pool *sqlx.DB) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FindByID(ctx context.Context, q db.Queryer, id int64) (*User, error) {
	u := &User{}
	err := q.GetContext(ctx, u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// BulkIncrementPlayed bumps total_played for every engaged player of a
// settled contest.
func (r *Repository) BulkIncrementPlayed(ctx context.Context, q db.Queryer, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`UPDATE users
		 SET total_played = total_played + 1, updated_at = NOW()
		 WHERE id = ANY($1)`,
		pq.Array(userIDs),
	)
	return err
}

// ApplyWin bumps the winner aggregates for one user.
func (r *Repository) ApplyWin(ctx context.Context, q db.Queryer, userID int64, prize money.Money) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users
		 SET contest_won = contest_won + 1,
		     total_earning_real = total_earning_real + $1,
		     total_earning_bonus = total_earning_bonus + $2,
		     updated_at = NOW()
		 WHERE id = $3`,
		prize.Real, prize.Bonus, userID,
	)
	return err
}
