package user

import "time"

// User carries the contest aggregates the settlement updates. Identity,
// credentials and profile management live in the external auth service.
type User struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	TotalPlayed       int       `db:"total_played" json:"total_played"`
	ContestWon        int       `db:"contest_won" json:"contest_won"`
	TotalEarningReal  int64     `db:"total_earning_real" json:"total_earning_real"`
	TotalEarningBonus int64     `db:"total_earning_bonus" json:"total_earning_bonus"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
