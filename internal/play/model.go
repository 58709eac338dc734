package play

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"trailsbuddy/internal/money"
)

// Status is the per-(user, contest) quiz lifecycle. Ended is set only by
// the settlement scheduler, never by player-facing calls.
type Status string

const (
	StatusInit     Status = "Init"
	StatusPaid     Status = "Paid"
	StatusStarted  Status = "Started"
	StatusFinished Status = "Finished"
	StatusEnded    Status = "Ended"
)

// Engaged reports whether a tracker counts toward a contest's player
// population at settlement time.
func (s Status) Engaged() bool {
	return s == StatusPaid || s == StatusStarted || s == StatusFinished
}

type Answer struct {
	QuestionNo       int  `json:"question_no"`
	SelectedOptionID int  `json:"selected_option_id"`
	Correct          bool `json:"correct"`
}

type Answers []Answer

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(Answers{})
	}
	return json.Marshal(a)
}

func (a *Answers) Scan(src interface{}) error {
	return scanJSON(src, a)
}

type Resumes []time.Time

func (r Resumes) Value() (driver.Value, error) {
	if r == nil {
		return json.Marshal(Resumes{})
	}
	return json.Marshal(r)
}

func (r *Resumes) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// Tracker is one row per (contest, user).
type Tracker struct {
	ID                  int64      `db:"id" json:"id"`
	ContestID           int64      `db:"contest_id" json:"contest_id"`
	UserID              int64      `db:"user_id" json:"user_id"`
	Status              Status     `db:"status" json:"status"`
	InitAt              time.Time  `db:"init_at" json:"init_at"`
	PaidAt              *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	StartedAt           *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt          *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Resumes             Resumes    `db:"resumes" json:"resumes"`
	WalletTransactionID *int64     `db:"wallet_transaction_id" json:"wallet_transaction_id,omitempty"`
	PaidReal            int64      `db:"paid_real" json:"paid_real"`
	PaidBonus           int64      `db:"paid_bonus" json:"paid_bonus"`
	TotalQuestions      int        `db:"total_questions" json:"total_questions"`
	Score               int        `db:"score" json:"score"`
	Answers             Answers    `db:"answers" json:"answers"`
	TimeTakenMs         *int64     `db:"time_taken_ms" json:"time_taken_ms,omitempty"`
	Rank                *int       `db:"rank" json:"rank,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *Tracker) PaidAmount() money.Money {
	return money.New(t.PaidReal, t.PaidBonus)
}

func (t *Tracker) AnsweredSet() map[int]bool {
	set := make(map[int]bool, len(t.Answers))
	for _, a := range t.Answers {
		set[a.QuestionNo] = true
	}
	return set
}

func (t *Tracker) HasAnswered(questionNo int) bool {
	for _, a := range t.Answers {
		if a.QuestionNo == questionNo {
			return true
		}
	}
	return false
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
