package contest

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusCreated   Status = "Created"
	StatusActive    Status = "Active"
	StatusInactive  Status = "Inactive"
	StatusFinished  Status = "Finished"
	StatusCancelled Status = "Cancelled"
	StatusEnded     Status = "Ended"
)

// CanTransition reports whether a contest may move from s to next. The
// lifecycle is monotone except for the Active/Inactive toggle before start.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusActive
	case StatusActive:
		return next == StatusInactive || next == StatusFinished ||
			next == StatusCancelled || next == StatusEnded
	case StatusInactive:
		return next == StatusActive
	case StatusFinished:
		return next == StatusEnded
	default: // Cancelled and Ended are terminal
		return false
	}
}

type PrizeSelection string

const (
	PrizeSelectionTopWinners PrizeSelection = "TopWinners"
	PrizeSelectionRatioBased PrizeSelection = "RatioBased"
)

// Option is the stored shape of an answer choice. Correct is server-only
// and must never be sent to players; handlers respond with OptionView.
type Option struct {
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

type OptionView struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type Options []Option

func (o Options) Value() (driver.Value, error) {
	return json.Marshal(o)
}

func (o *Options) Scan(src interface{}) error {
	return scanJSON(src, o)
}

type Question struct {
	ID         int64     `db:"id" json:"id"`
	ContestID  int64     `db:"contest_id" json:"contest_id"`
	QuestionNo int       `db:"question_no" json:"question_no"`
	Text       string    `db:"text" json:"text"`
	Options    Options   `db:"options" json:"options"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// View strips the correct flags for player-facing responses.
func (q *Question) View() QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	return QuestionView{QuestionNo: q.QuestionNo, Text: q.Text, Options: opts}
}

// CorrectOptionID returns the id of the option flagged correct, or false
// when the question has none.
func (q *Question) CorrectOptionID() (int, bool) {
	for _, o := range q.Options {
		if o.Correct {
			return o.ID, true
		}
	}
	return 0, false
}

type QuestionView struct {
	QuestionNo int          `json:"question_no"`
	Text       string       `json:"text"`
	Options    []OptionView `json:"options"`
}

// Standing is one row of the denormalized result snapshot persisted on the
// contest when it settles.
type Standing struct {
	UserID      int64 `json:"user_id"`
	Rank        int   `json:"rank"`
	Score       int   `json:"score"`
	TimeTakenMs int64 `json:"time_taken_ms"`
	Winner      bool  `json:"winner"`
	PrizeReal   int64 `json:"prize_real,omitempty"`
	PrizeBonus  int64 `json:"prize_bonus,omitempty"`
}

type Standings []Standing

func (s Standings) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *Standings) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	return scanJSON(src, s)
}

type Contest struct {
	ID                    int64          `db:"id" json:"id"`
	Title                 string         `db:"title" json:"title"`
	EntryFee              int64          `db:"entry_fee" json:"entry_fee"`
	EntryFeeMaxBonus      int64          `db:"entry_fee_max_bonus" json:"entry_fee_max_bonus"`
	PrizeSelection        PrizeSelection `db:"prize_selection" json:"prize_selection"`
	TopWinnersCount       int            `db:"top_winners_count" json:"top_winners_count"`
	PrizeRatioNumerator   int            `db:"prize_ratio_numerator" json:"prize_ratio_numerator"`
	PrizeRatioDenominator int            `db:"prize_ratio_denominator" json:"prize_ratio_denominator"`
	PrizeValueReal        int64          `db:"prize_value_real" json:"prize_value_real"`
	PrizeValueBonus       int64          `db:"prize_value_bonus" json:"prize_value_bonus"`
	StartTime             time.Time      `db:"start_time" json:"start_time"`
	EndTime               time.Time      `db:"end_time" json:"end_time"`
	MinRequiredPlayers    int            `db:"min_required_players" json:"min_required_players"`
	Status                Status         `db:"status" json:"status"`
	SettleAttempts        int            `db:"settle_attempts" json:"settle_attempts"`
	SettleError           *string        `db:"settle_error" json:"settle_error,omitempty"`
	SettleErrorAt         *time.Time     `db:"settle_error_at" json:"settle_error_at,omitempty"`
	FinalStandings        Standings      `db:"final_standings" json:"final_standings,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// Validate checks the cross-field invariants an admin-created contest must
// satisfy before activation.
func (c *Contest) Validate() error {
	if c.EntryFeeMaxBonus > c.EntryFee {
		return errors.New("entry_fee_max_bonus cannot exceed entry_fee")
	}
	if !c.EndTime.After(c.StartTime) {
		return errors.New("end_time must be after start_time")
	}
	if c.PrizeSelection == PrizeSelectionRatioBased && c.PrizeRatioDenominator <= 0 {
		return errors.New("prize_ratio_denominator must be positive")
	}
	return nil
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
