package play

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/db"
	"trailsbuddy/internal/metrics"
	"trailsbuddy/internal/money"
)

var (
	ErrContestNotActive  = errors.New("contest is not active")
	ErrContestNotRunning = errors.New("contest is not running now")
	ErrNotPaid           = errors.New("contest not paid yet")
	ErrNoEntryFee        = errors.New("contest has no entry fee")
	ErrInvalidBonusSplit = errors.New("bonus amount exceeds allowed maximum")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrAlreadyAnswered   = errors.New("question already answered")
	ErrQuestionNotFound  = errors.New("question not found in contest")
)

type ContestStore interface {
	GetByID(ctx context.Context, q db.Queryer, id int64) (*contest.Contest, error)
	ActiveQuestions(ctx context.Context, q db.Queryer, contestID int64) ([]contest.Question, error)
}

type TrackerStore interface {
	Get(ctx context.Context, q db.Queryer, contestID, userID int64) (*Tracker, error)
	GetOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error)
	MarkPaid(ctx context.Context, tx *sqlx.Tx, trackerID, walletTransactionID int64, paid money.Money) error
	MarkStarted(ctx context.Context, tx *sqlx.Tx, trackerID int64, totalQuestions int) error
	AppendResume(ctx context.Context, q db.Queryer, contestID, userID int64, at time.Time) error
	SaveAnswer(ctx context.Context, tx *sqlx.Tx, trackerID int64, answers Answers, score int, finished bool) error
	MarkFinished(ctx context.Context, q db.Queryer, contestID, userID int64) error
}

type Ledger interface {
	Balance(ctx context.Context, q db.Queryer, userID int64) (money.Money, error)
	DebitEntryFee(ctx context.Context, tx *sqlx.Tx, userID int64, fee money.Money, contestTitle string) (int64, error)
}

type Service struct {
	pool     *sqlx.DB
	contests ContestStore
	trackers TrackerStore
	ledger   Ledger
	now      func() time.Time
	randInt  func(n int) int
}

func NewService(pool *sqlx.DB, contests ContestStore, trackers TrackerStore, ledger Ledger) *Service {
	return &Service{
		pool:     pool,
		contests: contests,
		trackers: trackers,
		ledger:   ledger,
		now:      time.Now,
		randInt:  rand.Intn,
	}
}

// Pay charges the contest entry fee. The balance check, the wallet debit,
// the ledger row and the tracker transition all commit atomically.
func (s *Service) Pay(ctx context.Context, userID, contestID, bonusToUse int64) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		c, err := s.contests.GetByID(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c.Status != contest.StatusActive {
			return ErrContestNotActive
		}
		if c.EntryFee <= 0 {
			return ErrNoEntryFee
		}
		if bonusToUse < 0 || bonusToUse > c.EntryFeeMaxBonus {
			return ErrInvalidBonusSplit
		}

		tracker, err := s.trackers.GetOrCreateForUpdate(ctx, tx, contestID, userID)
		if err != nil {
			return err
		}
		if tracker.Status != StatusInit {
			return ErrWrongStatus
		}

		fee := money.New(c.EntryFee-bonusToUse, bonusToUse)
		balance, err := s.ledger.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !balance.Covers(fee) {
			return ErrInsufficientFunds
		}

		transactionID, err := s.ledger.DebitEntryFee(ctx, tx, userID, fee, c.Title)
		if err != nil {
			return err
		}
		return s.trackers.MarkPaid(ctx, tx, tracker.ID, transactionID, fee)
	})
}

// Start begins the quiz. Free contests may start from Init; paid contests
// require a prior Paid state.
func (s *Service) Start(ctx context.Context, userID, contestID int64) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		c, err := s.contests.GetByID(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c.Status != contest.StatusActive {
			return ErrContestNotActive
		}
		now := s.now()
		if now.Before(c.StartTime) || !now.Before(c.EndTime) {
			return ErrContestNotRunning
		}

		tracker, err := s.trackers.GetOrCreateForUpdate(ctx, tx, contestID, userID)
		if err != nil {
			return err
		}
		if c.EntryFee > 0 {
			if tracker.Status == StatusInit {
				return ErrNotPaid
			}
			if tracker.Status != StatusPaid {
				return ErrWrongStatus
			}
		} else if tracker.Status != StatusInit {
			return ErrWrongStatus
		}

		questions, err := s.contests.ActiveQuestions(ctx, tx, contestID)
		if err != nil {
			return err
		}
		return s.trackers.MarkStarted(ctx, tx, tracker.ID, len(questions))
	})
}

// Resume records a re-entry into a running quiz; it never changes status.
func (s *Service) Resume(ctx context.Context, userID, contestID int64) error {
	return s.trackers.AppendResume(ctx, s.pool, contestID, userID, s.now())
}

// NextQuestion samples the next unanswered active question. The correct
// flags never leave the server; the caller gets a QuestionView.
func (s *Service) NextQuestion(ctx context.Context, userID, contestID int64) (*contest.QuestionView, error) {
	tracker, err := s.trackers.Get(ctx, s.pool, contestID, userID)
	if err != nil {
		return nil, err
	}
	if tracker.Status != StatusStarted {
		return nil, ErrWrongStatus
	}

	questions, err := s.contests.ActiveQuestions(ctx, s.pool, contestID)
	if err != nil {
		return nil, err
	}

	var start int
	if len(questions) > 0 {
		start = s.randInt(len(questions))
	}
	question, err := PickNext(questions, tracker.AnsweredSet(), start)
	if err != nil {
		return nil, err
	}
	view := question.View()
	return &view, nil
}

type AnswerResult struct {
	Score    int  `json:"score"`
	Answered int  `json:"answered"`
	Finished bool `json:"finished"`
}

// Answer scores one submission inside a single guarded transaction. The
// answer that completes the last active question finishes the quiz.
func (s *Service) Answer(ctx context.Context, userID, contestID int64, questionNo, selectedOptionID int) (*AnswerResult, error) {
	var result *AnswerResult
	err := db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		tracker, err := s.trackers.GetForUpdate(ctx, tx, contestID, userID)
		if err != nil {
			return err
		}
		if tracker.Status != StatusStarted {
			return ErrWrongStatus
		}
		if tracker.HasAnswered(questionNo) {
			return ErrAlreadyAnswered
		}

		questions, err := s.contests.ActiveQuestions(ctx, tx, contestID)
		if err != nil {
			return err
		}
		var question *contest.Question
		for i := range questions {
			if questions[i].QuestionNo == questionNo {
				question = &questions[i]
				break
			}
		}
		if question == nil {
			return ErrQuestionNotFound
		}

		correctID, hasCorrect := question.CorrectOptionID()
		correct := hasCorrect && selectedOptionID == correctID

		answers := append(tracker.Answers, Answer{
			QuestionNo:       questionNo,
			SelectedOptionID: selectedOptionID,
			Correct:          correct,
		})
		score := tracker.Score
		if correct {
			score++
		}

		answered := make(map[int]bool, len(answers))
		for _, a := range answers {
			answered[a.QuestionNo] = true
		}
		finished := true
		for _, q := range questions {
			if !answered[q.QuestionNo] {
				finished = false
				break
			}
		}

		if err := s.trackers.SaveAnswer(ctx, tx, tracker.ID, answers, score, finished); err != nil {
			return err
		}
		metrics.RecordAnswer(correct)
		result = &AnswerResult{Score: score, Answered: len(answers), Finished: finished}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Finish ends the quiz early at the player's request.
func (s *Service) Finish(ctx context.Context, userID, contestID int64) error {
	return s.trackers.MarkFinished(ctx, s.pool, contestID, userID)
}

// Tracker returns the caller's own progress for a contest.
func (s *Service) Tracker(ctx context.Context, userID, contestID int64) (*Tracker, error) {
	return s.trackers.Get(ctx, s.pool, contestID, userID)
}
