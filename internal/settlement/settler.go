package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/db"
	"trailsbuddy/internal/logger"
	"trailsbuddy/internal/metrics"
	"trailsbuddy/internal/money"
	"trailsbuddy/internal/play"
)

var ErrContestNotActive = errors.New("contest is not active")

const (
	eventContestWin       = "contest.win"
	eventContestCancelled = "contest.cancelled"
)

type ContestStore interface {
	DueForSettlement(ctx context.Context, q db.Queryer, now time.Time, maxAttempts int) ([]contest.Contest, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*contest.Contest, error)
	MarkEnded(ctx context.Context, tx *sqlx.Tx, id int64, standings contest.Standings) error
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id int64) error
	RecordSettleFailure(ctx context.Context, id int64, reason string, at time.Time) error
}

type TrackerStore interface {
	ListEngagedForUpdate(ctx context.Context, tx *sqlx.Tx, contestID int64) ([]play.Tracker, error)
	SealEnded(ctx context.Context, tx *sqlx.Tx, trackerID int64, rank *int, timeTakenMs int64) error
}

type Ledger interface {
	CreditPrize(ctx context.Context, tx *sqlx.Tx, userID int64, prize money.Money, contestTitle string) (int64, error)
	RefundEntryFee(ctx context.Context, tx *sqlx.Tx, userID int64, paid money.Money, contestTitle string) (int64, error)
}

type UserStore interface {
	BulkIncrementPlayed(ctx context.Context, q db.Queryer, userIDs []int64) error
	ApplyWin(ctx context.Context, q db.Queryer, userID int64, prize money.Money) error
}

type Notifier interface {
	Submit(ctx context.Context, q db.Queryer, userID int64, eventName string, data map[string]string) error
}

// Settler finalizes ended contests: ranks engaged players, pays winners,
// updates aggregates and seals trackers, all inside one transaction per
// contest.
type Settler struct {
	pool        *sqlx.DB
	contests    ContestStore
	trackers    TrackerStore
	ledger      Ledger
	users       UserStore
	notifier    Notifier
	maxAttempts int
	now         func() time.Time
}

func NewSettler(pool *sqlx.DB, contests ContestStore, trackers TrackerStore, ledger Ledger, users UserStore, notifier Notifier, maxAttempts int) *Settler {
	return &Settler{
		pool:        pool,
		contests:    contests,
		trackers:    trackers,
		ledger:      ledger,
		users:       users,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// SettleDue processes every contest whose end time has passed. Contests
// are handled sequentially, oldest first; one failure is annotated and
// retried next tick without blocking the rest.
func (s *Settler) SettleDue(ctx context.Context) {
	started := s.now()
	defer func() {
		metrics.SettlementTickDuration.Observe(time.Since(started).Seconds())
	}()

	due, err := s.contests.DueForSettlement(ctx, s.pool, s.now(), s.maxAttempts)
	if err != nil {
		logger.Error("failed to query contests due for settlement", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	logger.Info("settling ended contests", "count", len(due))

	for _, c := range due {
		if err := s.SettleContest(ctx, c.ID); err != nil {
			metrics.RecordSettlement("failed")
			logger.Error("contest settlement failed", "contest_id", c.ID, "error", err)
			if recErr := s.contests.RecordSettleFailure(ctx, c.ID, err.Error(), s.now()); recErr != nil {
				logger.Error("failed to record settlement failure", "contest_id", c.ID, "error", recErr)
			}
			if c.SettleAttempts+1 >= s.maxAttempts {
				logger.Error("contest reached settlement attempt cap, operator intervention required",
					"contest_id", c.ID, "attempts", c.SettleAttempts+1)
			}
		}
	}
}

// SettleContest finalizes one contest. A contest with fewer engaged
// players than required is cancelled with refunds instead.
func (s *Settler) SettleContest(ctx context.Context, contestID int64) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		c, err := s.contests.GetByIDForUpdate(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c.Status != contest.StatusActive {
			// Already settled or cancelled by a concurrent pass.
			return ErrContestNotActive
		}

		engaged, err := s.trackers.ListEngagedForUpdate(ctx, tx, contestID)
		if err != nil {
			return err
		}

		if len(engaged) < c.MinRequiredPlayers {
			return s.cancelLocked(ctx, tx, c, engaged)
		}

		ranked := Rank(engaged, s.now())
		winnersCount := WinnersCount(c, len(engaged))
		MarkWinners(ranked, winnersCount)

		prize := money.New(c.PrizeValueReal, c.PrizeValueBonus)
		engagedIDs := make([]int64, 0, len(ranked))
		for _, r := range ranked {
			engagedIDs = append(engagedIDs, r.Tracker.UserID)

			if r.Winner {
				if _, err := s.ledger.CreditPrize(ctx, tx, r.Tracker.UserID, prize, c.Title); err != nil {
					return err
				}
				if err := s.users.ApplyWin(ctx, tx, r.Tracker.UserID, prize); err != nil {
					return err
				}
				if err := s.notifier.Submit(ctx, tx, r.Tracker.UserID, eventContestWin, map[string]string{
					"contestId":  strconv.FormatInt(c.ID, 10),
					"contest":    c.Title,
					"rank":       strconv.Itoa(r.Rank),
					"prizeReal":  strconv.FormatInt(prize.Real, 10),
					"prizeBonus": strconv.FormatInt(prize.Bonus, 10),
				}); err != nil {
					return err
				}
				metrics.PrizesCreditedTotal.Inc()
			}

			var rank *int
			if r.Rank > 0 {
				n := r.Rank
				rank = &n
			}
			if err := s.trackers.SealEnded(ctx, tx, r.Tracker.ID, rank, r.TimeTakenMs); err != nil {
				return err
			}
		}

		if err := s.users.BulkIncrementPlayed(ctx, tx, engagedIDs); err != nil {
			return err
		}
		if err := s.contests.MarkEnded(ctx, tx, c.ID, Standings(ranked, prize.Real, prize.Bonus)); err != nil {
			return err
		}

		metrics.RecordSettlement("ended")
		logger.Info("contest settled", "contest_id", c.ID, "players", len(engaged), "winners", winnersCount)
		return nil
	})
}

// CancelContest refunds every engaged player and closes the contest. It is
// the explicit admin entry point; the settlement pass reaches the same
// path when a contest ends under-subscribed.
func (s *Settler) CancelContest(ctx context.Context, contestID int64) error {
	return db.WithinTx(ctx, s.pool, func(tx *sqlx.Tx) error {
		c, err := s.contests.GetByIDForUpdate(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c.Status != contest.StatusActive {
			return ErrContestNotActive
		}
		engaged, err := s.trackers.ListEngagedForUpdate(ctx, tx, contestID)
		if err != nil {
			return err
		}
		return s.cancelLocked(ctx, tx, c, engaged)
	})
}

func (s *Settler) cancelLocked(ctx context.Context, tx *sqlx.Tx, c *contest.Contest, engaged []play.Tracker) error {
	for i := range engaged {
		t := &engaged[i]
		paid := t.PaidAmount()
		if !paid.IsZero() {
			if _, err := s.ledger.RefundEntryFee(ctx, tx, t.UserID, paid, c.Title); err != nil {
				return err
			}
		}
		if err := s.notifier.Submit(ctx, tx, t.UserID, eventContestCancelled, map[string]string{
			"contestId":   strconv.FormatInt(c.ID, 10),
			"contest":     c.Title,
			"refundReal":  strconv.FormatInt(paid.Real, 10),
			"refundBonus": strconv.FormatInt(paid.Bonus, 10),
		}); err != nil {
			return err
		}
		if err := s.trackers.SealEnded(ctx, tx, t.ID, nil, timeTakenMs(t, s.now())); err != nil {
			return err
		}
	}

	if err := s.contests.MarkCancelled(ctx, tx, c.ID); err != nil {
		return err
	}

	metrics.RecordSettlement("cancelled")
	logger.Info("contest cancelled with refunds", "contest_id", c.ID, "players", len(engaged))
	return nil
}
