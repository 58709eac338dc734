package settlement

import (
	"math"
	"sort"
	"time"

	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/play"
)

// Ranked is one engaged tracker with its computed standing. Rank is 0 for
// zero-score trackers, which never rank.
type Ranked struct {
	Tracker     *play.Tracker
	TimeTakenMs int64
	Rank        int
	Winner      bool
}

// timeTakenMs measures how long the player took: finish stamp when
// present, otherwise the last tracker update, measured from the start
// stamp. A tracker that never started sorts last.
func timeTakenMs(t *play.Tracker, now time.Time) int64 {
	if t.StartedAt == nil {
		return math.MaxInt64
	}
	end := t.UpdatedAt
	if t.FinishedAt != nil {
		end = *t.FinishedAt
	} else if end.IsZero() {
		end = now
	}
	ms := end.Sub(*t.StartedAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return ms
}

// Rank orders engaged trackers by score descending, then time taken
// ascending, then start time ascending (an earlier start wins remaining
// ties), and assigns ranks to trackers with a positive score.
func Rank(trackers []play.Tracker, now time.Time) []Ranked {
	ranked := make([]Ranked, 0, len(trackers))
	for i := range trackers {
		ranked = append(ranked, Ranked{
			Tracker:     &trackers[i],
			TimeTakenMs: timeTakenMs(&trackers[i], now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Tracker.Score != b.Tracker.Score {
			return a.Tracker.Score > b.Tracker.Score
		}
		if a.TimeTakenMs != b.TimeTakenMs {
			return a.TimeTakenMs < b.TimeTakenMs
		}
		switch {
		case a.Tracker.StartedAt == nil:
			return false
		case b.Tracker.StartedAt == nil:
			return true
		default:
			return a.Tracker.StartedAt.Before(*b.Tracker.StartedAt)
		}
	})

	for i := range ranked {
		if ranked[i].Tracker.Score > 0 {
			ranked[i].Rank = i + 1
		}
	}
	return ranked
}

// WinnersCount resolves the contest's prize policy against the engaged
// player count.
func WinnersCount(c *contest.Contest, engagedPlayers int) int {
	switch c.PrizeSelection {
	case contest.PrizeSelectionTopWinners:
		return c.TopWinnersCount
	case contest.PrizeSelectionRatioBased:
		if c.PrizeRatioDenominator <= 0 {
			return 0
		}
		return c.PrizeRatioNumerator * engagedPlayers / c.PrizeRatioDenominator
	default:
		return 0
	}
}

// MarkWinners flags every ranked tracker whose rank falls within the
// winner count. The bound is inclusive: a TopWinners=3 contest pays ranks
// 1 through 3.
func MarkWinners(ranked []Ranked, winnersCount int) int {
	winners := 0
	for i := range ranked {
		if ranked[i].Rank > 0 && ranked[i].Rank <= winnersCount {
			ranked[i].Winner = true
			winners++
		}
	}
	return winners
}

// Standings builds the denormalized snapshot persisted on the contest.
func Standings(ranked []Ranked, prizeReal, prizeBonus int64) contest.Standings {
	standings := make(contest.Standings, 0, len(ranked))
	for _, r := range ranked {
		s := contest.Standing{
			UserID:      r.Tracker.UserID,
			Rank:        r.Rank,
			Score:       r.Tracker.Score,
			TimeTakenMs: r.TimeTakenMs,
			Winner:      r.Winner,
		}
		if r.Winner {
			s.PrizeReal = prizeReal
			s.PrizeBonus = prizeBonus
		}
		standings = append(standings, s)
	}
	return standings
}
