package play

import (
	"errors"

	"trailsbuddy/internal/contest"
)

var ErrAllAnswered = errors.New("all questions answered")

// PickNext selects the next unanswered question: scan forward cyclically
// from start through the stable active-question ordering, skipping answered
// ones. The random start spreads players across the question set without a
// persisted per-user ordering; it is deliberately not a uniform draw over
// the remaining questions.
func PickNext(questions []contest.Question, answered map[int]bool, start int) (*contest.Question, error) {
	n := len(questions)
	if n == 0 {
		return nil, ErrAllAnswered
	}
	if start < 0 {
		start = 0
	}
	for i := 0; i < n; i++ {
		q := &questions[(start+i)%n]
		if !answered[q.QuestionNo] {
			return q, nil
		}
	}
	return nil, ErrAllAnswered
}
