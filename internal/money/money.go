package money

import (
	"errors"
	"fmt"
)

var ErrInsufficient = errors.New("insufficient money")

// Money holds amounts in paise. Real and Bonus are independent balances;
// Withdrawable tracks how much of Real is eligible for withdrawal and is
// never larger than Real.
type Money struct {
	Real         int64 `json:"real"`
	Bonus        int64 `json:"bonus"`
	Withdrawable int64 `json:"withdrawable"`
}

func New(real, bonus int64) Money {
	return Money{Real: real, Bonus: bonus}
}

func NewWithdrawable(real, bonus, withdrawable int64) Money {
	return Money{Real: real, Bonus: bonus, Withdrawable: withdrawable}
}

func Zero() Money {
	return Money{}
}

func (m Money) IsZero() bool {
	return m.Real == 0 && m.Bonus == 0
}

// Total is the spendable amount, real plus bonus.
func (m Money) Total() int64 {
	return m.Real + m.Bonus
}

func (m Money) Add(other Money) Money {
	return Money{
		Real:         m.Real + other.Real,
		Bonus:        m.Bonus + other.Bonus,
		Withdrawable: m.Withdrawable + other.Withdrawable,
	}
}

// Sub subtracts other from m. It fails with ErrInsufficient unless both the
// real and the bonus component are sufficient; withdrawable is floored at
// zero since it is derived bookkeeping, not a spendable balance.
func (m Money) Sub(other Money) (Money, error) {
	if m.Real < other.Real || m.Bonus < other.Bonus {
		return Money{}, ErrInsufficient
	}
	w := m.Withdrawable - other.Withdrawable
	if w < 0 {
		w = 0
	}
	return Money{
		Real:         m.Real - other.Real,
		Bonus:        m.Bonus - other.Bonus,
		Withdrawable: w,
	}, nil
}

// Equal compares the real and bonus components only. Withdrawable is
// metadata about withdrawal eligibility, not part of a money value's
// identity.
func (m Money) Equal(other Money) bool {
	return m.Real == other.Real && m.Bonus == other.Bonus
}

// Covers reports whether m can pay other on both spendable components.
func (m Money) Covers(other Money) bool {
	return m.Real >= other.Real && m.Bonus >= other.Bonus
}

func (m Money) Valid() bool {
	return m.Real >= 0 && m.Bonus >= 0 && m.Withdrawable >= 0 && m.Withdrawable <= m.Real
}

func (m Money) String() string {
	return fmt.Sprintf("Money{real: %d, bonus: %d, withdrawable: %d}", m.Real, m.Bonus, m.Withdrawable)
}
