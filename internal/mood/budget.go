// Package mood picks a suggested micro-action for a mood under a daily
// roll budget.
package mood

import (
	"time"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

// MaxRolls is the daily roll allotment.
const MaxRolls = 3

// Budget is the persisted roll-budget state of one user.
//
//	Available(n) --roll--> Available(n-1)        n > 1
//	Available(1) --roll--> Exhausted(now+cooldown)
//	Exhausted(t) --now >= t--> Available(3)
//	any          --new local day--> Available(3)
type Budget struct {
	Date          string     `json:"date"`
	Remaining     int        `json:"remaining"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// Exhausted reports whether no rolls are left.
func (b Budget) Exhausted() bool { return b.Remaining <= 0 }

// Refresh applies day rollover and cooldown expiry at now.
func Refresh(b Budget, now time.Time, loc *time.Location) Budget {
	today := domain.LocalDate(now, loc)
	if b.Date != today {
		return Budget{Date: today, Remaining: MaxRolls}
	}
	if b.Remaining > MaxRolls {
		b.Remaining = MaxRolls
	}
	if b.Remaining <= 0 {
		if b.CooldownUntil == nil || !now.Before(*b.CooldownUntil) {
			return Budget{Date: today, Remaining: MaxRolls}
		}
		b.Remaining = 0
	}
	return b
}

// Consume spends one roll, returning the new budget or a
// *domain.RollBudgetExhaustedError while the cooldown is active.
func Consume(b Budget, now time.Time, loc *time.Location, cooldown time.Duration) (Budget, error) {
	b = Refresh(b, now, loc)
	if b.Exhausted() {
		return b, &domain.RollBudgetExhaustedError{Until: *b.CooldownUntil}
	}
	b.Remaining--
	b.CooldownUntil = nil
	if b.Remaining == 0 {
		until := now.Add(cooldown)
		b.CooldownUntil = &until
	}
	return b, nil
}
