package mood

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/kv"
)

// PoolCap bounds the reachable prefix of any action pool.
const PoolCap = 6

// DefaultCooldown applies when a non-positive cooldown is configured.
const DefaultCooldown = 3 * time.Hour

const budgetPrefix = "roll_budget:"

// BudgetKey is the kv key of a user's roll budget.
func BudgetKey(userID string) string { return budgetPrefix + userID }

// SettingsReader provides the session user's settings (for the timezone).
type SettingsReader interface {
	Get(ctx context.Context) (domain.ReminderSettings, error)
}

// RollLog records each successful roll.
type RollLog interface {
	InsertMoodRoll(ctx context.Context, r *domain.MoodRoll) error
	CountMoodRolls(ctx context.Context, userID string) (int, error)
}

// Result is the outcome of a roll.
type Result struct {
	Mood          string `json:"mood"`
	Action        string `json:"action"`
	Remaining     int    `json:"remaining"`
	Fallback      bool   `json:"fallback"`
	Encouragement string `json:"encouragement,omitempty"`
}

// Selector draws mood actions. Rolls are processed one at a time.
type Selector struct {
	kv       kv.Store
	tables   *content.Tables
	settings SettingsReader
	rolls    RollLog
	clock    clock.Clock
	log      *zap.Logger
	cooldown time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector. rng must not be shared with other users.
func NewSelector(store kv.Store, tables *content.Tables, settings SettingsReader, rolls RollLog,
	clk clock.Clock, log *zap.Logger, cooldown time.Duration, rng *rand.Rand) *Selector {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Selector{
		kv:       store,
		tables:   tables,
		settings: settings,
		rolls:    rolls,
		clock:    clk,
		log:      log,
		cooldown: cooldown,
		rng:      rng,
	}
}

// Pick returns a uniformly random entry among the first min(PoolCap, len)
// of pool, or fallback when pool is empty.
func Pick(rng *rand.Rand, pool []string, fallback string) (string, bool) {
	n := len(pool)
	if n == 0 {
		return fallback, true
	}
	if n > PoolCap {
		n = PoolCap
	}
	return pool[rng.Intn(n)], false
}

// Roll spends one roll of the session user's budget and returns an action
// for label. Unknown moods get the fallback action and still spend a roll.
func (s *Selector) Roll(ctx context.Context, label string) (Result, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return Result{}, err
	}
	loc := s.location(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	b, err := s.load(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	b, err = Consume(b, now, loc, s.cooldown)
	if err != nil {
		return Result{Remaining: 0}, err
	}
	if err := s.save(ctx, userID, b); err != nil {
		return Result{}, err
	}

	res := Result{Mood: label, Remaining: b.Remaining}
	if m, ok := s.tables.LookupMood(label); ok {
		res.Mood = m.Label
	}
	res.Action, res.Fallback = Pick(s.rng, s.tables.Pool(label), s.tables.FallbackAction)
	res.Encouragement = s.tables.RandomEncouragement(s.rng)

	if s.rolls != nil {
		if err := s.rolls.InsertMoodRoll(ctx, &domain.MoodRoll{
			ID:        uuid.New().String(),
			UserID:    userID,
			Mood:      res.Mood,
			Action:    res.Action,
			Remaining: res.Remaining,
			CreatedAt: now,
		}); err != nil {
			s.log.Warn("log mood roll failed", zap.Error(err), zap.String("user", userID))
		}
	}
	return res, nil
}

// Budget returns the session user's current budget without spending.
func (s *Selector) Budget(ctx context.Context) (Budget, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return Budget{}, err
	}
	loc := s.location(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.load(ctx, userID)
	if err != nil {
		return Budget{}, err
	}
	return Refresh(b, s.clock.Now(), loc), nil
}

// RollCount returns how many rolls the session user has taken in total.
func (s *Selector) RollCount(ctx context.Context) (int, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return 0, err
	}
	if s.rolls == nil {
		return 0, nil
	}
	n, err := s.rolls.CountMoodRolls(ctx, userID)
	if err != nil {
		return 0, domain.Persistence("count mood rolls", err)
	}
	return n, nil
}

// Encouragement returns a random encouragement line.
func (s *Selector) Encouragement() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables.RandomEncouragement(s.rng)
}

// Mantra returns a random mantra.
func (s *Selector) Mantra() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables.RandomMantra(s.rng)
}

func (s *Selector) location(ctx context.Context) *time.Location {
	if s.settings == nil {
		return time.UTC
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			s.log.Warn("settings unavailable, using UTC day boundary", zap.Error(err))
		}
		return time.UTC
	}
	return st.Location()
}

func (s *Selector) load(ctx context.Context, userID string) (Budget, error) {
	raw, ok, err := s.kv.Get(ctx, BudgetKey(userID))
	if err != nil {
		return Budget{}, domain.Persistence("load roll budget", err)
	}
	var b Budget
	if !ok {
		return b, nil
	}
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		// A corrupt budget starts over; the next Refresh resets it.
		s.log.Warn("discarding corrupt roll budget", zap.Error(err), zap.String("user", userID))
		return Budget{}, nil
	}
	return b, nil
}

func (s *Selector) save(ctx context.Context, userID string, b Budget) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, BudgetKey(userID), string(raw)); err != nil {
		return domain.Persistence("save roll budget", err)
	}
	return nil
}
