// Package engagement records responses to nudges and derives time saved
// and streaks from them.
package engagement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/store"
)

// DefaultFallback is the time credited to a record without a duration.
const DefaultFallback = 120 * time.Second

// Logger is the engagement logger.
type Logger struct {
	repo     store.EngagementRepo
	clock    clock.Clock
	log      *zap.Logger
	fallback time.Duration
}

// New creates a Logger.
func New(repo store.EngagementRepo, clk clock.Clock, log *zap.Logger, fallback time.Duration) *Logger {
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	return &Logger{repo: repo, clock: clk, log: log, fallback: fallback}
}

// LogAction appends a record. source is a reminder type when the action
// answers a scheduled nudge, otherwise a mood label.
func (l *Logger) LogAction(ctx context.Context, source, action string) (domain.EngagementRecord, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return domain.EngagementRecord{}, err
	}

	now := l.clock.Now().UTC()
	rec := domain.EngagementRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       strings.TrimSpace(action),
		ResponseType: domain.ResponseMicroAction,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	source = strings.TrimSpace(source)
	if rt, ok := domain.ParseReminderType(strings.ToLower(source)); ok {
		rec.ReminderType = &rt
		if rec.Action == "" {
			rec.ResponseType = domain.ResponseCheckIn
		}
	} else {
		rec.Mood = source
	}

	if err := l.repo.InsertEngagement(ctx, &rec); err != nil {
		l.log.Error("insert engagement failed", zap.Error(err), zap.String("user", userID))
		return domain.EngagementRecord{}, domain.Persistence("insert engagement", err)
	}
	return rec, nil
}

// AttachOutcome adds completion duration and/or rating to one of the
// session user's records.
func (l *Logger) AttachOutcome(ctx context.Context, id string, o domain.Outcome) (domain.EngagementRecord, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return domain.EngagementRecord{}, err
	}
	if err := o.Validate(); err != nil {
		return domain.EngagementRecord{}, err
	}
	rec, err := l.repo.UpdateOutcome(ctx, userID, id, o, l.clock.Now())
	if err != nil {
		return domain.EngagementRecord{}, domain.Persistence("attach outcome", err)
	}
	return *rec, nil
}

// AggregateTimeSaved sums durations of records created at or after since.
func (l *Logger) AggregateTimeSaved(ctx context.Context, since time.Time) (domain.TimeSaved, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return domain.TimeSaved{}, err
	}
	recs, err := l.repo.ListEngagementSince(ctx, userID, since)
	if err != nil {
		return domain.TimeSaved{}, domain.Persistence("list engagement", err)
	}
	return domain.SumTimeSaved(recs, l.fallback), nil
}

// maxStreakDays bounds how far back Streak looks.
const maxStreakDays = 366

// Streak counts consecutive local days with at least one record, ending
// today, or yesterday when nothing was logged yet today.
func (l *Logger) Streak(ctx context.Context, loc *time.Location) (int, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return 0, err
	}
	now := l.clock.Now()
	since := domain.TriggerAt(now, domain.TimeOfDay{}, loc).AddDate(0, 0, -maxStreakDays)
	recs, err := l.repo.ListEngagementSince(ctx, userID, since)
	if err != nil {
		return 0, domain.Persistence("list engagement", err)
	}
	return streak(recs, now, loc), nil
}

func streak(recs []domain.EngagementRecord, now time.Time, loc *time.Location) int {
	days := make(map[string]bool, len(recs))
	for _, r := range recs {
		days[domain.LocalDate(r.CreatedAt, loc)] = true
	}
	day := now.In(loc)
	if !days[day.Format(domain.DateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day.Format(domain.DateLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}
