package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/kv"
)

// Channel is the delivery channel tag put on every reminder.
const Channel = "daily-checkins"

const lastScheduledPrefix = "last_scheduled_date:"

// LastScheduledKey is the kv key of a user's last-scheduled-date marker.
func LastScheduledKey(userID string) string { return lastScheduledPrefix + userID }

// Scheduler programs the four daily check-in notifications of a user.
// Calls are serialized so a cancel always completes before the next batch.
type Scheduler struct {
	platform Platform
	kv       kv.Store
	content  *content.Tables
	clock    clock.Clock
	log      *zap.Logger
	mu       sync.Mutex
}

// NewScheduler creates a Scheduler.
func NewScheduler(p Platform, store kv.Store, tables *content.Tables, clk clock.Clock, log *zap.Logger) *Scheduler {
	return &Scheduler{platform: p, kv: store, content: tables, clock: clk, log: log}
}

// Batch builds the four repeating notifications for s.
func (s *Scheduler) Batch(settings domain.ReminderSettings) []Descriptor {
	out := make([]Descriptor, 0, len(domain.ReminderTypes))
	for _, rt := range domain.ReminderTypes {
		at := settings.TimeFor(rt)
		msg := s.content.Reminder(rt)
		out = append(out, Descriptor{
			ID:           domain.NotificationID(rt),
			ReminderType: rt,
			Title:        msg.Title,
			Body:         msg.Body,
			Trigger:      Trigger{Repeats: true, Hour: at.Hour, Minute: at.Minute},
			TZ:           settings.TZ,
			Channel:      Channel,
		})
	}
	return out
}

// Reschedule cancels the user's four notifications and submits a fresh
// batch. It returns false, without error, when the platform is unsupported,
// permission is denied, reminders are disabled or scheduling failed.
func (s *Scheduler) Reschedule(ctx context.Context, settings domain.ReminderSettings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.With(zap.String("user", settings.UserID))

	if !settings.Enabled {
		if err := s.cancel(ctx, settings.UserID); err != nil && !errors.Is(err, domain.ErrPlatformUnsupported) {
			log.Error("cancel for disabled reminders failed", zap.Error(err))
		}
		return false
	}

	perm, err := s.platform.RequestPermission(ctx, settings.UserID)
	if err != nil {
		log.Error("permission request failed", zap.Error(err))
		return false
	}
	switch perm {
	case PermissionUnsupported:
		log.Debug("notification platform unsupported, skipping schedule")
		return false
	case PermissionDenied:
		log.Warn("notification permission denied")
		return false
	}

	if err := s.cancel(ctx, settings.UserID); err != nil {
		return s.fail(log, "cancel before schedule failed", err)
	}
	batch := s.Batch(settings)
	if err := s.platform.Schedule(ctx, settings.UserID, batch); err != nil {
		return s.fail(log, "schedule failed", err)
	}

	today := s.markScheduled(ctx, settings, log)
	log.Info("daily check-ins scheduled", zap.Int("count", len(batch)), zap.String("date", today))
	return true
}

// markScheduled writes today's local date as the last-scheduled marker.
func (s *Scheduler) markScheduled(ctx context.Context, settings domain.ReminderSettings, log *zap.Logger) string {
	today := domain.LocalDate(s.clock.Now(), settings.Location())
	if err := s.kv.Set(ctx, LastScheduledKey(settings.UserID), today); err != nil {
		log.Warn("persist last scheduled date failed", zap.Error(err))
	}
	return today
}

func (s *Scheduler) fail(log *zap.Logger, msg string, err error) bool {
	if errors.Is(err, domain.ErrPlatformUnsupported) {
		return false
	}
	log.Error(msg, zap.Error(err))
	return false
}

// ShouldReschedule reports whether the marker is missing or names a local
// calendar day (in the settings timezone) other than today.
func (s *Scheduler) ShouldReschedule(ctx context.Context, settings domain.ReminderSettings) bool {
	last, ok, err := s.kv.Get(ctx, LastScheduledKey(settings.UserID))
	if err != nil {
		s.log.Warn("read last scheduled date failed", zap.Error(err), zap.String("user", settings.UserID))
		return true
	}
	if !ok {
		return true
	}
	return last != domain.LocalDate(s.clock.Now(), settings.Location())
}

// EnsureDaily reschedules when the day rolled over since the last schedule.
// A live batch identical to the one settings produce is kept as is, so its
// delivery state survives the rollover; only the marker moves.
func (s *Scheduler) EnsureDaily(ctx context.Context, settings domain.ReminderSettings) bool {
	if !settings.Enabled || !s.ShouldReschedule(ctx, settings) {
		return false
	}
	if s.keepCurrent(ctx, settings) {
		return true
	}
	return s.Reschedule(ctx, settings)
}

// keepCurrent refreshes the marker when the pending batch is up to date.
func (s *Scheduler) keepCurrent(ctx context.Context, settings domain.ReminderSettings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.platform.Pending(ctx, settings.UserID)
	if err != nil || !sameBatch(pending, s.Batch(settings)) {
		return false
	}
	log := s.log.With(zap.String("user", settings.UserID))
	today := s.markScheduled(ctx, settings, log)
	log.Debug("daily check-ins unchanged", zap.String("date", today))
	return true
}

// sameBatch reports whether a and b hold the same descriptors, in any order.
func sameBatch(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[int]Descriptor, len(a))
	for _, d := range a {
		byID[d.ID] = d
	}
	for _, d := range b {
		if got, ok := byID[d.ID]; !ok || got != d {
			return false
		}
	}
	return true
}

// CancelAll cancels the four notification ids. Cancelling nothing, or on an
// unsupported platform, is not an error.
func (s *Scheduler) CancelAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cancel(ctx, userID)
	if errors.Is(err, domain.ErrPlatformUnsupported) {
		return nil
	}
	return err
}

func (s *Scheduler) cancel(ctx context.Context, userID string) error {
	return s.platform.Cancel(ctx, userID, domain.NotificationIDs())
}

// Pending lists the user's live notifications.
func (s *Scheduler) Pending(ctx context.Context, userID string) ([]Descriptor, error) {
	return s.platform.Pending(ctx, userID)
}
