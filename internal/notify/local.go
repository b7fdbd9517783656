package notify

import (
	"context"
	"time"

	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/store"
)

// ReachableFunc reports whether a user has a delivery channel.
type ReachableFunc func(userID string) bool

// LocalPlatform keeps scheduled notifications in the database; the
// Dispatcher fires them.
type LocalPlatform struct {
	repo      store.NotificationRepo
	reachable ReachableFunc
	clock     clock.Clock
}

// NewLocalPlatform creates a LocalPlatform. A nil reachable treats every
// user as reachable.
func NewLocalPlatform(repo store.NotificationRepo, reachable ReachableFunc, clk clock.Clock) *LocalPlatform {
	if reachable == nil {
		reachable = func(string) bool { return true }
	}
	return &LocalPlatform{repo: repo, reachable: reachable, clock: clk}
}

func (p *LocalPlatform) RequestPermission(_ context.Context, userID string) (Permission, error) {
	if !p.reachable(userID) {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (p *LocalPlatform) Schedule(ctx context.Context, userID string, batch []Descriptor) error {
	now := p.clock.Now()
	ns := make([]domain.ScheduledNotification, 0, len(batch))
	for _, d := range batch {
		ns = append(ns, domain.ScheduledNotification{
			ID:           d.ID,
			UserID:       userID,
			ReminderType: d.ReminderType,
			Title:        d.Title,
			Body:         d.Body,
			At:           domain.TimeOfDay{Hour: d.Trigger.Hour, Minute: d.Trigger.Minute},
			TZ:           d.TZ,
			Channel:      d.Channel,
			CreatedAt:    now,
		})
	}
	return p.repo.PutNotifications(ctx, ns)
}

func (p *LocalPlatform) Cancel(ctx context.Context, userID string, ids []int) error {
	return p.repo.DeleteNotifications(ctx, userID, ids)
}

func (p *LocalPlatform) Pending(ctx context.Context, userID string) ([]Descriptor, error) {
	ns, err := p.repo.ListNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(ns))
	for _, n := range ns {
		out = append(out, Descriptor{
			ID:           n.ID,
			ReminderType: n.ReminderType,
			Title:        n.Title,
			Body:         n.Body,
			Trigger:      Trigger{Repeats: true, Hour: n.At.Hour, Minute: n.At.Minute},
			TZ:           n.TZ,
			Channel:      n.Channel,
		})
	}
	return out, nil
}

// Due returns notifications whose trigger passed today (local to each
// notification) at or after they were scheduled and that have not fired since.
func (p *LocalPlatform) Due(ctx context.Context, now time.Time) ([]domain.ScheduledNotification, error) {
	all, err := p.repo.ListAllNotifications(ctx)
	if err != nil {
		return nil, err
	}
	var due []domain.ScheduledNotification
	for _, n := range all {
		loc := n.Location()
		if !domain.DueToday(now, n.At, loc, n.LastFiredAt) {
			continue
		}
		// Scheduled after today's trigger: first fire is tomorrow.
		if domain.TriggerAt(now, n.At, loc).Before(n.CreatedAt) {
			continue
		}
		due = append(due, n)
	}
	return due, nil
}

// MarkFired records a delivery.
func (p *LocalPlatform) MarkFired(ctx context.Context, n domain.ScheduledNotification, at time.Time) error {
	return p.repo.MarkFired(ctx, n.UserID, n.ID, at)
}
