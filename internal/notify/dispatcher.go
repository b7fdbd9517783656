package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/store"
)

// Sender delivers a fired notification to its user.
// telegram.Router implements this.
type Sender interface {
	SendNotification(ctx context.Context, n domain.ScheduledNotification) error
}

// MaxLateness is how late a trigger may still be delivered; older ones are
// skipped until the next day.
const MaxLateness = time.Hour

// Dispatcher periodically runs the day-rollover check and fires due
// notifications of the LocalPlatform.
type Dispatcher struct {
	settings  store.SettingsRepo
	platform  *LocalPlatform
	scheduler *Scheduler
	sender    Sender
	clock     clock.Clock
	log       *zap.Logger
	interval  time.Duration
}

// NewDispatcher creates a Dispatcher polling every interval.
func NewDispatcher(settings store.SettingsRepo, platform *LocalPlatform, scheduler *Scheduler,
	sender Sender, clk clock.Clock, log *zap.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Dispatcher{
		settings:  settings,
		platform:  platform,
		scheduler: scheduler,
		sender:    sender,
		clock:     clk,
		log:       log,
		interval:  interval,
	}
}

// Run starts the loop until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick performs one cycle: day-rollover reschedules, then delivery.
func (d *Dispatcher) Tick(ctx context.Context) {
	all, err := d.settings.ListSettings(ctx)
	if err != nil {
		d.log.Error("ListSettings failed", zap.Error(err))
	}
	for _, s := range all {
		d.scheduler.EnsureDaily(ctx, s)
	}

	now := d.clock.Now()
	due, err := d.platform.Due(ctx, now)
	if err != nil {
		d.log.Error("list due notifications failed", zap.Error(err))
		return
	}
	for _, n := range due {
		trigger := domain.TriggerAt(now, n.At, n.Location())
		if now.Sub(trigger) > MaxLateness {
			d.log.Debug("skipping stale notification",
				zap.String("user", n.UserID), zap.Int("id", n.ID), zap.Time("trigger", trigger))
		} else if err := d.sender.SendNotification(ctx, n); err != nil {
			d.log.Error("send failed", zap.Error(err), zap.String("user", n.UserID), zap.Int("id", n.ID))
			continue
		}
		if err := d.platform.MarkFired(ctx, n, now); err != nil {
			d.log.Error("MarkFired failed", zap.Error(err), zap.String("user", n.UserID), zap.Int("id", n.ID))
		}
	}
}
