package telegram

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/engagement"
	"github.com/ykvlv/nudge-bot/internal/mood"
	"github.com/ykvlv/nudge-bot/internal/notify"
	"github.com/ykvlv/nudge-bot/internal/settings"
	"github.com/ykvlv/nudge-bot/internal/store"
)

// fakeBot records outgoing messages.
type fakeBot struct {
	sent      []tgbotapi.MessageConfig
	callbacks int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.callbacks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) last(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1].Text
}

type routerFixture struct {
	router   *Router
	bot      *fakeBot
	repo     *store.SQLiteRepo
	platform *notify.LocalPlatform
	clock    *clock.Manual
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	log := zap.NewNop()
	clk := clock.NewManual(time.Now().UTC().Truncate(time.Second))
	tables := content.Default()
	platform := notify.NewLocalPlatform(repo, nil, clk)
	sched := notify.NewScheduler(platform, repo, tables, clk, log)
	st := settings.New(repo, log, "UTC")
	st.OnChange(func(ctx context.Context, s domain.ReminderSettings) { sched.Reschedule(ctx, s) })
	sel := mood.NewSelector(repo, tables, st, repo, clk, log, time.Hour, rand.New(rand.NewSource(1)))
	eng := engagement.New(repo, clk, log, 0)

	bot := &fakeBot{}
	r := NewRouter(bot, log, Services{
		Settings: st, Scheduler: sched, Selector: sel, Engagement: eng, Content: tables, Clock: clk,
	})
	return &routerFixture{router: r, bot: bot, repo: repo, platform: platform, clock: clk}
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: data, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestStart_PersistsAndSchedules(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.HandleUpdate(ctx, textUpdate(42, "/start"))
	if !strings.Contains(f.bot.last(t), "doomscrolling") {
		t.Fatalf("unexpected start reply %q", f.bot.last(t))
	}
	if _, err := f.repo.GetSettings(ctx, "tg:42"); err != nil {
		t.Fatalf("settings not persisted: %v", err)
	}
	pending, _ := f.platform.Pending(ctx, "tg:42")
	if len(pending) != 4 {
		t.Fatalf("pending = %d, want 4", len(pending))
	}

	f.router.HandleUpdate(ctx, textUpdate(42, "/pause"))
	if pending, _ := f.platform.Pending(ctx, "tg:42"); len(pending) != 0 {
		t.Fatalf("pending after pause = %d", len(pending))
	}
	f.router.HandleUpdate(ctx, textUpdate(42, "/resume"))
	if pending, _ := f.platform.Pending(ctx, "tg:42"); len(pending) != 4 {
		t.Fatalf("pending after resume = %d", len(pending))
	}
}

func TestCustomTimeFlow(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.HandleUpdate(ctx, callbackUpdate(7, "settime:morning:custom"))
	f.router.HandleUpdate(ctx, textUpdate(7, "07:15"))
	if !strings.Contains(f.bot.last(t), "07:15") {
		t.Fatalf("reply = %q", f.bot.last(t))
	}
	s, err := f.repo.GetSettings(ctx, "tg:7")
	if err != nil || s.Morning != (domain.TimeOfDay{Hour: 7, Minute: 15}) {
		t.Fatalf("morning = %+v, %v", s, err)
	}

	f.router.HandleUpdate(ctx, callbackUpdate(7, "settime:night:25:00"))
	if !strings.Contains(f.bot.last(t), "Invalid time") {
		t.Fatalf("reply = %q", f.bot.last(t))
	}
	f.router.HandleUpdate(ctx, callbackUpdate(7, "tz:Asia/Almaty"))
	if s, _ := f.repo.GetSettings(ctx, "tg:7"); s.TZ != "Asia/Almaty" {
		t.Fatalf("tz = %q", s.TZ)
	}
}

func TestMoodActDone(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	pool := content.Default().Pool("Stuck")

	f.router.HandleUpdate(ctx, textUpdate(9, "/mood stuck"))
	reply := f.bot.last(t)
	found := false
	for _, a := range pool {
		if strings.Contains(reply, a) {
			found = true
		}
	}
	if !found || !strings.Contains(reply, "Rolls left today: 2") {
		t.Fatalf("roll reply = %q", reply)
	}

	f.router.HandleUpdate(ctx, callbackUpdate(9, "act"))
	f.router.HandleUpdate(ctx, textUpdate(9, "/done 5 4"))
	if !strings.Contains(f.bot.last(t), "Nice work") {
		t.Fatalf("done reply = %q", f.bot.last(t))
	}

	recs, err := f.repo.ListEngagementSince(ctx, "tg:9", time.Now().Add(-time.Hour))
	if err != nil || len(recs) != 1 {
		t.Fatalf("records = %d, %v", len(recs), err)
	}
	if recs[0].DurationSec == nil || *recs[0].DurationSec != 300 || *recs[0].Rating != 4 {
		t.Fatalf("outcome = %+v", recs[0])
	}

	f.router.HandleUpdate(ctx, textUpdate(9, "/done 3"))
	if !strings.Contains(f.bot.last(t), "Nothing to complete") {
		t.Fatalf("second done reply = %q", f.bot.last(t))
	}
}

func TestRollBudgetReply(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.router.HandleUpdate(ctx, callbackUpdate(5, "mood:Bored"))
	}
	f.router.HandleUpdate(ctx, callbackUpdate(5, "reroll"))
	if !strings.Contains(f.bot.last(t), "used today's rolls") || !strings.Contains(f.bot.last(t), "1h0m0s") {
		t.Fatalf("reply = %q", f.bot.last(t))
	}
}

func TestSendNotification(t *testing.T) {
	f := newRouterFixture(t)
	n := domain.ScheduledNotification{
		UserID: auth.TelegramUserID(11), ReminderType: domain.Night, Title: "T", Body: "B",
	}
	if err := f.router.SendNotification(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if got := f.bot.sent[0]; got.ChatID != 11 || got.Text != "T\n\nB" {
		t.Fatalf("sent %+v", got)
	}

	n.UserID = "api:1"
	if err := f.router.SendNotification(context.Background(), n); err == nil {
		t.Fatal("expected error for non-telegram user")
	}
}

func TestNextCheckIn(t *testing.T) {
	s := domain.DefaultSettings("u", "UTC")
	now := time.Date(2025, 5, 5, 15, 0, 0, 0, time.UTC)
	if got := nextCheckIn(now, s); got != "19:00 (evening)" {
		t.Fatalf("nextCheckIn = %q", got)
	}
	now = time.Date(2025, 5, 5, 22, 0, 0, 0, time.UTC)
	if got := nextCheckIn(now, s); got != "09:00 (morning)" {
		t.Fatalf("nextCheckIn = %q", got)
	}
}

func TestDone_RejectsOutOfRangeMinutes(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.HandleUpdate(ctx, textUpdate(3, "/mood Tired"))
	f.router.HandleUpdate(ctx, callbackUpdate(3, "act"))
	for _, arg := range []string{"99999999999999999", "1441", "-5"} {
		f.router.HandleUpdate(ctx, textUpdate(3, "/done "+arg))
		if !strings.HasPrefix(f.bot.last(t), "Usage: /done") {
			t.Fatalf("/done %s reply = %q", arg, f.bot.last(t))
		}
	}

	recs, err := f.repo.ListEngagementSince(ctx, "tg:3", f.clock.Now().Add(-time.Hour))
	if err != nil || len(recs) != 1 || recs[0].DurationSec != nil {
		t.Fatalf("records = %+v, %v", recs, err)
	}

	f.router.HandleUpdate(ctx, textUpdate(3, "/done 1440"))
	if !strings.Contains(f.bot.last(t), "Nice work") {
		t.Fatalf("reply = %q", f.bot.last(t))
	}
}

func TestStatusAndSavedUseInjectedClock(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 5, 5, 15, 0, 0, 0, time.UTC))

	f.router.HandleUpdate(ctx, textUpdate(8, "/start"))
	f.router.HandleUpdate(ctx, callbackUpdate(8, "tz:UTC"))
	f.router.HandleUpdate(ctx, textUpdate(8, "/status"))
	if !strings.Contains(f.bot.last(t), "Next check-in: 19:00 (evening)") {
		t.Fatalf("status = %q", f.bot.last(t))
	}

	f.router.HandleUpdate(ctx, callbackUpdate(8, "mood:Bored"))
	f.router.HandleUpdate(ctx, callbackUpdate(8, "act"))
	f.router.HandleUpdate(ctx, textUpdate(8, "/done 5"))
	f.router.HandleUpdate(ctx, textUpdate(8, "/saved"))
	reply := f.bot.last(t)
	for _, want := range []string{"5m0s across 1 actions", "Streak: 1 day(s)", "Mood rolls so far: 1"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("saved = %q, missing %q", reply, want)
		}
	}

	// Eight days later the action left the window.
	f.clock.Advance(8 * 24 * time.Hour)
	f.router.HandleUpdate(ctx, textUpdate(8, "/saved"))
	if !strings.Contains(f.bot.last(t), "0s across 0 actions") {
		t.Fatalf("saved = %q", f.bot.last(t))
	}
}
