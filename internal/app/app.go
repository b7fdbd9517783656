package app

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/api"
	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/backup"
	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/config"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/engagement"
	"github.com/ykvlv/nudge-bot/internal/kv"
	"github.com/ykvlv/nudge-bot/internal/mood"
	"github.com/ykvlv/nudge-bot/internal/notify"
	"github.com/ykvlv/nudge-bot/internal/settings"
	"github.com/ykvlv/nudge-bot/internal/store"
	"github.com/ykvlv/nudge-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI // nil: notification platform unsupported
	backup  *backup.Backup   // nil: backups disabled
	httpSrv *http.Server
	repo    *store.SQLiteRepo
	redis   *kv.Redis // nil: kv lives in SQLite
	workers sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return nil, err
		}
		bot.Debug = false
		a.bot = bot
	} else {
		log.Warn("BOT_TOKEN is empty; reminders will not be scheduled")
	}

	if cfg.BackupBucket != "" {
		b, err := backup.NewFromEnv(ctx, cfg.BackupBucket, cfg.BackupKey, log)
		if err != nil {
			return nil, err
		}
		a.backup = b
	}

	return a, nil
}

// Run serves until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting nudge-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Bool("telegram", a.bot != nil),
		zap.Bool("redis", a.cfg.RedisAddr != ""),
	)

	if a.backup != nil {
		if err := a.backup.Restore(ctx, a.cfg.DBPath); err != nil {
			a.log.Error("restore backup failed", zap.Error(err))
			return err
		}
	}

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	if a.cfg.RedisAddr != "" {
		r, err := kv.NewRedis(ctx, kv.RedisOptions{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			a.log.Error("connect redis failed", zap.Error(err))
			_ = repo.Close()
			return err
		}
		a.redis = r
	}
	var kvStore kv.Store = repo
	if a.redis != nil {
		kvStore = a.redis
	}

	clk := clock.Real{}
	tables := content.Default()

	var platform notify.Platform = notify.Unsupported{}
	var local *notify.LocalPlatform
	if a.bot != nil {
		local = notify.NewLocalPlatform(repo, func(userID string) bool {
			_, ok := auth.TelegramChatID(userID)
			return ok
		}, clk)
		platform = local
	}

	sched := notify.NewScheduler(platform, kvStore, tables, clk, a.log)
	st := settings.New(repo, a.log, a.cfg.DefaultTZ)
	st.OnChange(func(ctx context.Context, s domain.ReminderSettings) { sched.Reschedule(ctx, s) })
	sel := mood.NewSelector(kvStore, tables, st, repo, clk, a.log, a.cfg.RollCooldown,
		rand.New(rand.NewSource(time.Now().UnixNano())))
	eng := engagement.New(repo, clk, a.log, a.cfg.TimeSavedFallback)

	if a.cfg.APIToken == "" {
		a.log.Warn("API_TOKEN is empty; /api/v1 rejects every request")
	}
	handler := api.NewHandler(st, sched, sel, eng, a.log, a.cfg.APIToken)
	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	if a.bot != nil {
		router := telegram.NewRouter(a.bot, a.log, telegram.Services{
			Settings:   st,
			Scheduler:  sched,
			Selector:   sel,
			Engagement: eng,
			Content:    tables,
			Clock:      clk,
		})
		dispatcher := notify.NewDispatcher(repo, local, sched, router, clk, a.log, a.cfg.DispatchInterval)
		a.spawn(func() { dispatcher.Run(ctx) })

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh := a.bot.GetUpdatesChan(u)
		a.spawn(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case upd, ok := <-updCh:
					if !ok {
						return
					}
					router.HandleUpdate(ctx, upd)
				}
			}
		})
	}

	<-ctx.Done()
	a.log.Info("shutdown requested")
	if a.bot != nil {
		a.bot.StopReceivingUpdates()
	}
	return a.shutdown()
}

// spawn runs fn in a goroutine that shutdown waits for.
func (a *App) spawn(fn func()) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn()
	}()
}

// shutdown stops the HTTP server, flushes the database and uploads a backup.
func (a *App) shutdown() error {
	// Create a short-lived shutdown context and cancel it immediately after use.
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	// The dispatcher and update loop must be done with the stores first.
	a.workers.Wait()

	if a.redis != nil {
		_ = a.redis.Close()
	}

	if err := a.repo.Checkpoint(context.Background()); err != nil {
		a.log.Warn("sqlite checkpoint failed", zap.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("sqlite close failed", zap.Error(err))
	}

	if a.backup != nil {
		upCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.backup.Upload(upCtx, a.cfg.DBPath); err != nil {
			a.log.Error("upload backup failed", zap.Error(err))
			return err
		}
	}
	return nil
}
