package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/config"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/store"
)

func TestShutdown_WaitsForWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudge.db")
	repo, err := store.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	a := &App{cfg: config.Config{DBPath: path}, log: zap.NewNop(), httpSrv: &http.Server{}, repo: repo}

	started := make(chan struct{})
	var writeErr error
	a.spawn(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		s := domain.DefaultSettings("u1", "UTC")
		writeErr = repo.UpsertSettings(context.Background(), &s)
	})
	<-started

	if err := a.shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if writeErr != nil {
		t.Fatalf("worker write after shutdown began: %v", writeErr)
	}

	reopened, err := store.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetSettings(context.Background(), "u1"); err != nil {
		t.Fatalf("worker write lost: %v", err)
	}
}

func TestRun_WithoutTokenStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudge.db")
	cfg := config.Config{
		DBPath:            path,
		DefaultTZ:         "UTC",
		HTTPAddr:          "127.0.0.1:0",
		RollCooldown:      time.Hour,
		TimeSavedFallback: 2 * time.Minute,
		DispatchInterval:  time.Second,
	}
	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}
