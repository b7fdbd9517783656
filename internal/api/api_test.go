package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/engagement"
	"github.com/ykvlv/nudge-bot/internal/mood"
	"github.com/ykvlv/nudge-bot/internal/notify"
	"github.com/ykvlv/nudge-bot/internal/settings"
	"github.com/ykvlv/nudge-bot/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

const testToken = "s3cret"

func newTestServer(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	log := zap.NewNop()
	clk := clock.Real{}
	tables := content.Default()
	sched := notify.NewScheduler(notify.NewLocalPlatform(repo, nil, clk), repo, tables, clk, log)
	st := settings.New(repo, log, "UTC")
	st.OnChange(func(ctx context.Context, s domain.ReminderSettings) { sched.Reschedule(ctx, s) })
	sel := mood.NewSelector(repo, tables, st, repo, clk, log, time.Hour, rand.New(rand.NewSource(3)))
	eng := engagement.New(repo, clk, log, 2*time.Minute)

	h := NewHandler(st, sched, sel, eng, log, testToken)
	return h.Router(), h
}

func do(t *testing.T, srv http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := do(t, srv, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/api/v1/settings", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", w.Code)
	}
}

func TestRejectsMissingTokenAndTelegramIDs(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"night":"03:00","enabled":false}`

	for name, token := range map[string]string{"none": "", "wrong": "Bearer nope", "not bearer": testToken} {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserHeader, "u1")
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: code = %d, want 401", name, w.Code)
		}
	}

	if w := do(t, srv, http.MethodPatch, "/api/v1/settings", "tg:424242", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("telegram id: code = %d, want 401", w.Code)
	}
	w := do(t, srv, http.MethodGet, "/api/v1/settings", "u1", "")
	var s domain.ReminderSettings
	decode(t, w, &s)
	if !s.Enabled || s.Night != domain.DefaultNight {
		t.Fatalf("rejected patch was applied: %+v", s)
	}
}

func TestEmptyTokenDisablesAPI(t *testing.T) {
	_, h := newTestServer(t)
	h.token = ""
	srv := h.Router()
	if w := do(t, srv, http.MethodGet, "/api/v1/settings", "u1", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz code = %d", w.Code)
	}
}

func TestSettings_GetDefaultsThenPatch(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/settings", "u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get code = %d", w.Code)
	}
	var s domain.ReminderSettings
	decode(t, w, &s)
	if s.Morning != domain.DefaultMorning || !s.Enabled || s.TZ != "UTC" {
		t.Fatalf("defaults = %+v", s)
	}

	w = do(t, srv, http.MethodPatch, "/api/v1/settings", "u1", `{"morning":"07:30","timezone":"Europe/Moscow"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch code = %d body %s", w.Code, w.Body)
	}
	decode(t, w, &s)
	if s.Morning != (domain.TimeOfDay{Hour: 7, Minute: 30}) || s.Night != domain.DefaultNight || s.TZ != "Europe/Moscow" {
		t.Fatalf("patched = %+v", s)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/notifications", "u1", "")
	var pending struct {
		Notifications []notify.Descriptor `json:"notifications"`
	}
	decode(t, w, &pending)
	if len(pending.Notifications) != 4 {
		t.Fatalf("pending = %d, want 4", len(pending.Notifications))
	}

	for _, body := range []string{`{"night":"24:00"}`, `{"timezone":"Mars/Base"}`, `{"enabled":`} {
		if w := do(t, srv, http.MethodPatch, "/api/v1/settings", "u1", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: code = %d, want 400", body, w.Code)
		}
	}
}

func TestRescheduleAndCancel(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/reschedule", "u2", "")
	var out struct {
		Scheduled bool `json:"scheduled"`
	}
	decode(t, w, &out)
	if !out.Scheduled {
		t.Fatal("expected scheduled=true")
	}

	if w := do(t, srv, http.MethodDelete, "/api/v1/notifications", "u2", ""); w.Code != http.StatusNoContent {
		t.Fatalf("cancel code = %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/api/v1/notifications", "u2", ""); w.Code != http.StatusNoContent {
		t.Fatalf("second cancel code = %d", w.Code)
	}
}

func TestRoll_BudgetAnd429(t *testing.T) {
	srv, _ := newTestServer(t)
	pool := content.Default().Pool("Stuck")

	for i := 2; i >= 0; i-- {
		w := do(t, srv, http.MethodPost, "/api/v1/roll", "u3", `{"mood":"Stuck"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("roll code = %d", w.Code)
		}
		var res mood.Result
		decode(t, w, &res)
		if res.Remaining != i {
			t.Fatalf("remaining = %d, want %d", res.Remaining, i)
		}
		found := false
		for _, a := range pool {
			found = found || a == res.Action
		}
		if !found {
			t.Fatalf("action %q not in pool", res.Action)
		}
	}

	w := do(t, srv, http.MethodPost, "/api/v1/roll", "u3", `{"mood":"Stuck"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d, want 429", w.Code)
	}
	var body struct {
		RetryAfter int `json:"retry_after_seconds"`
	}
	decode(t, w, &body)
	if body.RetryAfter <= 0 || body.RetryAfter > 3600 {
		t.Fatalf("retry_after_seconds = %d", body.RetryAfter)
	}

	if w := do(t, srv, http.MethodPost, "/api/v1/roll", "u3", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing mood code = %d", w.Code)
	}
}

func TestRoll_UnknownMoodFallback(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/v1/roll", "u4", `{"mood":"Sleepy"}`)
	var res mood.Result
	decode(t, w, &res)
	if !res.Fallback || res.Action != content.Default().FallbackAction {
		t.Fatalf("result = %+v", res)
	}
}

func TestActionsAndTimeSaved(t *testing.T) {
	srv, _ := newTestServer(t)

	var ids []string
	for _, body := range []string{
		`{"source":"Bored","action":"Stretch"}`,
		`{"source":"Tired","action":"Drink water"}`,
		`{"source":"evening"}`,
	} {
		w := do(t, srv, http.MethodPost, "/api/v1/actions", "u5", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("log code = %d", w.Code)
		}
		var rec domain.EngagementRecord
		decode(t, w, &rec)
		ids = append(ids, rec.ID)
	}

	w := do(t, srv, http.MethodPatch, "/api/v1/actions/"+ids[0], "u5", `{"duration_sec":300,"rating":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("attach code = %d body %s", w.Code, w.Body)
	}
	w = do(t, srv, http.MethodPatch, "/api/v1/actions/"+ids[1], "u5", `{"duration_sec":120}`)
	if w.Code != http.StatusOK {
		t.Fatalf("attach code = %d", w.Code)
	}

	// 300 + 120 + fallback 120
	w = do(t, srv, http.MethodGet, "/api/v1/time-saved?since="+time.Now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout), "u5", "")
	var ts domain.TimeSaved
	decode(t, w, &ts)
	if ts.TotalSeconds != 540 || ts.Count != 3 {
		t.Fatalf("time saved = %+v, want 540/3", ts)
	}

	if w := do(t, srv, http.MethodPatch, "/api/v1/actions/"+ids[0], "other", `{"rating":3}`); w.Code != http.StatusNotFound {
		t.Fatalf("foreign attach code = %d, want 404", w.Code)
	}
	if w := do(t, srv, http.MethodPatch, "/api/v1/actions/nope", "u5", `{"rating":3}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing attach code = %d, want 404", w.Code)
	}
	if w := do(t, srv, http.MethodPatch, "/api/v1/actions/"+ids[0], "u5", `{"rating":9}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad rating code = %d, want 400", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/time-saved?since=yesterday", "u5", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad since code = %d, want 400", w.Code)
	}
}

func TestRecoveryReturnsGenericBody(t *testing.T) {
	_, h := newTestServer(t)
	r := h.Router()
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), genericErrorText) {
		t.Fatalf("code = %d body %s", w.Code, w.Body)
	}
}
