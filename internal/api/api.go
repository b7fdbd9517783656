// Package api exposes the reminder, mood and engagement operations as a JSON
// API under /api/v1.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/engagement"
	"github.com/ykvlv/nudge-bot/internal/mood"
	"github.com/ykvlv/nudge-bot/internal/notify"
	"github.com/ykvlv/nudge-bot/internal/settings"
)

// UserHeader carries the caller's user id.
const UserHeader = "X-User-ID"

// telegramPrefix marks ids owned by the chat surface; the API never acts as them.
const telegramPrefix = "tg:"

const genericErrorText = "something went wrong, reload"

// Handler serves the JSON API.
type Handler struct {
	settings   *settings.Service
	scheduler  *notify.Scheduler
	selector   *mood.Selector
	engagement *engagement.Logger
	log        *zap.Logger
	token      string
	now        func() time.Time
}

// NewHandler creates a Handler. Requests under /api/v1 must carry
// "Authorization: Bearer <token>"; an empty token rejects them all.
func NewHandler(st *settings.Service, sched *notify.Scheduler, sel *mood.Selector,
	eng *engagement.Logger, log *zap.Logger, token string) *Handler {
	return &Handler{
		settings:   st,
		scheduler:  sched,
		selector:   sel,
		engagement: eng,
		log:        log,
		token:      token,
		now:        time.Now,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		h.log.Error("api panic", zap.Any("panic", rec), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": genericErrorText})
	}))

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := router.Group("/api/v1", h.requireUser)
	{
		api.GET("/settings", h.GetSettings)
		api.PATCH("/settings", h.PatchSettings)
		api.POST("/reschedule", h.Reschedule)
		api.GET("/notifications", h.PendingNotifications)
		api.DELETE("/notifications", h.CancelNotifications)
		api.POST("/roll", h.Roll)
		api.GET("/roll/budget", h.RollBudget)
		api.POST("/actions", h.LogAction)
		api.PATCH("/actions/:id", h.AttachOutcome)
		api.GET("/time-saved", h.TimeSaved)
	}
	return router
}

// requireUser checks the bearer token and binds the X-User-ID header to
// the request context.
func (h *Handler) requireUser(c *gin.Context) {
	if !h.authorized(c.GetHeader("Authorization")) {
		h.fail(c, domain.ErrNotAuthenticated)
		c.Abort()
		return
	}
	ctx := auth.WithUser(c.Request.Context(), c.GetHeader(UserHeader))
	userID, err := auth.UserID(ctx)
	if err == nil && strings.HasPrefix(userID, telegramPrefix) {
		err = domain.ErrNotAuthenticated
	}
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (h *Handler) authorized(header string) bool {
	if h.token == "" {
		return false
	}
	got, ok := strings.CutPrefix(header, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// fail maps a domain error to a status code and JSON body.
func (h *Handler) fail(c *gin.Context, err error) {
	var rb *domain.RollBudgetExhaustedError
	switch {
	case errors.As(err, &rb):
		secs := int(math.Ceil(rb.Remaining(h.now()).Seconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "roll budget exhausted",
			"retry_after_seconds": secs,
		})
	case errors.Is(err, domain.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidTime),
		errors.Is(err, domain.ErrInvalidTZ),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		h.log.Error("persistence failure", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": genericErrorText})
	default:
		h.log.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericErrorText})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
}

func ctx(c *gin.Context) context.Context { return c.Request.Context() }

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(ctx(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) PatchSettings(c *gin.Context) {
	var p domain.SettingsPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.settings.Upsert(ctx(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Reschedule replaces the user's four notifications from current settings.
func (h *Handler) Reschedule(c *gin.Context) {
	s, err := h.settings.Get(ctx(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok := h.scheduler.Reschedule(ctx(c), s)
	c.JSON(http.StatusOK, gin.H{"scheduled": ok})
}

func (h *Handler) PendingNotifications(c *gin.Context) {
	userID, _ := auth.UserID(ctx(c))
	pending, err := h.scheduler.Pending(ctx(c), userID)
	if err != nil && !errors.Is(err, domain.ErrPlatformUnsupported) {
		h.fail(c, err)
		return
	}
	if pending == nil {
		pending = []notify.Descriptor{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": pending})
}

func (h *Handler) CancelNotifications(c *gin.Context) {
	userID, _ := auth.UserID(ctx(c))
	if err := h.scheduler.CancelAll(ctx(c), userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rollRequest struct {
	Mood string `json:"mood" binding:"required"`
}

func (h *Handler) Roll(c *gin.Context) {
	var req rollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.selector.Roll(ctx(c), req.Mood)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RollBudget(c *gin.Context) {
	b, err := h.selector.Budget(ctx(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type actionRequest struct {
	// Source is a mood label or a reminder type.
	Source string `json:"source" binding:"required"`
	Action string `json:"action"`
}

func (h *Handler) LogAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.engagement.LogAction(ctx(c), req.Source, req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) AttachOutcome(c *gin.Context) {
	var o domain.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.engagement.AttachOutcome(ctx(c), c.Param("id"), o)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// TimeSaved aggregates from the start of ?since (YYYY-MM-DD, user's tz).
// Without since, all records count.
func (h *Handler) TimeSaved(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		s, err := h.settings.Get(ctx(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		since, err = domain.ParseLocalDate(raw, s.Location())
		if err != nil {
			badRequest(c, err)
			return
		}
	}
	ts, err := h.engagement.AggregateTimeSaved(ctx(c), since)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}
