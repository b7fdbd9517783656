package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

// SQLiteRepo implements Repo and kv.Store using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Checkpoint flushes the WAL into the main database file so it can be copied.
func (r *SQLiteRepo) Checkpoint(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
	return err
}

// --- Reminder settings ---

// UpsertSettings inserts or updates the settings row of s.UserID.
func (r *SQLiteRepo) UpsertSettings(ctx context.Context, s *domain.ReminderSettings) error {
	if s == nil {
		return errors.New("nil settings")
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder_settings (
			user_id, morning_m, afternoon_m, evening_m, night_m,
			enabled, tz, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			morning_m   = excluded.morning_m,
			afternoon_m = excluded.afternoon_m,
			evening_m   = excluded.evening_m,
			night_m     = excluded.night_m,
			enabled     = excluded.enabled,
			tz          = excluded.tz,
			updated_at  = excluded.updated_at`,
		s.UserID, s.Morning.Minutes(), s.Afternoon.Minutes(), s.Evening.Minutes(), s.Night.Minutes(),
		boolToInt(s.Enabled), s.TZ, s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
	)
	return err
}

const settingsColumns = `user_id, morning_m, afternoon_m, evening_m, night_m,
	enabled, tz, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanSettings validates raw minute values while reading a row.
func scanSettings(sc scanner) (*domain.ReminderSettings, error) {
	var (
		s                domain.ReminderSettings
		mins             [4]int
		enabledInt       int
		created, updated int64
	)
	if err := sc.Scan(&s.UserID, &mins[0], &mins[1], &mins[2], &mins[3],
		&enabledInt, &s.TZ, &created, &updated); err != nil {
		return nil, err
	}
	times := make([]domain.TimeOfDay, 4)
	for i, m := range mins {
		t := domain.TimeOfDay{Hour: m / 60, Minute: m % 60}
		if m < 0 || !t.Valid() {
			return nil, fmt.Errorf("%w: stored minute value %d", domain.ErrInvalidTime, m)
		}
		times[i] = t
	}
	s.Morning, s.Afternoon, s.Evening, s.Night = times[0], times[1], times[2], times[3]
	s.Enabled = enabledInt != 0
	s.CreatedAt = unixUTC(created)
	s.UpdatedAt = unixUTC(updated)
	return &s, nil
}

// GetSettings returns a user's settings or domain.ErrNotFound.
func (r *SQLiteRepo) GetSettings(ctx context.Context, userID string) (*domain.ReminderSettings, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM reminder_settings WHERE user_id = ?`, userID)
	s, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

// ListSettings returns every stored settings row ordered by user.
func (r *SQLiteRepo) ListSettings(ctx context.Context) ([]domain.ReminderSettings, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settingsColumns+` FROM reminder_settings ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ReminderSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// --- Scheduled notifications ---

// PutNotifications stores ns in one transaction; an existing row with the
// same (user, id) is replaced.
func (r *SQLiteRepo) PutNotifications(ctx context.Context, ns []domain.ScheduledNotification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_notifications (
			user_id, id, reminder_type, title, body, at_m, tz, channel, created_at, last_fired_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(user_id, id) DO UPDATE SET
			reminder_type = excluded.reminder_type,
			title         = excluded.title,
			body          = excluded.body,
			at_m          = excluded.at_m,
			tz            = excluded.tz,
			channel       = excluded.channel,
			created_at    = excluded.created_at,
			last_fired_at = NULL`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range ns {
		created := n.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, n.UserID, n.ID, string(n.ReminderType), n.Title, n.Body,
			n.At.Minutes(), n.TZ, n.Channel, created.UTC().Unix()); err != nil {
			return fmt.Errorf("insert notification %d: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteNotifications removes the given ids of a user; missing ids are ignored.
func (r *SQLiteRepo) DeleteNotifications(ctx context.Context, userID string, ids []int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM scheduled_notifications WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const notificationColumns = `user_id, id, reminder_type, title, body, at_m, tz, channel,
	created_at, last_fired_at`

func scanNotification(sc scanner) (domain.ScheduledNotification, error) {
	var (
		n       domain.ScheduledNotification
		rt      string
		atM     int
		created int64
		lastNS  sql.NullInt64
	)
	if err := sc.Scan(&n.UserID, &n.ID, &rt, &n.Title, &n.Body, &atM, &n.TZ, &n.Channel,
		&created, &lastNS); err != nil {
		return n, err
	}
	n.ReminderType = domain.ReminderType(rt)
	n.At = domain.TimeOfDay{Hour: atM / 60, Minute: atM % 60}
	n.CreatedAt = unixUTC(created)
	n.LastFiredAt = fromNullInt64(lastNS)
	return n, nil
}

func (r *SQLiteRepo) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.ScheduledNotification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ScheduledNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// ListNotifications returns a user's scheduled notifications ordered by id.
func (r *SQLiteRepo) ListNotifications(ctx context.Context, userID string) ([]domain.ScheduledNotification, error) {
	return r.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM scheduled_notifications WHERE user_id = ? ORDER BY id`, userID)
}

// ListAllNotifications returns every scheduled notification.
func (r *SQLiteRepo) ListAllNotifications(ctx context.Context) ([]domain.ScheduledNotification, error) {
	return r.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM scheduled_notifications ORDER BY user_id, id`)
}

// MarkFired records the last delivery time of a notification.
func (r *SQLiteRepo) MarkFired(ctx context.Context, userID string, id int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_notifications
		SET last_fired_at = ?
		WHERE user_id = ? AND id = ?`,
		at.UTC().Unix(), userID, id,
	)
	return err
}

// --- Engagement ---

// InsertEngagement appends a record.
func (r *SQLiteRepo) InsertEngagement(ctx context.Context, rec *domain.EngagementRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	var rt sql.NullString
	if rec.ReminderType != nil {
		rt = sql.NullString{String: string(*rec.ReminderType), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_records (
			id, user_id, reminder_type, mood, action, response_type,
			duration_sec, rating, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rt, rec.Mood, rec.Action, rec.ResponseType,
		intPtrToNull(rec.DurationSec), intPtrToNull(rec.Rating),
		rec.CreatedAt.UTC().Unix(), rec.UpdatedAt.UTC().Unix(),
	)
	return err
}

const engagementColumns = `id, user_id, reminder_type, mood, action, response_type,
	duration_sec, rating, created_at, updated_at`

func scanEngagement(sc scanner) (domain.EngagementRecord, error) {
	var (
		rec              domain.EngagementRecord
		rt               sql.NullString
		dur, rating      sql.NullInt64
		created, updated int64
	)
	if err := sc.Scan(&rec.ID, &rec.UserID, &rt, &rec.Mood, &rec.Action, &rec.ResponseType,
		&dur, &rating, &created, &updated); err != nil {
		return rec, err
	}
	if rt.Valid {
		t := domain.ReminderType(rt.String)
		rec.ReminderType = &t
	}
	rec.DurationSec = nullToIntPtr(dur)
	rec.Rating = nullToIntPtr(rating)
	rec.CreatedAt = unixUTC(created)
	rec.UpdatedAt = unixUTC(updated)
	return rec, nil
}

// UpdateOutcome attaches duration and/or rating to a record owned by userID.
// Nil fields keep their stored value.
func (r *SQLiteRepo) UpdateOutcome(ctx context.Context, userID, id string, o domain.Outcome, at time.Time) (*domain.EngagementRecord, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagement_records
		SET duration_sec = COALESCE(?, duration_sec),
		    rating       = COALESCE(?, rating),
		    updated_at   = ?
		WHERE id = ? AND user_id = ?`,
		intPtrToNull(o.DurationSec), intPtrToNull(o.Rating), at.UTC().Unix(), id, userID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+engagementColumns+` FROM engagement_records WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanEngagement(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEngagementSince returns a user's records created at or after since, oldest first.
func (r *SQLiteRepo) ListEngagementSince(ctx context.Context, userID string, since time.Time) ([]domain.EngagementRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+engagementColumns+` FROM engagement_records
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC`,
		userID, since.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.EngagementRecord
	for rows.Next() {
		rec, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertMoodRoll appends a mood roll log row.
func (r *SQLiteRepo) InsertMoodRoll(ctx context.Context, m *domain.MoodRoll) error {
	if m == nil {
		return errors.New("nil mood roll")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mood_rolls (id, user_id, mood, action, remaining, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Mood, m.Action, m.Remaining, m.CreatedAt.UTC().Unix(),
	)
	return err
}

// CountMoodRolls returns how many rolls a user has logged.
func (r *SQLiteRepo) CountMoodRolls(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mood_rolls WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// --- Key/value ---

// Get implements kv.Store.
func (r *SQLiteRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements kv.Store.
func (r *SQLiteRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Unix(),
	)
	return err
}

// Delete implements kv.Store.
func (r *SQLiteRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}
