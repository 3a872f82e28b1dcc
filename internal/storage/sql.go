package storage

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "azanbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqlStore serves both sqlite and postgres. Queries are written with '?' and
// rebound per driver; timestamps are unix milliseconds and lists are JSON text.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLStore(db, log)
}

func newSQLStore(db *sqlx.DB, log logx.Logger) (*sqlStore, error) {
	st := &sqlStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) q(query string) string { return s.db.Rebind(query) }

// ---- mappings ----

type mappingRow struct {
	SessionID     string `db:"session_id"`
	LocationID    int    `db:"location_id"`
	DestinationID string `db:"destination_id"`
	Label         string `db:"label"`
	Enabled       int    `db:"enabled"`
}

func (s *sqlStore) UpsertMapping(ctx context.Context, m Mapping) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO destination_mappings (session_id, location_id, destination_id, label, enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, location_id) DO UPDATE SET
		   destination_id = excluded.destination_id,
		   label = excluded.label,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`),
		m.SessionID, m.LocationID, m.DestinationID, m.Label, boolInt(m.Enabled), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqlStore) SetMappingEnabled(ctx context.Context, sessionID string, locationID int, enabled bool) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE destination_mappings SET enabled = ?, updated_at = ? WHERE session_id = ? AND location_id = ?`),
		boolInt(enabled), time.Now().UnixMilli(), sessionID, locationID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListMappings(ctx context.Context, sessionID string, enabledOnly bool) ([]Mapping, error) {
	query := `SELECT session_id, location_id, destination_id, label, enabled FROM destination_mappings WHERE session_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY location_id`
	var rows []mappingRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), sessionID); err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(rows))
	for _, r := range rows {
		out = append(out, Mapping{
			SessionID:     r.SessionID,
			LocationID:    r.LocationID,
			DestinationID: r.DestinationID,
			Label:         r.Label,
			Enabled:       r.Enabled != 0,
		})
	}
	return out, nil
}

// ---- monitored subscribers ----

type subscriberRow struct {
	SubscriberID     string `db:"subscriber_id"`
	SessionID        string `db:"session_id"`
	DestinationIDs   string `db:"destination_ids"`
	DestinationNames string `db:"destination_names"`
	WarnedAt         int64  `db:"warned_at"`
	Status           string `db:"status"`
}

func (r subscriberRow) record() MonitoredSubscriber {
	rec := MonitoredSubscriber{
		SubscriberID: r.SubscriberID,
		SessionID:    r.SessionID,
		WarnedAt:     time.UnixMilli(r.WarnedAt),
		Status:       SubscriberStatus(r.Status),
	}
	_ = json.Unmarshal([]byte(r.DestinationIDs), &rec.DestinationIDs)
	_ = json.Unmarshal([]byte(r.DestinationNames), &rec.DestinationNames)
	return rec
}

const subscriberColumns = `subscriber_id, session_id, destination_ids, destination_names, warned_at, status`

func (s *sqlStore) UpsertOrGetSubscriber(ctx context.Context, rec MonitoredSubscriber) (MonitoredSubscriber, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return MonitoredSubscriber{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(
		`INSERT INTO monitored_subscribers (`+subscriberColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subscriber_id, session_id) DO NOTHING`),
		rec.SubscriberID, rec.SessionID, jsonList(rec.DestinationIDs), jsonList(rec.DestinationNames),
		rec.WarnedAt.UnixMilli(), string(rec.Status),
	)
	if err != nil {
		return MonitoredSubscriber{}, false, err
	}
	n, _ := res.RowsAffected()

	var row subscriberRow
	if err := tx.GetContext(ctx, &row, s.q(
		`SELECT `+subscriberColumns+` FROM monitored_subscribers WHERE subscriber_id = ? AND session_id = ?`),
		rec.SubscriberID, rec.SessionID,
	); err != nil {
		return MonitoredSubscriber{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return MonitoredSubscriber{}, false, err
	}
	return row.record(), n == 1, nil
}

func (s *sqlStore) UpdateSubscriber(ctx context.Context, rec MonitoredSubscriber) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE monitored_subscribers SET destination_ids = ?, destination_names = ?, warned_at = ?, status = ?
		 WHERE subscriber_id = ? AND session_id = ?`),
		jsonList(rec.DestinationIDs), jsonList(rec.DestinationNames), rec.WarnedAt.UnixMilli(), string(rec.Status),
		rec.SubscriberID, rec.SessionID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) DeleteSubscriber(ctx context.Context, subscriberID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM monitored_subscribers WHERE subscriber_id = ? AND session_id = ?`), subscriberID, sessionID)
	return err
}

func (s *sqlStore) ListSubscribers(ctx context.Context, sessionID string, status SubscriberStatus) ([]MonitoredSubscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM monitored_subscribers WHERE session_id = ?`
	args := []any{sessionID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY subscriber_id`
	var rows []subscriberRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	out := make([]MonitoredSubscriber, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// ---- message log ----

func (s *sqlStore) AppendMessage(ctx context.Context, m MessageLog) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO message_log (id, session_id, destination_id, kind, location, prayer, body, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.SessionID, m.DestinationID, string(m.Kind), m.Location, m.Prayer, m.Text, string(m.Status), m.Error,
		m.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqlStore) MessageStats(ctx context.Context, since time.Time) (MessageStats, error) {
	var row struct {
		Total  int64 `db:"total"`
		Sent   int64 `db:"sent"`
		Failed int64 `db:"failed"`
	}
	err := s.db.GetContext(ctx, &row, s.q(
		`SELECT COUNT(*) AS total,
		        CAST(COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0) AS BIGINT) AS sent,
		        CAST(COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS BIGINT) AS failed
		 FROM message_log WHERE created_at >= ?`), since.UnixMilli())
	if err != nil {
		return MessageStats{}, err
	}
	st := MessageStats{Total: row.Total, Sent: row.Sent, Failed: row.Failed}
	st.finish()
	return st, nil
}

// ---- votes ----

func (s *sqlStore) PutVote(ctx context.Context, v PrayerVote) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO prayer_votes (subscriber_id, session_id, vote_date, prayers, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (subscriber_id, session_id, vote_date) DO UPDATE SET prayers = excluded.prayers, updated_at = excluded.updated_at`),
		v.SubscriberID, v.SessionID, v.Date, jsonList(v.Prayers), v.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *sqlStore) ListVotes(ctx context.Context, sessionID, date string) ([]PrayerVote, error) {
	var rows []struct {
		SubscriberID string `db:"subscriber_id"`
		SessionID    string `db:"session_id"`
		Date         string `db:"vote_date"`
		Prayers      string `db:"prayers"`
		UpdatedAt    int64  `db:"updated_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(
		`SELECT subscriber_id, session_id, vote_date, prayers, updated_at FROM prayer_votes
		 WHERE session_id = ? AND vote_date = ? ORDER BY subscriber_id`), sessionID, date); err != nil {
		return nil, err
	}
	out := make([]PrayerVote, 0, len(rows))
	for _, r := range rows {
		v := PrayerVote{SubscriberID: r.SubscriberID, SessionID: r.SessionID, Date: r.Date, UpdatedAt: time.UnixMilli(r.UpdatedAt)}
		_ = json.Unmarshal([]byte(r.Prayers), &v.Prayers)
		out = append(out, v)
	}
	return out, nil
}

// ---- roster ----

func (s *sqlStore) AddRosterMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UnixMilli()
	stmt := s.q(`INSERT INTO roster_members (session_id, destination_id, member_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, destination_id, member_id) DO UPDATE SET updated_at = excluded.updated_at`)
	for _, id := range memberIDs {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, destinationID, id, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) RemoveRosterMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM roster_members WHERE session_id = ? AND destination_id = ? AND member_id IN (?)`,
		sessionID, destinationID, memberIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(query), args...)
	return err
}

func (s *sqlStore) ListRoster(ctx context.Context, sessionID, destinationID string) ([]string, error) {
	out := []string{}
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT member_id FROM roster_members WHERE session_id = ? AND destination_id = ? ORDER BY member_id`),
		sessionID, destinationID)
	return out, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
