package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/xerrors"

	"github.com/kitchen48/telemetry-service/internal/device"
	"github.com/kitchen48/telemetry-service/internal/session"
	"github.com/kitchen48/telemetry-service/internal/telemetry"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for events and sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, xerrors.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertEventBatch persists a detached batch in one transaction, preserving
// the slice order. All-or-nothing: any failed insert rolls the whole batch
// back so the tracker can requeue it intact. Events carry ids assigned at
// enqueue time, so a retried batch that partially landed before an ambiguous
// failure dedupes via ON CONFLICT instead of double-counting.
func (p *PostgresStore) InsertEventBatch(ctx context.Context, events []telemetry.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return xerrors.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, e := range events {
		b.Queue(`
			INSERT INTO usage_events(id, event_type, client_app, user_id, session_id, entity_type, entity_id, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.EventType, nullable(e.ClientApp), nullable(e.UserID), nullable(e.SessionID),
			nullable(e.EntityType), nullable(e.EntityID), e.Metadata, e.CreatedAt)
	}

	br := tx.SendBatch(ctx, b)
	var execErr error
	for range events {
		if _, err := br.Exec(); err != nil {
			execErr = err
			break
		}
	}
	if err := br.Close(); err != nil && execErr == nil {
		execErr = err
	}
	if execErr != nil {
		return xerrors.Errorf("insert event batch: %w", execErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return xerrors.Errorf("commit event batch: %w", err)
	}
	return nil
}

// FindLiveSession returns the most recently active session for (userID,
// deviceType) with last_active_at strictly after cutoff, or nil when none
// qualifies.
func (p *PostgresStore) FindLiveSession(ctx context.Context, userID string, deviceType device.Type, cutoff time.Time) (*session.Session, error) {
	var s session.Session
	var dt string
	err := p.pool.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), device_type, COALESCE(user_agent,''), COALESCE(ip_address,''), started_at, last_active_at
		FROM sessions
		WHERE user_id=$1
		  AND device_type=$2
		  AND last_active_at > $3
		ORDER BY last_active_at DESC
		LIMIT 1
	`, userID, string(deviceType), cutoff).Scan(
		&s.ID, &s.UserID, &dt, &s.UserAgent, &s.IPAddress, &s.StartedAt, &s.LastActiveAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("find live session: %w", err)
	}
	s.DeviceType = device.Type(dt)
	return &s, nil
}

// InsertSession creates a new session row.
func (p *PostgresStore) InsertSession(ctx context.Context, s session.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions(id, user_id, device_type, user_agent, ip_address, started_at, last_active_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, nullable(s.UserID), string(s.DeviceType), nullable(s.UserAgent),
		nullable(s.IPAddress), s.StartedAt, s.LastActiveAt)
	if err != nil {
		return xerrors.Errorf("insert session: %w", err)
	}
	return nil
}

// TouchSession advances a session's last_active_at.
func (p *PostgresStore) TouchSession(ctx context.Context, id string, lastActiveAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions SET last_active_at=$2 WHERE id=$1
	`, id, lastActiveAt)
	if err != nil {
		return xerrors.Errorf("touch session: %w", err)
	}
	return nil
}

// AttachUser associates an anonymous session with a user. Sessions that
// already have a user keep it.
func (p *PostgresStore) AttachUser(ctx context.Context, sessionID, userID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions SET user_id=$2 WHERE id=$1 AND user_id IS NULL
	`, sessionID, userID)
	if err != nil {
		return xerrors.Errorf("attach user: %w", err)
	}
	return nil
}

// CountEvents returns the number of events of eventType in the time window
// [from,to). Using a half-open interval avoids double counting at window
// boundaries.
func (p *PostgresStore) CountEvents(ctx context.Context, eventType string, from, to time.Time) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM usage_events
		WHERE event_type=$1
		  AND created_at >= $2
		  AND created_at <  $3
	`, eventType, from, to).Scan(&count)
	if err != nil {
		return 0, xerrors.Errorf("count events: %w", err)
	}
	return count, nil
}

// nullable maps "" to SQL NULL so optional attributes don't land as empty
// strings.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
