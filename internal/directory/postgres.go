package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// Postgres is the shared durable Directory backing multi-instance
// deployments. Status and debug URL writes are last-writer-wins; the backend
// session id is guarded against overwrites in SQL.
type Postgres struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS browser_sessions (
	tab_id             TEXT PRIMARY KEY,
	backend_session_id TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	debug_url          TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres opens the directory database and ensures its table exists.
func NewPostgres(conn string) (*Postgres, error) {
	db, err := sql.Open("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session directory: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure session directory schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Put(ctx context.Context, rec models.Session) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	const query = `
		INSERT INTO browser_sessions (tab_id, backend_session_id, status, debug_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tab_id) DO UPDATE SET
			backend_session_id = CASE
				WHEN browser_sessions.backend_session_id = '' THEN EXCLUDED.backend_session_id
				ELSE browser_sessions.backend_session_id
			END,
			status = EXCLUDED.status,
			debug_url = CASE
				WHEN EXCLUDED.debug_url = '' THEN browser_sessions.debug_url
				ELSE EXCLUDED.debug_url
			END,
			updated_at = now()
		WHERE browser_sessions.backend_session_id = ''
			OR EXCLUDED.backend_session_id = ''
			OR browser_sessions.backend_session_id = EXCLUDED.backend_session_id
	`
	res, err := p.db.ExecContext(ctx, query, rec.TabID, rec.BackendSessionID, rec.Status, rec.DebugURL, rec.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBackendIDConflict
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, tabID string) (*models.Session, error) {
	const query = `
		SELECT tab_id, backend_session_id, status, debug_url, created_at
		FROM browser_sessions WHERE tab_id = $1
	`
	var rec models.Session
	err := p.db.QueryRowContext(ctx, query, tabID).Scan(
		&rec.TabID, &rec.BackendSessionID, &rec.Status, &rec.DebugURL, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, tabID string, status models.SessionStatus) error {
	_, err := p.db.ExecContext(ctx,
		"UPDATE browser_sessions SET status = $2, updated_at = now() WHERE tab_id = $1",
		tabID, status)
	return err
}

func (p *Postgres) CacheDebugURL(ctx context.Context, tabID, url string) error {
	_, err := p.db.ExecContext(ctx,
		"UPDATE browser_sessions SET debug_url = $2, updated_at = now() WHERE tab_id = $1",
		tabID, url)
	return err
}

func (p *Postgres) Delete(ctx context.Context, tabID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM browser_sessions WHERE tab_id = $1", tabID)
	return err
}

func (p *Postgres) List(ctx context.Context) ([]models.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tab_id, backend_session_id, status, debug_url, created_at
		FROM browser_sessions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var rec models.Session
		if err := rows.Scan(&rec.TabID, &rec.BackendSessionID, &rec.Status, &rec.DebugURL, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExpireOlderThan marks running records untouched since cutoff as expired.
// Reclaiming the backend session itself stays the backend's concern.
func (p *Postgres) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE browser_sessions SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3
	`, models.StatusExpired, models.StatusRunning, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) Close() error { return p.db.Close() }
