package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

// Config holds SQLite connection settings.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	WriteTimeout    time.Duration
}

// Manager is the SQLite-backed SessionStore. All writes funnel through a
// single goroutine; SQLite allows many readers but only one writer, and
// serializing writes here keeps the coordinator free of driver-level
// busy retries.
type Manager struct {
	db           *sql.DB
	config       *Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and bootstraps the schema.
func NewManager(config *Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := applySQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)

		case <-m.shutdown:
			// Drain writes already queued before shutdown was signalled.
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- op.operation(m.db)
				default:
					log.Println("store: write loop shutting down")
					return
				}
			}
		}
	}
}

// executeWrite queues a write and waits for completion, bounded by the
// configured write timeout so a wedged disk surfaces as an error instead
// of a hang.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	m.mu.RUnlock()

	timeout := m.config.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(timeout):
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSession inserts a new session row.
func (m *Manager) CreateSession(ctx context.Context, session *types.EmergencySession) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (
				id, reporter_id, status,
				initial_latitude, initial_longitude, initial_timestamp,
				last_latitude, last_longitude, last_timestamp,
				created_at, responded_by, responded_at, ended_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.ReporterID,
			session.Status,
			session.InitialLocation.Latitude,
			session.InitialLocation.Longitude,
			session.InitialLocation.Timestamp,
			session.LastLocation.Latitude,
			session.LastLocation.Longitude,
			session.LastLocation.Timestamp,
			session.CreatedAt,
			session.RespondedBy,
			session.RespondedAt,
			session.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// UpdateSession rewrites the mutable fields of an existing row.
func (m *Manager) UpdateSession(ctx context.Context, session *types.EmergencySession) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET status = ?,
				last_latitude = ?, last_longitude = ?, last_timestamp = ?,
				responded_by = ?, responded_at = ?, ended_at = ?
			WHERE id = ?
		`
		res, err := db.ExecContext(ctx, query,
			session.Status,
			session.LastLocation.Latitude,
			session.LastLocation.Longitude,
			session.LastLocation.Timestamp,
			session.RespondedBy,
			session.RespondedAt,
			session.EndedAt,
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// GetSession retrieves one session by id. Reads bypass the write loop.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.EmergencySession, error) {
	query := `
		SELECT id, reporter_id, status,
			initial_latitude, initial_longitude, initial_timestamp,
			last_latitude, last_longitude, last_timestamp,
			created_at, responded_by, responded_at, ended_at
		FROM sessions
		WHERE id = ?
	`
	session, err := scanSession(m.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions matching the query, newest first.
func (m *Manager) ListSessions(ctx context.Context, q interfaces.SessionQuery) ([]*types.EmergencySession, error) {
	query := `
		SELECT id, reporter_id, status,
			initial_latitude, initial_longitude, initial_timestamp,
			last_latitude, last_longitude, last_timestamp,
			created_at, responded_by, responded_at, ended_at
		FROM sessions
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR reporter_id = ?)
		ORDER BY created_at DESC
	`
	rows, err := m.db.QueryContext(ctx, query, q.Status, q.Status, q.ReporterID, q.ReporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.EmergencySession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.EmergencySession, error) {
	var session types.EmergencySession
	var respondedBy sql.NullString
	var respondedAt, endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.ReporterID,
		&session.Status,
		&session.InitialLocation.Latitude,
		&session.InitialLocation.Longitude,
		&session.InitialLocation.Timestamp,
		&session.LastLocation.Latitude,
		&session.LastLocation.Longitude,
		&session.LastLocation.Timestamp,
		&session.CreatedAt,
		&respondedBy,
		&respondedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if respondedBy.Valid {
		session.RespondedBy = &respondedBy.String
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		session.RespondedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return &session, nil
}
