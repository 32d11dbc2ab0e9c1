// Package archive records every dispatched packet in a sqlite database and keeps the
// opaque configuration slots the instrument stores and recalls.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/itohio/coreloop/pkg/hal"
)

// Session is one run of the core loop.
type Session struct {
	SessionID string
	StartedAt time.Time
	Packets   int
}

// Packet is one archived packet.
type Packet struct {
	Seq        int
	AppID      uint16
	Payload    []byte
	ReceivedAt time.Time
}

// Archive is a packet sink and a hal.Store backed by sqlite.
type Archive struct {
	db      *sql.DB
	session string

	mu  sync.Mutex
	seq int
}

// Ensure Archive implements hal.Store.
var _ hal.Store = (*Archive)(nil)

// Open opens or creates the archive at path and starts a new session.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        BIGINT
		);
		CREATE TABLE IF NOT EXISTS packets (
			session_id        TEXT,
			seq               BIGINT,
			app_id            INTEGER,
			payload           BLOB,
			received_at       BIGINT,
			PRIMARY KEY(session_id, seq),
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS slots (
			slot              TEXT PRIMARY KEY,
			blob              BLOB,
			updated_at        BIGINT
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	a := &Archive{db: db, session: uuid.New().String()}
	if _, err := db.Exec("INSERT INTO sessions (session_id, started_at) VALUES (?, ?)",
		a.session, time.Now().UnixNano()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return a, nil
}

// SessionID returns the id of the session packets are written to.
func (a *Archive) SessionID() string {
	return a.session
}

// Write archives one packet in the current session.
func (a *Archive) Write(appID uint16, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec("INSERT INTO packets (session_id, seq, app_id, payload, received_at) VALUES (?, ?, ?, ?, ?)",
		a.session, a.seq, appID, payload, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to archive packet: %w", err)
	}
	a.seq++
	return nil
}

// Packets returns the packets of a session in dispatch order.
func (a *Archive) Packets(sessionID string) ([]Packet, error) {
	rows, err := a.db.Query("SELECT seq, app_id, payload, received_at FROM packets WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query packets: %w", err)
	}
	defer rows.Close()

	var out []Packet
	for rows.Next() {
		var p Packet
		var at int64
		if err := rows.Scan(&p.Seq, &p.AppID, &p.Payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan packet: %w", err)
		}
		p.ReceivedAt = time.Unix(0, at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Sessions lists all sessions, newest first.
func (a *Archive) Sessions() ([]Session, error) {
	rows, err := a.db.Query(`
		SELECT s.session_id, s.started_at, COUNT(p.seq)
		FROM sessions s LEFT JOIN packets p ON p.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var at int64
		if err := rows.Scan(&s.SessionID, &at, &s.Packets); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, at)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save stores blob under slot, replacing any earlier value.
func (a *Archive) Save(slot string, blob []byte) error {
	_, err := a.db.Exec(`
		INSERT INTO slots (slot, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		slot, blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", slot, err)
	}
	return nil
}

// Load returns the blob stored under slot, or hal.ErrNotStored.
func (a *Archive) Load(slot string) ([]byte, error) {
	var blob []byte
	err := a.db.QueryRow("SELECT blob FROM slots WHERE slot = ?", slot).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", hal.ErrNotStored, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", slot, err)
	}
	return blob, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
