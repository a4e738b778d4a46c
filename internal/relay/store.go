package relay

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"clinichat/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	recipient_id TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	received_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_sender ON events(sender_id, seq);
`

// Store is the optional append-only event log. SQLite tolerates exactly one
// writer, so all inserts funnel through a single goroutine; reads go straight
// to the pool.
type Store struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// NewStore opens (or creates) the event log at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create event schema: %w", err)
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			err := op.fn(s.db)
			if err != nil {
				log.Printf("relay: event log write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.fn(s.db)
			}
			op.result <- err
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
	case <-s.shutdown:
		return ErrStoreClosed
	}

	// The writer exits on shutdown without draining the queue; do not block
	// on a result that may never arrive.
	select {
	case err := <-result:
		return err
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// Record appends one event to the log.
func (s *Store) Record(ev types.ChannelEvent, receivedAt time.Time) error {
	payload, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO events (type, sender_id, recipient_id, payload, received_at) VALUES (?, ?, ?, ?, ?)`,
			ev.Type, ev.SenderID, ev.RecipientID, string(payload), receivedAt,
		)
		return err
	})
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(limit int) ([]types.ChannelEvent, error) {
	rows, err := s.db.Query(`SELECT payload FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []types.ChannelEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event payload: %w", err)
		}
		var ev types.ChannelEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountBySender reports how many events the log holds per sender.
func (s *Store) CountBySender(senderID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE sender_id = ?`, senderID).Scan(&n)
	return n, err
}

// HealthCheck verifies the underlying database is reachable.
func (s *Store) HealthCheck() error {
	return s.db.Ping()
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
