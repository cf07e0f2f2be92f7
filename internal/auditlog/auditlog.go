// Package auditlog persists a queryable record of every webhook delivery the
// reconciler saw, so duplicate and out-of-order deliveries can be
// reconstructed after the fact.
package auditlog

import (
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Outcome classifies how a webhook delivery was handled.
type Outcome string

const (
	// OutcomeProcessed means the event mutated billing state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkipped means the event was acknowledged but dropped
	// (missing linkage metadata, unknown customer).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored means the event type is not one we handle.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected means the delivery failed verification or decoding.
	OutcomeRejected Outcome = "rejected"
)

// Entry is one recorded webhook delivery.
type Entry struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Outcome      Outcome   `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	CustomerID   string    `json:"customer_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Log is a SQLite-backed append-only store of webhook delivery records.
type Log struct {
	db *sql.DB
}

// Open creates (or opens) the audit database in dir.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	dbPath := filepath.Join(dir, "webhook_audit.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhook_events (
		id            TEXT PRIMARY KEY,
		event_id      TEXT NOT NULL DEFAULT '',
		event_type    TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		detail        TEXT NOT NULL DEFAULT '',
		restaurant_id TEXT NOT NULL DEFAULT '',
		customer_id   TEXT NOT NULL DEFAULT '',
		client_ip     TEXT NOT NULL DEFAULT '',
		request_id    TEXT NOT NULL DEFAULT '',
		received_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_webhook_events_event_id ON webhook_events(event_id);
	CREATE INDEX IF NOT EXISTS idx_webhook_events_customer ON webhook_events(customer_id);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends an entry. A missing ID or timestamp is filled in; ULIDs keep
// records sortable by arrival order.
func (l *Log) Record(e Entry) error {
	if l == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(`
		INSERT INTO webhook_events (id, event_id, event_type, outcome, detail, restaurant_id, customer_id, client_ip, request_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventID, e.EventType, string(e.Outcome), e.Detail,
		e.RestaurantID, e.CustomerID, e.ClientIP, e.RequestID, e.ReceivedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListByEventID returns every delivery recorded for a logical event, oldest
// first. Duplicate deliveries of the same event show up as multiple rows.
func (l *Log) ListByEventID(eventID string) ([]*Entry, error) {
	return l.list(`event_id = ?`, eventID)
}

// ListByCustomer returns all deliveries touching a Stripe customer.
func (l *Log) ListByCustomer(customerID string) ([]*Entry, error) {
	return l.list(`customer_id = ?`, customerID)
}

// ListRecent returns the latest n entries, newest first.
func (l *Log) ListRecent(n int) ([]*Entry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := l.db.Query(`SELECT id, event_id, event_type, outcome, detail, restaurant_id, customer_id, client_ip, request_id, received_at
		FROM webhook_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (l *Log) list(predicate string, arg any) ([]*Entry, error) {
	rows, err := l.db.Query(`SELECT id, event_id, event_type, outcome, detail, restaurant_id, customer_id, client_ip, request_id, received_at
		FROM webhook_events WHERE `+predicate+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var e Entry
		var outcome string
		var receivedAt int64
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &outcome, &e.Detail,
			&e.RestaurantID, &e.CustomerID, &e.ClientIP, &e.RequestID, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.ReceivedAt = time.Unix(receivedAt, 0).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ClientIP resolves the best-effort client IP for audit metadata.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return strings.Trim(rip, "[]")
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
