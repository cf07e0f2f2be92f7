package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var (
	ErrTokenInvalid = errors.New("sign-in token is invalid")
	ErrTokenExpired = errors.New("sign-in token is expired")
	ErrTokenUsed    = errors.New("sign-in token already used")
)

const storeCleanupInterval = 5 * time.Minute
const privateDirPerm = 0o700

// User is the authenticated identity handed to dashboard handlers.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// tokenRecord holds the data associated with a stored magic link token.
type tokenRecord struct {
	Email     string
	ExpiresAt time.Time
	Used      bool
}

// sessionRecord holds a live dashboard session.
type sessionRecord struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Store persists users, magic link tokens, and sessions in SQLite.
// Tokens are identified by HMAC-SHA256(rawToken) stored as hex.
type Store struct {
	db          *sql.DB
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewStore opens (or creates) the auth database in dir.
func NewStore(dir string) (*Store, error) {
	dir = filepath.Clean(dir)
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, privateDirPerm); err != nil {
		return nil, fmt.Errorf("create auth store dir: %w", err)
	}
	if err := os.Chmod(dir, privateDirPerm); err != nil {
		return nil, fmt.Errorf("restrict auth store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "auth.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open auth db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:          db,
		stopCleanup: make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	go s.cleanupLoop()
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		created_at    INTEGER NOT NULL,
		last_login_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS magic_link_tokens (
		token_hash TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		used       INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		used_at    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_ml_expires_at ON magic_link_tokens(expires_at);

	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		email      TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init auth schema: %w", err)
	}
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(storeCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.deleteExpired(time.Now().UTC()); err != nil {
				log.Warn().Err(err).Msg("Failed to delete expired auth records")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) deleteExpired(now time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM magic_link_tokens WHERE expires_at < ?`, now.Unix()); err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, now.Unix()); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}

// Close stops the cleanup loop and closes the database. Calling Close more
// than once is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

func (s *Store) putToken(tokenHash []byte, rec tokenRecord) error {
	if len(tokenHash) == 0 {
		return fmt.Errorf("tokenHash is required")
	}
	if rec.Email == "" || rec.ExpiresAt.IsZero() {
		return fmt.Errorf("token record is required")
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO magic_link_tokens (token_hash, email, expires_at, used, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		hex.EncodeToString(tokenHash), rec.Email, rec.ExpiresAt.Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// consumeToken validates and single-uses a magic link token hash.
func (s *Store) consumeToken(tokenHash []byte, now time.Time) (*tokenRecord, error) {
	key := hex.EncodeToString(tokenHash)

	var rec tokenRecord
	var expiresAt int64
	var used int
	err := s.db.QueryRow(`SELECT email, expires_at, used FROM magic_link_tokens WHERE token_hash = ?`, key).
		Scan(&rec.Email, &expiresAt, &used)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if used != 0 {
		return nil, ErrTokenUsed
	}
	if now.After(rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	// Mark used atomically; a concurrent consumer loses the race.
	res, err := s.db.Exec(`UPDATE magic_link_tokens SET used = 1, used_at = ? WHERE token_hash = ? AND used = 0`,
		now.Unix(), key)
	if err != nil {
		return nil, fmt.Errorf("mark token used: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, ErrTokenUsed
	}
	return &rec, nil
}

// ensureUser loads the user for an email, creating the record on first login.
func (s *Store) ensureUser(email string, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	u, err := s.getUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		id, err := generateUserID()
		if err != nil {
			return nil, err
		}
		u = &User{ID: id, Email: email, CreatedAt: now}
		if _, err := s.db.Exec(`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
			u.ID, u.Email, now.Unix()); err != nil {
			// A competing login may have created the row; reuse it.
			reloaded, reloadErr := s.getUserByEmail(email)
			if reloadErr != nil || reloaded == nil {
				return nil, fmt.Errorf("create user: %w", err)
			}
			u = reloaded
		}
	}

	if _, err := s.db.Exec(`UPDATE users SET last_login_at = ? WHERE id = ?`, now.Unix(), u.ID); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to update last login")
	}
	ts := now
	u.LastLoginAt = &ts
	return u, nil
}

func (s *Store) getUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(`SELECT id, email, created_at, last_login_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (s *Store) getUser(id string) (*User, error) {
	row := s.db.QueryRow(`SELECT id, email, created_at, last_login_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	var lastLogin sql.NullInt64
	err := row.Scan(&u.ID, &u.Email, &createdAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastLogin.Valid {
		ts := time.Unix(lastLogin.Int64, 0).UTC()
		u.LastLoginAt = &ts
	}
	return &u, nil
}

func (s *Store) putSession(tokenHash []byte, rec sessionRecord) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO sessions (token_hash, user_id, email, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		hex.EncodeToString(tokenHash), rec.UserID, rec.Email, rec.ExpiresAt.Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *Store) getSession(tokenHash []byte, now time.Time) (*sessionRecord, error) {
	var rec sessionRecord
	var expiresAt int64
	err := s.db.QueryRow(`SELECT user_id, email, expires_at FROM sessions WHERE token_hash = ?`,
		hex.EncodeToString(tokenHash)).Scan(&rec.UserID, &rec.Email, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if now.After(rec.ExpiresAt) {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) deleteSession(tokenHash []byte) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE token_hash = ?`, hex.EncodeToString(tokenHash)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func generateUserID() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("u-")
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}
