package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
)

// hashCost is the bcrypt cost for account passwords.
var hashCost = bcrypt.DefaultCost

const sqliteSchema = `
-- One row per registered user.
CREATE TABLE IF NOT EXISTS accounts (
    user_id TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    is_public INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

-- Records are stored as their JSON encoding, keyed by owner and path.
CREATE TABLE IF NOT EXISTS records (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// SQLite stores every user's database in a SQLite file.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens the database at dsn and ensures the schema is up to date.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{conn: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// FetchDatabase returns userID's records and profile as a {records, profile}
// blob. An unknown user yields an empty record list.
func (s *SQLite) FetchDatabase(ctx context.Context, userID string) ([]byte, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT body FROM records WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", userID, err)
	}
	defer rows.Close()

	p := domain.Payload{Records: []domain.Record{}}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan record row for %s: %w", userID, err)
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode stored record for %s: %w", userID, err)
		}
		p.Records = append(p.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records for %s: %w", userID, err)
	}

	var body string
	err = s.conn.QueryRowContext(ctx, `SELECT body FROM profiles WHERE user_id = ?`, userID).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find profile for %s: %w", userID, err)
	default:
		var prof domain.Profile
		if err := json.Unmarshal([]byte(body), &prof); err != nil {
			return nil, fmt.Errorf("failed to decode stored profile for %s: %w", userID, err)
		}
		p.Profile = &prof
	}

	return json.Marshal(p)
}

// SaveDatabase replaces all of the user's records and profile in one
// transaction.
func (s *SQLite) SaveDatabase(ctx context.Context, cred session.Credentials, p domain.Payload) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save for %s: %w", cred.UserID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?`, cred.UserID); err != nil {
		return fmt.Errorf("failed to clear records for %s: %w", cred.UserID, err)
	}
	now := time.Now()
	for _, rec := range p.Records {
		if err := upsertRecord(ctx, tx, cred.UserID, rec, now); err != nil {
			return err
		}
	}
	if p.Profile != nil {
		body, err := json.Marshal(p.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile for %s: %w", cred.UserID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, body, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
		`, cred.UserID, string(body), now); err != nil {
			return fmt.Errorf("failed to save profile for %s: %w", cred.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save for %s: %w", cred.UserID, err)
	}
	return nil
}

// CreateRecord inserts rec, replacing any record already stored at its ID.
func (s *SQLite) CreateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return upsertRecord(ctx, s.conn, cred.UserID, rec, time.Now())
}

// UpdateRecord stores rec. Updating a record that does not exist creates it.
func (s *SQLite) UpdateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return upsertRecord(ctx, s.conn, cred.UserID, rec, time.Now())
}

// DeleteRecord removes the record at id. Deleting a missing record is not an
// error.
func (s *SQLite) DeleteRecord(ctx context.Context, cred session.Credentials, id string) error {
	if _, err := s.conn.ExecContext(ctx, `
		DELETE FROM records WHERE user_id = ? AND id = ?
	`, cred.UserID, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertRecord(ctx context.Context, db execer, userID string, rec domain.Record, now time.Time) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO records (user_id, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, userID, rec.ID, string(body), now); err != nil {
		return fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return nil
}

// Register creates an account for cred.
func (s *SQLite) Register(ctx context.Context, cred session.Credentials) error {
	if !cred.Valid() || cred.Password == "" {
		return ErrUnauthorized
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO accounts (user_id, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, cred.UserID, string(hash), time.Now())
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", cred.UserID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserExists
	}
	return nil
}

// Authenticate checks cred against the stored password hash.
func (s *SQLite) Authenticate(ctx context.Context, cred session.Credentials) error {
	var hash string
	err := s.conn.QueryRowContext(ctx, `
		SELECT password_hash FROM accounts WHERE user_id = ?
	`, cred.UserID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", cred.UserID, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(cred.Password)) != nil {
		return ErrUnauthorized
	}
	return nil
}

// DeleteAccount removes the account and everything it owns.
func (s *SQLite) DeleteAccount(ctx context.Context, userID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete for %s: %w", userID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"records", "profiles", "accounts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", table, userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete for %s: %w", userID, err)
	}
	return nil
}

// SetPublic sets whether userID's database can be read by others.
func (s *SQLite) SetPublic(ctx context.Context, userID string, public bool) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE accounts SET is_public = ? WHERE user_id = ?
	`, public, userID)
	if err != nil {
		return fmt.Errorf("failed to update visibility for %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// IsPublic reports whether userID's database can be read by others.
func (s *SQLite) IsPublic(ctx context.Context, userID string) (bool, error) {
	var public bool
	err := s.conn.QueryRowContext(ctx, `
		SELECT is_public FROM accounts WHERE user_id = ?
	`, userID).Scan(&public)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUnknownUser
	}
	if err != nil {
		return false, fmt.Errorf("failed to read visibility for %s: %w", userID, err)
	}
	return public, nil
}

// PublicUsers lists the users whose databases are public.
func (s *SQLite) PublicUsers(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id FROM accounts WHERE is_public = 1 ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list public users: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
