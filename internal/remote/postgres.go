package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    body JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    body JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres stores every user's database in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dbURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, dbURL string) (*Postgres, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("db url missing")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// FetchDatabase returns userID's records and profile as a {records, profile}
// blob. An unknown user yields an empty record list.
func (p *Postgres) FetchDatabase(ctx context.Context, userID string) ([]byte, error) {
	rows, err := p.pool.Query(ctx, `SELECT body FROM records WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", userID, err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return domain.Record{}, err
		}
		var rec domain.Record
		err := json.Unmarshal(body, &rec)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read records for %s: %w", userID, err)
	}

	payload := domain.Payload{Records: records}
	if payload.Records == nil {
		payload.Records = []domain.Record{}
	}

	var body []byte
	err = p.pool.QueryRow(ctx, `SELECT body FROM profiles WHERE user_id = $1`, userID).Scan(&body)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find profile for %s: %w", userID, err)
	default:
		var prof domain.Profile
		if err := json.Unmarshal(body, &prof); err != nil {
			return nil, fmt.Errorf("failed to decode stored profile for %s: %w", userID, err)
		}
		payload.Profile = &prof
	}

	return json.Marshal(payload)
}

// SaveDatabase replaces all of the user's records and profile in one
// transaction.
func (p *Postgres) SaveDatabase(ctx context.Context, cred session.Credentials, payload domain.Payload) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM records WHERE user_id = $1`, cred.UserID); err != nil {
			return fmt.Errorf("failed to clear records for %s: %w", cred.UserID, err)
		}

		batch := &pgx.Batch{}
		for _, rec := range payload.Records {
			body, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
			}
			batch.Queue(`INSERT INTO records (user_id, id, body) VALUES ($1, $2, $3)`, cred.UserID, rec.ID, body)
		}
		if payload.Profile != nil {
			body, err := json.Marshal(payload.Profile)
			if err != nil {
				return fmt.Errorf("failed to encode profile for %s: %w", cred.UserID, err)
			}
			batch.Queue(`
				INSERT INTO profiles (user_id, body) VALUES ($1, $2)
				ON CONFLICT (user_id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
			`, cred.UserID, body)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save database for %s: %w", cred.UserID, err)
		}
		return nil
	})
}

// CreateRecord inserts rec, replacing any record already stored at its ID.
func (p *Postgres) CreateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return p.upsertRecord(ctx, cred.UserID, rec)
}

// UpdateRecord stores rec. Updating a record that does not exist creates it.
func (p *Postgres) UpdateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return p.upsertRecord(ctx, cred.UserID, rec)
}

func (p *Postgres) upsertRecord(ctx context.Context, userID string, rec domain.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO records (user_id, id, body) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, userID, rec.ID, body)
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteRecord removes the record at id.
func (p *Postgres) DeleteRecord(ctx context.Context, cred session.Credentials, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM records WHERE user_id = $1 AND id = $2`, cred.UserID, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// Register creates an account for cred.
func (p *Postgres) Register(ctx context.Context, cred session.Credentials) error {
	if !cred.Valid() || cred.Password == "" {
		return ErrUnauthorized
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (user_id, password_hash) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, cred.UserID, string(hash))
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", cred.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserExists
	}
	return nil
}

// Authenticate checks cred against the stored password hash.
func (p *Postgres) Authenticate(ctx context.Context, cred session.Credentials) error {
	var hash string
	err := p.pool.QueryRow(ctx, `SELECT password_hash FROM accounts WHERE user_id = $1`, cred.UserID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (p *Postgres) DeleteAccount(ctx context.Context, userID string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"records", "profiles", "accounts"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID); err != nil {
				return fmt.Errorf("failed to delete %s of %s: %w", table, userID, err)
			}
		}
		return nil
	})
}

// SetPublic sets whether userID's database can be read by others.
func (p *Postgres) SetPublic(ctx context.Context, userID string, public bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE accounts SET is_public = $1 WHERE user_id = $2`, public, userID)
	if err != nil {
		return fmt.Errorf("failed to update visibility for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownUser
	}
	return nil
}

// IsPublic reports whether userID's database can be read by others.
func (p *Postgres) IsPublic(ctx context.Context, userID string) (bool, error) {
	var public bool
	err := p.pool.QueryRow(ctx, `SELECT is_public FROM accounts WHERE user_id = $1`, userID).Scan(&public)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrUnknownUser
	}
	if err != nil {
		return false, fmt.Errorf("failed to read visibility for %s: %w", userID, err)
	}
	return public, nil
}

// PublicUsers lists the users whose databases are public.
func (p *Postgres) PublicUsers(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT user_id FROM accounts WHERE is_public ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list public users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read public users: %w", err)
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}
