package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, is_anonymous, provider, metadata, created_at, updated_at`

// CreateUser inserts a new user. ID and timestamps are filled in on the
// caller's struct.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Metadata == nil {
		user.Metadata = map[string]string{}
	}

	meta, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encoding user metadata: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.IsAnonymous,
		user.Provider,
		string(meta),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// FindByIdentity follows identities(provider, subject) to its user.
func (db *DB) FindByIdentity(ctx context.Context, provider, subject string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.is_anonymous, u.provider, u.metadata, u.created_at, u.updated_at
		 FROM identities i JOIN users u ON u.id = i.user_id
		 WHERE i.provider = ? AND i.subject = ?`,
		provider, subject,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("identity", provider+":"+subject)
		}
		return nil, fmt.Errorf("sqlite: finding identity %s: %w", provider, err)
	}
	return u, nil
}

// FindByEmail returns the oldest non-anonymous user with this email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = ? AND is_anonymous = 0
		 ORDER BY created_at ASC LIMIT 1`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}
	return u, nil
}

// LinkIdentity records that (provider, subject) logs in as identity.UserID.
// Linking the same pair twice is a no-op.
func (db *DB) LinkIdentity(ctx context.Context, identity model.Identity) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO identities (provider, subject, user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		identity.Provider, identity.Subject, identity.UserID, now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking %s identity to %s: %w", identity.Provider, identity.UserID, err)
	}
	return nil
}

// UpdateMetadata merges meta into the stored metadata object. Empty values
// delete the key.
func (db *DB) UpdateMetadata(ctx context.Context, userID string, meta map[string]string) (*model.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning metadata update: %w", err)
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: loading user %s: %w", userID, err)
	}

	for k, v := range meta {
		if v == "" {
			delete(u.Metadata, k)
			continue
		}
		u.Metadata[k] = v
	}
	encoded, err := json.Marshal(u.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding user metadata: %w", err)
	}

	u.UpdatedAt = now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(encoded), u.UpdatedAt, userID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: updating user %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing metadata update: %w", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		meta string
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.IsAnonymous,
		&u.Provider,
		&meta,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	u.Metadata = map[string]string{}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &u.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return &u, nil
}
