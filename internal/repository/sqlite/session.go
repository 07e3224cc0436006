package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores a new session row. The caller sets UserID and
// ExpiresAt; ID and CreatedAt are generated.
func (db *DB) CreateSession(ctx context.Context, s *model.AuthSession) error {
	s.ID = xid.New().String()
	s.CreatedAt = now()
	s.ExpiresAt = s.ExpiresAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", err)
	}
	return nil
}

// GetSession returns the session row. Expiry is not checked here; callers
// compare ExpiresAt with their own clock.
func (db *DB) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	var s model.AuthSession
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}
	return &s, nil
}

// DeleteSession revokes a session. Deleting a missing session is not an error.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

// DeleteExpiredSessions removes every session and OTP code that expired
// before now and returns the number of sessions removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < ?`, now); err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired otp codes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// CreateOTP stores a pending magic-link code.
func (db *DB) CreateOTP(ctx context.Context, code *model.OTPCode) error {
	code.ID = xid.New().String()
	code.Email = strings.ToLower(strings.TrimSpace(code.Email))
	code.CreatedAt = now()
	code.ExpiresAt = code.ExpiresAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO otp_codes (id, email, code_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		code.ID, code.Email, code.CodeHash, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating otp code: %w", err)
	}
	return nil
}

// LatestOTP returns the most recently issued code for email that is still
// valid at now.
func (db *DB) LatestOTP(ctx context.Context, email string, now time.Time) (*model.OTPCode, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, email, code_hash, expires_at, created_at
		 FROM otp_codes
		 WHERE email = ?
		 ORDER BY created_at DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying otp codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.OTPCode
		if err := rows.Scan(&c.ID, &c.Email, &c.CodeHash, &c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning otp code: %w", err)
		}
		if c.ExpiresAt.After(now) {
			return &c, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating otp codes: %w", err)
	}
	return nil, apperror.NotFound("otp code", email)
}

// DeleteOTPs removes every code issued to email.
func (db *DB) DeleteOTPs(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM otp_codes WHERE email = ?`, email); err != nil {
		return fmt.Errorf("sqlite: deleting otp codes: %w", err)
	}
	return nil
}
