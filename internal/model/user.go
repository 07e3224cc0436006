// Package model defines the data structures used throughout the application.
package model

import "time"

// Metadata keys understood on a user record. They mirror the keys OAuth
// providers put into the profile (full_name, name, picture) plus the
// display_name the app sets itself.
const (
	MetaDisplayName = "display_name"
	MetaFullName    = "full_name"
	MetaName        = "name"
	MetaAvatarURL   = "avatar_url"
	MetaPicture     = "picture"
)

// Sign-in provider tags stored on a user record.
const (
	ProviderTagAnonymous = "anonymous"
	ProviderTagEmail     = "email"
	ProviderTagGoogle    = "google"
)

// User is an account as the backend stores it.
//
// Anonymous users have no email and IsAnonymous set. They own content like
// any other user until that content is migrated to an authenticated account.
//
// Metadata is free-form profile data (display name, avatar) and is stored as
// a JSON object in the users table.
type User struct {
	ID          string            `json:"id"          db:"id"`
	Email       string            `json:"email"       db:"email"`
	IsAnonymous bool              `json:"isAnonymous" db:"is_anonymous"`
	Provider    string            `json:"provider"    db:"provider"`
	Metadata    map[string]string `json:"metadata"    db:"metadata"`
	CreatedAt   time.Time         `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt"   db:"updated_at"`
}

// Meta returns the metadata value for key, or "" when unset.
func (u *User) Meta(key string) string {
	if u == nil || u.Metadata == nil {
		return ""
	}
	return u.Metadata[key]
}

// Identity links an external login (Google subject, email address) to a user.
type Identity struct {
	Provider string `db:"provider"`
	Subject  string `db:"subject"`
	UserID   string `db:"user_id"`
}

// AuthSession is a server-side session row. The access token handed to the
// browser carries its ID, so deleting the row revokes the token.
type AuthSession struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// OTPCode is a pending magic-link code. Only the bcrypt hash is stored.
type OTPCode struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	CodeHash  string    `db:"code_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
