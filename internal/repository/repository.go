// Package repository declares the storage interfaces the services depend on.
// internal/repository/sqlite implements all of them on one *sqlite.DB.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akruel/list-flix/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores accounts and the external identities linked to them.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// FindByIdentity returns the user linked to (provider, subject), or
	// apperror.ErrNotFound.
	FindByIdentity(ctx context.Context, provider, subject string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	LinkIdentity(ctx context.Context, identity model.Identity) error
	// UpdateMetadata merges meta into the user's metadata and returns the
	// updated record.
	UpdateMetadata(ctx context.Context, userID string, meta map[string]string) (*model.User, error)
}

// SessionRepository stores revocable auth sessions and pending OTP codes.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.AuthSession) error
	GetSession(ctx context.Context, id string) (*model.AuthSession, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	CreateOTP(ctx context.Context, code *model.OTPCode) error
	// LatestOTP returns the newest unexpired code for email.
	LatestOTP(ctx context.Context, email string, now time.Time) (*model.OTPCode, error)
	DeleteOTPs(ctx context.Context, email string) error
}

// ListRepository stores shared lists, their members and items.
type ListRepository interface {
	CreateList(ctx context.Context, list *model.List) error
	ListsForUser(ctx context.Context, userID string, opts ListOptions) ([]model.List, error)
	// GetListForUser returns the list with the user's role, or
	// apperror.ErrNotFound when the list does not exist or the user is not
	// a member.
	GetListForUser(ctx context.Context, listID, userID string) (*model.List, error)
	ListExists(ctx context.Context, listID string) (bool, error)

	GetMember(ctx context.Context, listID, userID string) (*model.ListMember, error)
	AddMember(ctx context.Context, member *model.ListMember) error
	UpdateMemberRole(ctx context.Context, listID, userID string, role model.Role) error

	AddItem(ctx context.Context, item *model.ListItem) error
	GetItem(ctx context.Context, itemID string) (*model.ListItem, error)
	ListItems(ctx context.Context, listID string) ([]model.ListItem, error)
	DeleteItem(ctx context.Context, itemID string) error
}

// InteractionRepository stores personal watchlist / watched state.
type InteractionRepository interface {
	AddInteraction(ctx context.Context, in *model.Interaction) error
	DeleteInteraction(ctx context.Context, userID string, contentID int64, kind model.InteractionType) error
	ListInteractions(ctx context.Context, userID string) ([]model.Interaction, error)
	// MarkEpisodes inserts watched rows for every episode id not yet marked.
	MarkEpisodes(ctx context.Context, userID string, showID int64, episodeIDs []int64) error
	UnmarkEpisodes(ctx context.Context, userID string, episodeIDs []int64) error
}

// OwnershipRepository answers the questions the anonymous-data migration asks.
type OwnershipRepository interface {
	// HasContent reports whether the user owns or belongs to anything.
	HasContent(ctx context.Context, userID string) (bool, error)
	// MigrateUserData reassigns everything owned by oldUserID to newUserID
	// in one transaction.
	MigrateUserData(ctx context.Context, oldUserID, newUserID string) error
}

// EpisodeMeta is the metadata stored on watched-episode interactions.
type EpisodeMeta struct {
	ShowID int64 `json:"show_id"`
}

// EncodeEpisodeMeta is shared by the sqlite implementation and the tests.
func EncodeEpisodeMeta(showID int64) json.RawMessage {
	b, _ := json.Marshal(EpisodeMeta{ShowID: showID})
	return b
}
