package model

import (
	"encoding/json"
	"time"
)

// InteractionType distinguishes "want to watch" from "already watched".
type InteractionType string

const (
	InteractionWatchlist InteractionType = "watchlist"
	InteractionWatched   InteractionType = "watched"
)

// Interaction is a user's personal watch state for one catalog entry.
//
// Metadata holds the catalog payload for watchlist entries and
// {"show_id": N} for watched episodes.
type Interaction struct {
	ID          string          `json:"id"          db:"id"`
	UserID      string          `json:"userId"      db:"user_id"`
	ContentID   int64           `json:"contentId"   db:"content_id"`
	ContentType ContentType     `json:"contentType" db:"content_type"`
	Type        InteractionType `json:"type"        db:"interaction_type"`
	Metadata    json.RawMessage `json:"metadata"    db:"metadata"`
	CreatedAt   time.Time       `json:"createdAt"   db:"created_at"`
}

// UserContent is a user's personal content grouped for display.
type UserContent struct {
	Watchlist       []json.RawMessage `json:"watchlist"`
	WatchedIDs      []int64           `json:"watchedIds"`
	WatchedEpisodes map[int64][]int64 `json:"watchedEpisodes"`
}
