package model

import "time"

// Role is a member's permission level on a shared list.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role may add or remove list items.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// ContentType is the kind of catalog entry an item points at.
type ContentType string

const (
	ContentMovie   ContentType = "movie"
	ContentTV      ContentType = "tv"
	ContentEpisode ContentType = "episode"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentMovie, ContentTV, ContentEpisode:
		return true
	}
	return false
}

// List is a shared watchlist. Role is the requesting user's role and is only
// populated by queries that join list_members.
type List struct {
	ID        string    `json:"id"        db:"id"`
	Name      string    `json:"name"      db:"name"`
	OwnerID   string    `json:"ownerId"   db:"owner_id"`
	Role      Role      `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ListMember is one user's membership in a list.
type ListMember struct {
	ListID    string    `json:"listId"    db:"list_id"`
	UserID    string    `json:"userId"    db:"user_id"`
	Role      Role      `json:"role"      db:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ListItem is a catalog entry placed on a list. ContentID is the media
// catalog's numeric id.
type ListItem struct {
	ID          string      `json:"id"          db:"id"`
	ListID      string      `json:"listId"      db:"list_id"`
	ContentID   int64       `json:"contentId"   db:"content_id"`
	ContentType ContentType `json:"contentType" db:"content_type"`
	AddedBy     string      `json:"addedBy"     db:"added_by"`
	CreatedAt   time.Time   `json:"createdAt"   db:"created_at"`
}

// ListDetails bundles a list with its items.
type ListDetails struct {
	List  List       `json:"list"`
	Items []ListItem `json:"items"`
}
