package model

// AuthProvider is how the current user signed in, as the UI sees it.
type AuthProvider string

const (
	AuthProviderAnonymous AuthProvider = "anonymous"
	AuthProviderEmail     AuthProvider = "email"
	AuthProviderGoogle    AuthProvider = "google"
	AuthProviderUnknown   AuthProvider = "unknown"
)

// UserProfile is the normalized view of the signed-in user.
//
// It is derived from the backend user on every query and never stored.
type UserProfile struct {
	ID          string       `json:"id"`
	Email       string       `json:"email,omitempty"`
	DisplayName string       `json:"displayName,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
	Provider    AuthProvider `json:"provider"`
	IsAnonymous bool         `json:"isAnonymous"`
}
