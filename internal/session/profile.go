package session

import (
	"strings"

	"github.com/akruel/list-flix/internal/model"
)

// ProfileFromUser maps a backend user to the profile the UI shows. It
// returns nil for a nil user.
//
// The provider is "anonymous" whenever the user is anonymous, whatever tag
// the record carries. The display name is the first non-empty of
// display_name, full_name, name and the email's local part.
func ProfileFromUser(u *model.User) *model.UserProfile {
	if u == nil {
		return nil
	}

	return &model.UserProfile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: displayName(u),
		AvatarURL:   firstNonEmpty(u.Meta(model.MetaAvatarURL), u.Meta(model.MetaPicture)),
		Provider:    mapProvider(u.Provider, u.IsAnonymous),
		IsAnonymous: u.IsAnonymous,
	}
}

func mapProvider(tag string, anonymous bool) model.AuthProvider {
	if anonymous {
		return model.AuthProviderAnonymous
	}
	switch tag {
	case model.ProviderTagEmail:
		return model.AuthProviderEmail
	case model.ProviderTagGoogle:
		return model.AuthProviderGoogle
	}
	return model.AuthProviderUnknown
}

func displayName(u *model.User) string {
	return firstNonEmpty(
		u.Meta(model.MetaDisplayName),
		u.Meta(model.MetaFullName),
		u.Meta(model.MetaName),
		emailLocalPart(u.Email),
	)
}

func emailLocalPart(email string) string {
	if email == "" {
		return ""
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
