package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akruel/list-flix/internal/model"
)

func TestProfileFromUser(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		want *model.UserProfile
	}{
		{
			name: "nil user",
			user: nil,
			want: nil,
		},
		{
			name: "anonymous wins over provider tag",
			user: &model.User{ID: "a", IsAnonymous: true, Provider: model.ProviderTagGoogle},
			want: &model.UserProfile{ID: "a", Provider: model.AuthProviderAnonymous, IsAnonymous: true},
		},
		{
			name: "google with full name and picture",
			user: &model.User{
				ID:       "g",
				Email:    "ana@example.com",
				Provider: model.ProviderTagGoogle,
				Metadata: map[string]string{
					model.MetaFullName: "Ana Souza",
					model.MetaName:     "Ana",
					model.MetaPicture:  "https://img.example/p.png",
				},
			},
			want: &model.UserProfile{
				ID:          "g",
				Email:       "ana@example.com",
				DisplayName: "Ana Souza",
				AvatarURL:   "https://img.example/p.png",
				Provider:    model.AuthProviderGoogle,
			},
		},
		{
			name: "display name beats full name, avatar_url beats picture",
			user: &model.User{
				ID:       "e",
				Email:    "ana@example.com",
				Provider: model.ProviderTagEmail,
				Metadata: map[string]string{
					model.MetaDisplayName: "ana",
					model.MetaFullName:    "Ana Souza",
					model.MetaAvatarURL:   "a.png",
					model.MetaPicture:     "p.png",
				},
			},
			want: &model.UserProfile{
				ID:          "e",
				Email:       "ana@example.com",
				DisplayName: "ana",
				AvatarURL:   "a.png",
				Provider:    model.AuthProviderEmail,
			},
		},
		{
			name: "generic name",
			user: &model.User{ID: "n", Provider: "github", Metadata: map[string]string{model.MetaName: "Ana"}},
			want: &model.UserProfile{ID: "n", DisplayName: "Ana", Provider: model.AuthProviderUnknown},
		},
		{
			name: "falls back to email local part",
			user: &model.User{ID: "x", Email: "bob.lee@example.com", Provider: model.ProviderTagEmail},
			want: &model.UserProfile{
				ID:          "x",
				Email:       "bob.lee@example.com",
				DisplayName: "bob.lee",
				Provider:    model.AuthProviderEmail,
			},
		},
		{
			name: "nothing to show",
			user: &model.User{ID: "y"},
			want: &model.UserProfile{ID: "y", Provider: model.AuthProviderUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProfileFromUser(tt.user))
		})
	}
}
