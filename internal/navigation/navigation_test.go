package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   Destination
	}{
		{
			name:   "empty target goes home",
			target: "",
			want:   Destination{To: "/"},
		},
		{
			name:   "invite with editor role",
			target: "/lists/abc/join?role=editor",
			want: Destination{
				To:     "/lists/$id/join",
				Params: map[string]string{"id": "abc"},
				Search: map[string]string{"role": "editor"},
			},
		},
		{
			name:   "invite with viewer role",
			target: "/lists/abc/join?role=viewer",
			want: Destination{
				To:     "/lists/$id/join",
				Params: map[string]string{"id": "abc"},
				Search: map[string]string{"role": "viewer"},
			},
		},
		{
			name:   "invalid role is dropped but join is kept",
			target: "/lists/abc/join?role=owner",
			want: Destination{
				To:     "/lists/$id/join",
				Params: map[string]string{"id": "abc"},
			},
		},
		{
			name:   "invite without query",
			target: "/lists/abc/join",
			want: Destination{
				To:     "/lists/$id/join",
				Params: map[string]string{"id": "abc"},
			},
		},
		{
			name:   "encoded id is decoded",
			target: "/lists/a%20b/join",
			want: Destination{
				To:     "/lists/$id/join",
				Params: map[string]string{"id": "a b"},
			},
		},
		{
			name:   "non-invite path goes home",
			target: "/search",
			want:   Destination{To: "/"},
		},
		{
			name:   "nested path is not an invite",
			target: "/lists/abc/def/join",
			want:   Destination{To: "/"},
		},
		{
			name:   "malformed escape goes home",
			target: "/lists/%zz/join",
			want:   Destination{To: "/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.target))
		})
	}
}

func TestIsInvitePath(t *testing.T) {
	assert.True(t, IsInvitePath("/lists/abc/join"))
	assert.True(t, IsInvitePath("/lists/abc/join?role=editor"))
	assert.False(t, IsInvitePath("/lists/abc"))
	assert.False(t, IsInvitePath("/lists//join"))
	assert.False(t, IsInvitePath("https://evil.example/lists/abc/join"))
}

func TestHref(t *testing.T) {
	assert.Equal(t, "/", Resolve("").Href())
	assert.Equal(t, "/lists/abc/join?role=editor", Resolve("/lists/abc/join?role=editor").Href())
	assert.Equal(t, "/lists/abc/join", Resolve("/lists/abc/join?role=owner").Href())
	assert.Equal(t, "/lists/a%20b/join", Resolve("/lists/a%20b/join").Href())
}

func TestInviteURL(t *testing.T) {
	assert.Equal(t, "https://flix.example/lists/l1/join?role=viewer",
		InviteURL("https://flix.example/", "l1", InviteViewer))
	assert.Equal(t, "http://localhost:8080/lists/l1/join",
		InviteURL("http://localhost:8080", "l1", ""))
}
