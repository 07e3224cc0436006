// Package navigation decides where a browser goes after it finishes logging in.
//
// The only deep link that survives a login round trip is a list invite
// (/lists/{id}/join, optionally with ?role=editor|viewer). Everything else
// sends the user home.
package navigation

import (
	"net/url"
	"regexp"
	"strings"
)

// Route patterns used in Destination.To.
const (
	RouteHome     = "/"
	RouteJoinList = "/lists/$id/join"
)

// InviteRole is a role an invite link may propose.
type InviteRole string

const (
	InviteEditor InviteRole = "editor"
	InviteViewer InviteRole = "viewer"
)

var invitePath = regexp.MustCompile(`^/lists/([^/]+)/join$`)

// Destination is a typed navigation instruction. Params and Search are nil
// when the route takes none.
type Destination struct {
	To     string            `json:"to"`
	Params map[string]string `json:"params,omitempty"`
	Search map[string]string `json:"search,omitempty"`
}

// IsInvitePath reports whether path (with or without a query string) has the
// shape of an invite link.
func IsInvitePath(path string) bool {
	pathname, _, _ := strings.Cut(path, "?")
	return invitePath.MatchString(pathname)
}

// Resolve turns a saved post-login target into a Destination. An empty,
// malformed or non-invite target resolves to the home route. A role query
// parameter is forwarded only when it is exactly "editor" or "viewer".
func Resolve(target string) Destination {
	home := Destination{To: RouteHome}
	if target == "" {
		return home
	}

	pathname, query, _ := strings.Cut(target, "?")
	m := invitePath.FindStringSubmatch(pathname)
	if m == nil {
		return home
	}

	id, err := url.PathUnescape(m[1])
	if err != nil || id == "" {
		return home
	}

	dest := Destination{
		To:     RouteJoinList,
		Params: map[string]string{"id": id},
	}

	// ParseQuery keeps the pairs it could parse even when it reports an error.
	values, _ := url.ParseQuery(query)
	switch role := InviteRole(values.Get("role")); role {
	case InviteEditor, InviteViewer:
		dest.Search = map[string]string{"role": string(role)}
	}

	return dest
}

// Href renders the destination as a local URL.
func (d Destination) Href() string {
	if d.To != RouteJoinList {
		return RouteHome
	}

	href := "/lists/" + url.PathEscape(d.Params["id"]) + "/join"
	if role := d.Search["role"]; role != "" {
		href += "?" + url.Values{"role": {role}}.Encode()
	}
	return href
}

// InviteURL builds an absolute invite link for a list.
func InviteURL(baseURL, listID string, role InviteRole) string {
	d := Destination{To: RouteJoinList, Params: map[string]string{"id": listID}}
	if role == InviteEditor || role == InviteViewer {
		d.Search = map[string]string{"role": string(role)}
	}
	return strings.TrimRight(baseURL, "/") + d.Href()
}
