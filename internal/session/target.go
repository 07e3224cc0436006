package session

import "github.com/akruel/list-flix/internal/navigation"

// SavePostLoginTarget remembers path so the user lands there after logging
// in. Only invite links are kept; anything else is ignored.
func (s *Service) SavePostLoginTarget(path string) {
	if navigation.IsInvitePath(path) {
		s.store.Set(KeyPostLoginTarget, path)
	}
}

// ConsumePostLoginTarget returns the saved target and clears it. The stored
// value is cleared even when it is not a valid invite link, in which case
// "" is returned.
func (s *Service) ConsumePostLoginTarget() string {
	target, _ := s.store.Get(KeyPostLoginTarget)
	s.store.Remove(KeyPostLoginTarget)

	if !navigation.IsInvitePath(target) {
		return ""
	}
	return target
}

// GetPostLoginTarget peeks at the saved target without clearing it.
func (s *Service) GetPostLoginTarget() string {
	target, _ := s.store.Get(KeyPostLoginTarget)
	if !navigation.IsInvitePath(target) {
		return ""
	}
	return target
}

// ConsumePostLoginDestination consumes the target and resolves it to where
// the browser should go next.
func (s *Service) ConsumePostLoginDestination() navigation.Destination {
	return navigation.Resolve(s.ConsumePostLoginTarget())
}
