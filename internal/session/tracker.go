package session

import (
	"context"
	"log/slog"
)

// StoreMigrationSourceIfAnonymous records the current user's id as the
// migration source when the current session is anonymous. It runs before
// every sign-in so the anonymous user's data can follow them into the
// account they are about to sign in to.
func (s *Service) StoreMigrationSourceIfAnonymous(ctx context.Context) {
	user, err := s.auth.GetUser(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "could not read session before sign-in", slog.String("error", err.Error()))
		return
	}
	if user != nil && user.IsAnonymous {
		s.store.Set(KeyMigrationOldUserID, user.ID)
	}
}

// MigrationOldUserID returns the stored migration source, or "".
func (s *Service) MigrationOldUserID() string {
	id, _ := s.store.Get(KeyMigrationOldUserID)
	return id
}

func (s *Service) ClearMigrationOldUserID() {
	s.store.Remove(KeyMigrationOldUserID)
}
