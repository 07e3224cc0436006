// Package migration moves an anonymous visitor's lists and watch history to
// the account they just signed in to.
package migration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/notify"
)

// User-facing messages.
const (
	MsgSuccess = "Your lists and data were migrated successfully!"
	MsgFailure = "There was a problem migrating your data. Please contact support."
)

type Service struct {
	data     backend.Data
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(data backend.Data, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{data: data, notifier: notifier, logger: logger}
}

// MigrateAnonymousUserData asks the backend to reassign oldUserID's content
// to newUserID. Empty or equal ids are a no-op. The outcome is reported to
// the user through the notifier; the caller never sees an error, since a
// failed migration must not undo a successful login.
func (s *Service) MigrateAnonymousUserData(ctx context.Context, oldUserID, newUserID string) {
	if oldUserID == "" || newUserID == "" || oldUserID == newUserID {
		return
	}

	if err := s.migrate(ctx, oldUserID, newUserID); err != nil {
		s.logger.ErrorContext(ctx, "user data migration failed",
			slog.String("from", oldUserID),
			slog.String("to", newUserID),
			slog.String("error", err.Error()),
		)
		s.notifier.Error(ctx, MsgFailure)
		return
	}

	s.notifier.Success(ctx, MsgSuccess)
}

// migrate turns a panicking backend into an ordinary error.
func (s *Service) migrate(ctx context.Context, oldUserID, newUserID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migration: panic: %v", r)
		}
	}()
	return s.data.MigrateUserData(ctx, oldUserID, newUserID)
}
