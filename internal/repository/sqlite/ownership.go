package sqlite

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

var _ repository.OwnershipRepository = (*DB)(nil)

// HasContent reports whether the user has any interaction, owns any list or
// is a member of any list. The three counts run concurrently.
func (db *DB) HasContent(ctx context.Context, userID string) (bool, error) {
	queries := []string{
		`SELECT COUNT(*) FROM user_interactions WHERE user_id = ?`,
		`SELECT COUNT(*) FROM lists WHERE owner_id = ?`,
		`SELECT COUNT(*) FROM list_members WHERE user_id = ?`,
	}
	counts := make([]int64, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			return db.conn.QueryRowContext(gctx, q, userID).Scan(&counts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("sqlite: counting content of %s: %w", userID, err)
	}

	for _, n := range counts {
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// MigrateUserData moves everything oldUserID owns to newUserID in one
// transaction:
//
//   - interactions move unless newUserID already has the same entry, in
//     which case the old row is dropped;
//   - owned lists change owner;
//   - memberships move; where newUserID was already a member, the stronger
//     of the two roles is kept (owner > editor > viewer);
//   - items added by oldUserID are attributed to newUserID.
//
// Nothing is done when the ids are empty or equal.
func (db *DB) MigrateUserData(ctx context.Context, oldUserID, newUserID string) error {
	if oldUserID == "" || newUserID == "" || oldUserID == newUserID {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning user data migration: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		name  string
		query string
		args  []any
	}{
		{
			"moving interactions",
			`UPDATE OR IGNORE user_interactions SET user_id = ? WHERE user_id = ?`,
			[]any{newUserID, oldUserID},
		},
		{
			"dropping duplicate interactions",
			`DELETE FROM user_interactions WHERE user_id = ?`,
			[]any{oldUserID},
		},
		{
			"transferring list ownership",
			`UPDATE lists SET owner_id = ? WHERE owner_id = ?`,
			[]any{newUserID, oldUserID},
		},
		{
			"promoting existing memberships",
			`UPDATE list_members AS n
			 SET role = (SELECT o.role FROM list_members o WHERE o.list_id = n.list_id AND o.user_id = ?)
			 WHERE n.user_id = ?
			   AND EXISTS (
			     SELECT 1 FROM list_members o
			     WHERE o.list_id = n.list_id AND o.user_id = ?
			       AND (o.role = ? OR (o.role = ? AND n.role = ?))
			   )`,
			[]any{oldUserID, newUserID, oldUserID, model.RoleOwner, model.RoleEditor, model.RoleViewer},
		},
		{
			"moving memberships",
			`UPDATE OR IGNORE list_members SET user_id = ? WHERE user_id = ?`,
			[]any{newUserID, oldUserID},
		},
		{
			"dropping duplicate memberships",
			`DELETE FROM list_members WHERE user_id = ?`,
			[]any{oldUserID},
		},
		{
			"reattributing list items",
			`UPDATE list_items SET added_by = ? WHERE added_by = ?`,
			[]any{newUserID, oldUserID},
		},
	}

	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("sqlite: %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user data migration: %w", err)
	}
	return nil
}
