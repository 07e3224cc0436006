package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

var _ repository.ListRepository = (*DB)(nil)

// CreateList inserts the list and its owner membership in one transaction.
// list.OwnerID must be set.
func (db *DB) CreateList(ctx context.Context, list *model.List) error {
	list.ID = xid.New().String()
	list.CreatedAt = now()
	list.Role = model.RoleOwner

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning list create: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lists (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		list.ID, list.Name, list.OwnerID, list.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: creating list: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO list_members (list_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		list.ID, list.OwnerID, model.RoleOwner, list.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: adding list owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing list create: %w", err)
	}
	return nil
}

// ListsForUser returns every list the user is a member of, newest first,
// with the user's role filled in.
func (db *DB) ListsForUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.List, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT l.id, l.name, l.owner_id, m.role, l.created_at
		 FROM lists l
		 JOIN list_members m ON m.list_id = l.id
		 WHERE m.user_id = ?
		 ORDER BY l.created_at DESC, l.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing lists for %s: %w", userID, err)
	}
	defer rows.Close()

	lists := make([]model.List, 0)
	for rows.Next() {
		var l model.List
		if err := rows.Scan(&l.ID, &l.Name, &l.OwnerID, &l.Role, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning list row: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating lists: %w", err)
	}
	return lists, nil
}

func (db *DB) GetListForUser(ctx context.Context, listID, userID string) (*model.List, error) {
	var l model.List
	err := db.conn.QueryRowContext(ctx,
		`SELECT l.id, l.name, l.owner_id, m.role, l.created_at
		 FROM lists l
		 JOIN list_members m ON m.list_id = l.id
		 WHERE l.id = ? AND m.user_id = ?`,
		listID, userID,
	).Scan(&l.ID, &l.Name, &l.OwnerID, &l.Role, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("list", listID)
		}
		return nil, fmt.Errorf("sqlite: getting list %s: %w", listID, err)
	}
	return &l, nil
}

func (db *DB) ListExists(ctx context.Context, listID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM lists WHERE id = ?)`, listID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking list %s: %w", listID, err)
	}
	return exists, nil
}

func (db *DB) GetMember(ctx context.Context, listID, userID string) (*model.ListMember, error) {
	var m model.ListMember
	err := db.conn.QueryRowContext(ctx,
		`SELECT list_id, user_id, role, created_at
		 FROM list_members
		 WHERE list_id = ? AND user_id = ?`,
		listID, userID,
	).Scan(&m.ListID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("list member", userID)
		}
		return nil, fmt.Errorf("sqlite: getting member %s of %s: %w", userID, listID, err)
	}
	return &m, nil
}

// AddMember inserts a membership. An existing membership is left untouched
// and reported as apperror.ErrConflict.
func (db *DB) AddMember(ctx context.Context, member *model.ListMember) error {
	member.CreatedAt = now()

	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO list_members (list_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		member.ListID, member.UserID, member.Role, member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding member to %s: %w", member.ListID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("list member", member.UserID)
	}
	return nil
}

func (db *DB) UpdateMemberRole(ctx context.Context, listID, userID string, role model.Role) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE list_members SET role = ? WHERE list_id = ? AND user_id = ?`,
		role, listID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating role of %s on %s: %w", userID, listID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("list member", userID)
	}
	return nil
}

// AddItem places a catalog entry on a list. Adding the same entry twice is
// reported as apperror.ErrConflict.
func (db *DB) AddItem(ctx context.Context, item *model.ListItem) error {
	item.ID = xid.New().String()
	item.CreatedAt = now()

	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO list_items (id, list_id, content_id, content_type, added_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.ListID, item.ContentID, item.ContentType, item.AddedBy, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding item to %s: %w", item.ListID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("list item", fmt.Sprintf("%s/%d", item.ContentType, item.ContentID))
	}
	return nil
}

func (db *DB) GetItem(ctx context.Context, itemID string) (*model.ListItem, error) {
	var it model.ListItem
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, list_id, content_id, content_type, added_by, created_at
		 FROM list_items WHERE id = ?`,
		itemID,
	).Scan(&it.ID, &it.ListID, &it.ContentID, &it.ContentType, &it.AddedBy, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("list item", itemID)
		}
		return nil, fmt.Errorf("sqlite: getting item %s: %w", itemID, err)
	}
	return &it, nil
}

// ListItems returns the items of a list, newest first.
func (db *DB) ListItems(ctx context.Context, listID string) ([]model.ListItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, list_id, content_id, content_type, added_by, created_at
		 FROM list_items
		 WHERE list_id = ?
		 ORDER BY created_at DESC, id DESC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items of %s: %w", listID, err)
	}
	defer rows.Close()

	items := make([]model.ListItem, 0)
	for rows.Next() {
		var it model.ListItem
		if err := rows.Scan(&it.ID, &it.ListID, &it.ContentID, &it.ContentType, &it.AddedBy, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}
	return items, nil
}

func (db *DB) DeleteItem(ctx context.Context, itemID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM list_items WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting item %s: %w", itemID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("list item", itemID)
	}
	return nil
}
