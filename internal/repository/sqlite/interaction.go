package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

var _ repository.InteractionRepository = (*DB)(nil)

// AddInteraction records a watchlist or watched entry. Recording the same
// entry twice keeps the first row and is not an error.
func (db *DB) AddInteraction(ctx context.Context, in *model.Interaction) error {
	in.ID = xid.New().String()
	in.CreatedAt = now()
	meta := string(in.Metadata)
	if meta == "" {
		meta = "{}"
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_interactions
		   (id, user_id, content_id, content_type, interaction_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.ContentID, in.ContentType, in.Type, meta, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding %s interaction: %w", in.Type, err)
	}
	return nil
}

// DeleteInteraction removes a movie or tv interaction. Episodes are removed
// with UnmarkEpisodes.
func (db *DB) DeleteInteraction(ctx context.Context, userID string, contentID int64, kind model.InteractionType) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_interactions
		 WHERE user_id = ? AND content_id = ? AND interaction_type = ? AND content_type != ?`,
		userID, contentID, kind, model.ContentEpisode,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s interaction: %w", kind, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(string(kind)+" entry", fmt.Sprint(contentID))
	}
	return nil
}

// ListInteractions returns all of the user's interactions, oldest first.
func (db *DB) ListInteractions(ctx context.Context, userID string) ([]model.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, content_id, content_type, interaction_type, metadata, created_at
		 FROM user_interactions
		 WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var (
			in   model.Interaction
			meta string
		)
		if err := rows.Scan(&in.ID, &in.UserID, &in.ContentID, &in.ContentType, &in.Type, &meta, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning interaction row: %w", err)
		}
		in.Metadata = []byte(meta)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating interactions: %w", err)
	}
	return out, nil
}

// MarkEpisodes marks every episode as watched in one transaction. Episodes
// already marked are skipped.
func (db *DB) MarkEpisodes(ctx context.Context, userID string, showID int64, episodeIDs []int64) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning episode mark: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO user_interactions
		   (id, user_id, content_id, content_type, interaction_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing episode insert: %w", err)
	}
	defer stmt.Close()

	meta := string(repository.EncodeEpisodeMeta(showID))
	ts := now()
	for _, id := range episodeIDs {
		if _, err := stmt.ExecContext(ctx,
			xid.New().String(), userID, id, model.ContentEpisode, model.InteractionWatched, meta, ts,
		); err != nil {
			return fmt.Errorf("sqlite: marking episode %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing episode mark: %w", err)
	}
	return nil
}

func (db *DB) UnmarkEpisodes(ctx context.Context, userID string, episodeIDs []int64) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning episode unmark: %w", err)
	}
	defer tx.Rollback()

	for _, id := range episodeIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_interactions
			 WHERE user_id = ? AND content_id = ? AND content_type = ? AND interaction_type = ?`,
			userID, id, model.ContentEpisode, model.InteractionWatched,
		); err != nil {
			return fmt.Errorf("sqlite: unmarking episode %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing episode unmark: %w", err)
	}
	return nil
}
