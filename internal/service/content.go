package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

// MaxEpisodesPerCall bounds one MarkEpisodes request (a long-running show
// has a few thousand episodes at most).
const MaxEpisodesPerCall = 5000

// CatalogItem is the part of a catalog payload the service needs. The rest
// of the payload is stored untouched as watchlist metadata.
type CatalogItem struct {
	ID        int64             `json:"id"`
	MediaType model.ContentType `json:"media_type"`
}

// SyncInput is a guest's locally kept content, uploaded in one go.
type SyncInput struct {
	Watchlist       []json.RawMessage `json:"watchlist"`
	WatchedIDs      []int64           `json:"watchedIds"`
	WatchedEpisodes map[int64][]int64 `json:"watchedEpisodes"`
}

// ContentService manages a user's personal watchlist and watched history.
type ContentService struct {
	repo   repository.InteractionRepository
	logger *slog.Logger
}

func NewContentService(repo repository.InteractionRepository, logger *slog.Logger) *ContentService {
	return &ContentService{repo: repo, logger: logger}
}

// Get returns the user's content grouped for display: watchlist payloads in
// the order they were added, watched movie/tv ids, and watched episodes
// keyed by show.
func (s *ContentService) Get(ctx context.Context, userID string) (*model.UserContent, error) {
	rows, err := s.repo.ListInteractions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user content: %w", err)
	}

	out := &model.UserContent{
		Watchlist:       []json.RawMessage{},
		WatchedIDs:      []int64{},
		WatchedEpisodes: map[int64][]int64{},
	}
	for _, in := range rows {
		switch {
		case in.Type == model.InteractionWatchlist:
			out.Watchlist = append(out.Watchlist, in.Metadata)
		case in.ContentType == model.ContentEpisode:
			var meta repository.EpisodeMeta
			if err := json.Unmarshal(in.Metadata, &meta); err != nil || meta.ShowID == 0 {
				continue
			}
			out.WatchedEpisodes[meta.ShowID] = append(out.WatchedEpisodes[meta.ShowID], in.ContentID)
		default:
			out.WatchedIDs = append(out.WatchedIDs, in.ContentID)
		}
	}
	return out, nil
}

// AddToWatchlist stores a catalog payload on the user's watchlist. The id
// and media type are read from the payload itself.
func (s *ContentService) AddToWatchlist(ctx context.Context, userID string, payload json.RawMessage) error {
	item, err := parseCatalogItem(payload)
	if err != nil {
		return err
	}
	if item.MediaType == model.ContentEpisode {
		return apperror.ValidationFailed("media_type", "episodes cannot be added to the watchlist")
	}

	return s.repo.AddInteraction(ctx, &model.Interaction{
		UserID:      userID,
		ContentID:   item.ID,
		ContentType: item.MediaType,
		Type:        model.InteractionWatchlist,
		Metadata:    payload,
	})
}

func (s *ContentService) RemoveFromWatchlist(ctx context.Context, userID string, contentID int64) error {
	return s.repo.DeleteInteraction(ctx, userID, contentID, model.InteractionWatchlist)
}

// MarkWatched records a movie or tv show as watched. contentType defaults to
// movie.
func (s *ContentService) MarkWatched(ctx context.Context, userID string, contentID int64, contentType model.ContentType, metadata json.RawMessage) error {
	if contentID <= 0 {
		return apperror.ValidationFailed("contentId", "content ID must be positive")
	}
	if contentType == "" {
		contentType = model.ContentMovie
	}
	if contentType != model.ContentMovie && contentType != model.ContentTV {
		return apperror.ValidationFailed("contentType", "content type must be movie or tv")
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return apperror.ValidationFailed("metadata", "metadata must be valid JSON")
	}

	return s.repo.AddInteraction(ctx, &model.Interaction{
		UserID:      userID,
		ContentID:   contentID,
		ContentType: contentType,
		Type:        model.InteractionWatched,
		Metadata:    metadata,
	})
}

func (s *ContentService) MarkUnwatched(ctx context.Context, userID string, contentID int64) error {
	return s.repo.DeleteInteraction(ctx, userID, contentID, model.InteractionWatched)
}

// MarkEpisodes marks episodes of one show as watched.
func (s *ContentService) MarkEpisodes(ctx context.Context, userID string, showID int64, episodeIDs []int64) error {
	if err := validateEpisodes(showID, episodeIDs); err != nil {
		return err
	}
	return s.repo.MarkEpisodes(ctx, userID, showID, episodeIDs)
}

func (s *ContentService) UnmarkEpisodes(ctx context.Context, userID string, episodeIDs []int64) error {
	if len(episodeIDs) > MaxEpisodesPerCall {
		return apperror.ValidationFailed("episodeIds",
			fmt.Sprintf("at most %d episodes per request", MaxEpisodesPerCall))
	}
	return s.repo.UnmarkEpisodes(ctx, userID, episodeIDs)
}

// Sync uploads content kept outside the account. Entries the user already
// has are skipped; unreadable watchlist payloads are logged and skipped.
func (s *ContentService) Sync(ctx context.Context, userID string, in SyncInput) error {
	types := make(map[int64]model.ContentType, len(in.Watchlist))
	for _, payload := range in.Watchlist {
		item, err := parseCatalogItem(payload)
		if err != nil || item.MediaType == model.ContentEpisode {
			s.logger.WarnContext(ctx, "skipping unreadable watchlist entry", slog.String("userID", userID))
			continue
		}
		types[item.ID] = item.MediaType
		if err := s.repo.AddInteraction(ctx, &model.Interaction{
			UserID:      userID,
			ContentID:   item.ID,
			ContentType: item.MediaType,
			Type:        model.InteractionWatchlist,
			Metadata:    payload,
		}); err != nil {
			return fmt.Errorf("syncing watchlist: %w", err)
		}
	}

	for _, id := range in.WatchedIDs {
		contentType, ok := types[id]
		if !ok {
			contentType = model.ContentMovie
		}
		if err := s.MarkWatched(ctx, userID, id, contentType, nil); err != nil {
			return fmt.Errorf("syncing watched: %w", err)
		}
	}

	for showID, episodes := range in.WatchedEpisodes {
		if err := s.MarkEpisodes(ctx, userID, showID, episodes); err != nil {
			return fmt.Errorf("syncing episodes of %d: %w", showID, err)
		}
	}

	s.logger.Info("local content synced",
		slog.String("userID", userID),
		slog.Int("watchlist", len(in.Watchlist)),
		slog.Int("watched", len(in.WatchedIDs)),
		slog.Int("shows", len(in.WatchedEpisodes)),
	)
	return nil
}

func parseCatalogItem(payload json.RawMessage) (CatalogItem, error) {
	var item CatalogItem
	if len(payload) == 0 {
		return item, apperror.ValidationFailed("item", "catalog item is required")
	}
	if err := json.Unmarshal(payload, &item); err != nil {
		return item, apperror.ValidationFailed("item", "catalog item must be a JSON object")
	}
	if item.ID <= 0 {
		return item, apperror.ValidationFailed("id", "catalog item needs a positive id")
	}
	if !item.MediaType.Valid() {
		return item, apperror.ValidationFailed("media_type", "media_type must be movie, tv or episode")
	}
	return item, nil
}

func validateEpisodes(showID int64, episodeIDs []int64) error {
	if showID <= 0 {
		return apperror.ValidationFailed("showId", "show ID must be positive")
	}
	if len(episodeIDs) > MaxEpisodesPerCall {
		return apperror.ValidationFailed("episodeIds",
			fmt.Sprintf("at most %d episodes per request", MaxEpisodesPerCall))
	}
	for _, id := range episodeIDs {
		if id <= 0 {
			return apperror.ValidationFailed("episodeIds", "episode IDs must be positive")
		}
	}
	return nil
}
