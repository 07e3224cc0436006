package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/repository"
)

// mockInteractionRepo keeps interactions in insertion order and ignores
// duplicates, like the unique index does.
type mockInteractionRepo struct {
	rows []model.Interaction
}

func (m *mockInteractionRepo) find(userID string, contentID int64, ct model.ContentType, kind model.InteractionType) int {
	for i, r := range m.rows {
		if r.UserID == userID && r.ContentID == contentID && r.ContentType == ct && r.Type == kind {
			return i
		}
	}
	return -1
}

func (m *mockInteractionRepo) AddInteraction(_ context.Context, in *model.Interaction) error {
	if m.find(in.UserID, in.ContentID, in.ContentType, in.Type) >= 0 {
		return nil
	}
	in.ID = fmt.Sprintf("i-%d", len(m.rows)+1)
	if len(in.Metadata) == 0 {
		in.Metadata = json.RawMessage(`{}`)
	}
	m.rows = append(m.rows, *in)
	return nil
}

func (m *mockInteractionRepo) DeleteInteraction(_ context.Context, userID string, contentID int64, kind model.InteractionType) error {
	for i, r := range m.rows {
		if r.UserID == userID && r.ContentID == contentID && r.Type == kind && r.ContentType != model.ContentEpisode {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound(string(kind)+" entry", fmt.Sprint(contentID))
}

func (m *mockInteractionRepo) ListInteractions(_ context.Context, userID string) ([]model.Interaction, error) {
	var out []model.Interaction
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockInteractionRepo) MarkEpisodes(ctx context.Context, userID string, showID int64, episodeIDs []int64) error {
	for _, id := range episodeIDs {
		_ = m.AddInteraction(ctx, &model.Interaction{
			UserID:      userID,
			ContentID:   id,
			ContentType: model.ContentEpisode,
			Type:        model.InteractionWatched,
			Metadata:    repository.EncodeEpisodeMeta(showID),
		})
	}
	return nil
}

func (m *mockInteractionRepo) UnmarkEpisodes(_ context.Context, userID string, episodeIDs []int64) error {
	drop := make(map[int64]bool, len(episodeIDs))
	for _, id := range episodeIDs {
		drop[id] = true
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.UserID == userID && r.ContentType == model.ContentEpisode && drop[r.ContentID] {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func newTestContentService() (*ContentService, *mockInteractionRepo) {
	repo := &mockInteractionRepo{}
	return NewContentService(repo, testLogger()), repo
}

func TestContentGet_Grouping(t *testing.T) {
	svc, _ := newTestContentService()
	ctx := context.Background()

	require.NoError(t, svc.AddToWatchlist(ctx, "u1", json.RawMessage(`{"id":603,"media_type":"movie","title":"The Matrix"}`)))
	require.NoError(t, svc.AddToWatchlist(ctx, "u1", json.RawMessage(`{"id":1396,"media_type":"tv"}`)))
	require.NoError(t, svc.MarkWatched(ctx, "u1", 603, "", nil))
	require.NoError(t, svc.MarkEpisodes(ctx, "u1", 1396, []int64{62085, 62086}))
	require.NoError(t, svc.MarkWatched(ctx, "u2", 999, model.ContentTV, nil))

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, got.Watchlist, 2)
	assert.JSONEq(t, `{"id":603,"media_type":"movie","title":"The Matrix"}`, string(got.Watchlist[0]))
	assert.Equal(t, []int64{603}, got.WatchedIDs)
	assert.Equal(t, map[int64][]int64{1396: {62085, 62086}}, got.WatchedEpisodes)
}

func TestContentGet_Empty(t *testing.T) {
	svc, _ := newTestContentService()

	got, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"watchlist":[],"watchedIds":[],"watchedEpisodes":{}}`, string(b))
}

func TestContentAddToWatchlist_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `{id:1}`},
		{"missing id", `{"media_type":"movie"}`},
		{"bad media type", `{"id":1,"media_type":"book"}`},
		{"episode", `{"id":1,"media_type":"episode"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestContentService()
			err := svc.AddToWatchlist(context.Background(), "u1", json.RawMessage(tt.payload))
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, repo.rows)
		})
	}
}

func TestContentWatchedRoundTrip(t *testing.T) {
	svc, repo := newTestContentService()
	ctx := context.Background()

	require.NoError(t, svc.MarkWatched(ctx, "u1", 10, model.ContentTV, json.RawMessage(`{"name":"x"}`)))
	require.NoError(t, svc.MarkWatched(ctx, "u1", 10, model.ContentTV, nil), "marking twice is fine")
	assert.Len(t, repo.rows, 1)

	require.NoError(t, svc.MarkUnwatched(ctx, "u1", 10))
	assert.ErrorIs(t, svc.MarkUnwatched(ctx, "u1", 10), apperror.ErrNotFound)

	assert.ErrorIs(t, svc.MarkWatched(ctx, "u1", 10, model.ContentEpisode, nil), apperror.ErrValidation)
	assert.ErrorIs(t, svc.MarkWatched(ctx, "u1", 10, "", json.RawMessage(`{`)), apperror.ErrValidation)
}

func TestContentEpisodes(t *testing.T) {
	svc, _ := newTestContentService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.MarkEpisodes(ctx, "u1", 0, []int64{1}), apperror.ErrValidation)
	assert.ErrorIs(t, svc.MarkEpisodes(ctx, "u1", 5, []int64{1, -2}), apperror.ErrValidation)

	require.NoError(t, svc.MarkEpisodes(ctx, "u1", 5, []int64{1, 2, 3}))
	require.NoError(t, svc.UnmarkEpisodes(ctx, "u1", []int64{2}))

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{5: {1, 3}}, got.WatchedEpisodes)
}

func TestContentSync(t *testing.T) {
	svc, _ := newTestContentService()
	ctx := context.Background()

	require.NoError(t, svc.AddToWatchlist(ctx, "u1", json.RawMessage(`{"id":603,"media_type":"movie"}`)))

	err := svc.Sync(ctx, "u1", SyncInput{
		Watchlist: []json.RawMessage{
			json.RawMessage(`{"id":603,"media_type":"movie"}`),
			json.RawMessage(`{"id":1396,"media_type":"tv"}`),
			json.RawMessage(`garbage`),
		},
		WatchedIDs:      []int64{1396, 42},
		WatchedEpisodes: map[int64][]int64{1396: {7, 8}},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Watchlist, 2, "existing entries are not duplicated")
	assert.ElementsMatch(t, []int64{1396, 42}, got.WatchedIDs)
	assert.Equal(t, map[int64][]int64{1396: {7, 8}}, got.WatchedEpisodes)
}
