package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/service"
)

// ContentHandler serves the personal watchlist and watched history under
// /api/content.
type ContentHandler struct {
	content *service.ContentService
	logger  *slog.Logger
}

func NewContentHandler(content *service.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{content: content, logger: logger}
}

// contentID parses the {contentID} URL param.
func contentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contentID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("contentId", "must be a positive integer")
	}
	return id, nil
}

// HandleGet returns everything the user has saved.
//
// HTTP: GET /api/content
//
// RESPONSE: {"watchlist":[{...}],"watchedIds":[603],"watchedEpisodes":{"1396":[62085]}}
func (h *ContentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	content, err := h.content.Get(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// HandleAddToWatchlist stores a catalog payload as-is. The body is the
// catalog entry itself, so unknown fields are kept rather than rejected.
//
// HTTP: POST /api/content/watchlist  {"id": 603, "media_type": "movie", ...}
func (h *ContentHandler) HandleAddToWatchlist(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, apperror.ValidationFailed("body", "request body too large"))
		return
	}

	if err := h.content.AddToWatchlist(r.Context(), uid, json.RawMessage(payload)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveFromWatchlist
//
// HTTP: DELETE /api/content/watchlist/{contentID}
func (h *ContentHandler) HandleRemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := contentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.RemoveFromWatchlist(r.Context(), uid, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markWatchedRequest struct {
	ContentID   int64             `json:"contentId"`
	ContentType model.ContentType `json:"contentType"`
	Metadata    json.RawMessage   `json:"metadata,omitempty"`
}

// HandleMarkWatched
//
// HTTP: POST /api/content/watched  {"contentId": 603, "contentType": "movie"}
func (h *ContentHandler) HandleMarkWatched(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req markWatchedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.MarkWatched(r.Context(), uid, req.ContentID, req.ContentType, req.Metadata); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkUnwatched
//
// HTTP: DELETE /api/content/watched/{contentID}
func (h *ContentHandler) HandleMarkUnwatched(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := contentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.MarkUnwatched(r.Context(), uid, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type episodesRequest struct {
	ShowID     int64   `json:"showId"`
	EpisodeIDs []int64 `json:"episodeIds"`
}

// HandleMarkEpisodes marks a batch of episodes of one show as watched.
//
// HTTP: POST /api/content/episodes  {"showId": 1396, "episodeIds": [62085, 62086]}
func (h *ContentHandler) HandleMarkEpisodes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req episodesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.MarkEpisodes(r.Context(), uid, req.ShowID, req.EpisodeIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnmarkEpisodes
//
// HTTP: DELETE /api/content/episodes  {"episodeIds": [62085]}
func (h *ContentHandler) HandleUnmarkEpisodes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req episodesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.UnmarkEpisodes(r.Context(), uid, req.EpisodeIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSync uploads content a guest kept in the browser before their first
// request reached the server.
//
// HTTP: POST /api/content/sync  {"watchlist": [...], "watchedIds": [...], "watchedEpisodes": {...}}
func (h *ContentHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req service.SyncInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.Sync(r.Context(), uid, req); err != nil {
		writeError(w, err)
		return
	}

	content, err := h.content.Get(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}
