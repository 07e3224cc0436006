package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/service"
)

// ListHandler serves shared lists, as JSON under /api/lists and as the home
// and invite pages.
type ListHandler struct {
	lists  *service.ListService
	pages  *Pages
	logger *slog.Logger
}

func NewListHandler(lists *service.ListService, pages *Pages, logger *slog.Logger) *ListHandler {
	return &ListHandler{lists: lists, pages: pages, logger: logger}
}

// userID reads the id the route guard put in the context. Routes using it
// are only mounted behind the guard.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in or continue as guest"))
	}
	return id, ok
}

// HandleHome renders the user's lists.
//
// HTTP: GET /
func (h *ListHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	lists, err := h.lists.Mine(r.Context(), uid, 0, 0)
	if err != nil {
		h.logger.Error("failed to load lists", slog.String("error", err.Error()))
		h.pages.Error(w, r, http.StatusInternalServerError, "Could not load your lists.")
		return
	}
	h.pages.Home(w, r, homePage{Lists: lists})
}

// HandleJoinPage shows the invite.
//
// HTTP: GET /lists/{id}/join?role=editor|viewer
func (h *ListHandler) HandleJoinPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Join(w, r, joinPage{
		ListID: chi.URLParam(r, "id"),
		Role:   inviteRole(r),
	})
}

// HandleJoin accepts the invite.
//
// HTTP: POST /lists/{id}/join?role=editor|viewer
func (h *ListHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	listID := chi.URLParam(r, "id")

	member, err := h.lists.Join(r.Context(), uid, listID, inviteRole(r))
	if err != nil {
		status := http.StatusInternalServerError
		msg := "Could not join the list."
		if errors.Is(err, apperror.ErrNotFound) {
			status, msg = http.StatusNotFound, "This list does not exist anymore."
		}
		h.pages.Error(w, r, status, msg)
		return
	}
	h.pages.Join(w, r, joinPage{ListID: listID, Role: member.Role, Joined: true})
}

// inviteRole reads ?role=; anything but editor means viewer.
func inviteRole(r *http.Request) model.Role {
	if model.Role(r.URL.Query().Get("role")) == model.RoleEditor {
		return model.RoleEditor
	}
	return model.RoleViewer
}

// HandleList returns the user's lists.
//
// HTTP: GET /api/lists?limit=&offset=
func (h *ListHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	lists, err := h.lists.Mine(r.Context(), uid, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

type createListRequest struct {
	Name string `json:"name"`
}

// HandleCreate creates a list owned by the user.
//
// HTTP: POST /api/lists  {"name": "Movie night"}
func (h *ListHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req createListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.lists.Create(r.Context(), uid, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// HandleGet returns a list with its items.
//
// HTTP: GET /api/lists/{id}
func (h *ListHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	details, err := h.lists.Details(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// HandleShare returns the invite link.
//
// HTTP: GET /api/lists/{id}/share?role=editor|viewer
func (h *ListHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	listID := chi.URLParam(r, "id")

	// Only members may share.
	if _, err := h.lists.Details(r.Context(), uid, listID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.lists.ShareURL(listID, inviteRole(r))})
}

type addItemRequest struct {
	ContentID   int64             `json:"contentId"`
	ContentType model.ContentType `json:"contentType"`
}

// HandleAddItem puts a catalog entry on the list.
//
// HTTP: POST /api/lists/{id}/items  {"contentId": 603, "contentType": "movie"}
func (h *ListHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	item, err := h.lists.AddItem(r.Context(), uid, chi.URLParam(r, "id"), req.ContentID, req.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleRemoveItem deletes an item.
//
// HTTP: DELETE /api/lists/{id}/items/{itemID}
func (h *ListHandler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.lists.RemoveItem(r.Context(), uid, chi.URLParam(r, "id"), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRoleRequest struct {
	Role model.Role `json:"role"`
}

// HandleUpdateRole switches a member between editor and viewer.
//
// HTTP: PUT /api/lists/{id}/members/{userID}  {"role": "editor"}
func (h *ListHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.lists.UpdateMemberRole(r.Context(), uid, chi.URLParam(r, "id"), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
