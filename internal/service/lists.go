// Package service contains the business logic for lists and personal
// content.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take the acting user's id as a plain argument. They never look at
// cookies or sessions; the route guard has already decided who the user is.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/navigation"
	"github.com/akruel/list-flix/internal/repository"
)

// Validation constants.
const (
	MaxListNameLength = 100
	DefaultListLimit  = 50
	MaxListLimit      = 200
)

// ListService handles shared lists, their members and items.
type ListService struct {
	repo    repository.ListRepository
	baseURL string
	logger  *slog.Logger
}

// NewListService creates a ListService. baseURL is used to build share links.
func NewListService(repo repository.ListRepository, baseURL string, logger *slog.Logger) *ListService {
	return &ListService{
		repo:    repo,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Create validates the name and creates a list owned by userID.
func (s *ListService) Create(ctx context.Context, userID, name string) (*model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "list name is required")
	}
	if utf8.RuneCountInString(name) > MaxListNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("list name must be %d characters or less", MaxListNameLength))
	}

	list := &model.List{Name: name, OwnerID: userID}
	if err := s.repo.CreateList(ctx, list); err != nil {
		s.logger.Error("failed to create list",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating list: %w", err)
	}

	s.logger.Info("list created",
		slog.String("id", list.ID),
		slog.String("owner", userID),
	)
	return list, nil
}

// Mine returns the lists userID belongs to, with their role on each.
func (s *ListService) Mine(ctx context.Context, userID string, limit, offset int) ([]model.List, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	lists, err := s.repo.ListsForUser(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	return lists, nil
}

// Details returns a list and its items. Only members can see a list; for
// anyone else it does not exist.
func (s *ListService) Details(ctx context.Context, userID, listID string) (*model.ListDetails, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, apperror.ValidationFailed("id", "list ID is required")
	}

	list, err := s.repo.GetListForUser(ctx, listID, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListItems(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("loading list items: %w", err)
	}

	return &model.ListDetails{List: *list, Items: items}, nil
}

// AddItem puts a catalog entry on a list. Owners and editors only.
func (s *ListService) AddItem(ctx context.Context, userID, listID string, contentID int64, contentType model.ContentType) (*model.ListItem, error) {
	if contentID <= 0 {
		return nil, apperror.ValidationFailed("contentId", "content ID must be positive")
	}
	if !contentType.Valid() {
		return nil, apperror.ValidationFailed("contentType", "content type must be movie, tv or episode")
	}
	if err := s.requireEditor(ctx, userID, listID); err != nil {
		return nil, err
	}

	item := &model.ListItem{
		ListID:      listID,
		ContentID:   contentID,
		ContentType: contentType,
		AddedBy:     userID,
	}
	if err := s.repo.AddItem(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("list item added",
		slog.String("listID", listID),
		slog.String("itemID", item.ID),
	)
	return item, nil
}

// RemoveItem deletes an item. Owners and editors only. The item must belong
// to listID.
func (s *ListService) RemoveItem(ctx context.Context, userID, listID, itemID string) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.ListID != listID {
		return apperror.NotFound("list item", itemID)
	}
	if err := s.requireEditor(ctx, userID, listID); err != nil {
		return err
	}

	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}

	s.logger.Info("list item removed",
		slog.String("listID", listID),
		slog.String("itemID", itemID),
	)
	return nil
}

// Join adds userID to a list through an invite link. The role defaults to
// viewer; anything other than editor or viewer is rejected. Joining a list
// one already belongs to keeps the existing role and returns it.
func (s *ListService) Join(ctx context.Context, userID, listID string, role model.Role) (*model.ListMember, error) {
	if role == "" {
		role = model.RoleViewer
	}
	if role != model.RoleEditor && role != model.RoleViewer {
		return nil, apperror.ValidationFailed("role", "role must be editor or viewer")
	}

	exists, err := s.repo.ListExists(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("checking list: %w", err)
	}
	if !exists {
		return nil, apperror.NotFound("list", listID)
	}

	member := &model.ListMember{ListID: listID, UserID: userID, Role: role}
	err = s.repo.AddMember(ctx, member)
	switch {
	case errors.Is(err, apperror.ErrConflict):
		return s.repo.GetMember(ctx, listID, userID)
	case err != nil:
		return nil, fmt.Errorf("joining list: %w", err)
	}

	s.logger.Info("list joined",
		slog.String("listID", listID),
		slog.String("userID", userID),
		slog.String("role", string(role)),
	)
	return member, nil
}

// UpdateMemberRole switches a member between editor and viewer. Only the
// owner may do it, and the owner's own role cannot change.
func (s *ListService) UpdateMemberRole(ctx context.Context, userID, listID, memberID string, role model.Role) error {
	if role != model.RoleEditor && role != model.RoleViewer {
		return apperror.ValidationFailed("role", "role must be editor or viewer")
	}

	list, err := s.repo.GetListForUser(ctx, listID, userID)
	if err != nil {
		return err
	}
	if list.Role != model.RoleOwner {
		return apperror.Forbidden("only the list owner can change roles")
	}
	if memberID == list.OwnerID {
		return apperror.ValidationFailed("userId", "the owner's role cannot be changed")
	}

	if err := s.repo.UpdateMemberRole(ctx, listID, memberID, role); err != nil {
		return err
	}

	s.logger.Info("member role updated",
		slog.String("listID", listID),
		slog.String("memberID", memberID),
		slog.String("role", string(role)),
	)
	return nil
}

// ShareURL returns the invite link for a list.
func (s *ListService) ShareURL(listID string, role model.Role) string {
	return navigation.InviteURL(s.baseURL, listID, navigation.InviteRole(role))
}

func (s *ListService) requireEditor(ctx context.Context, userID, listID string) error {
	list, err := s.repo.GetListForUser(ctx, listID, userID)
	if err != nil {
		return err
	}
	if !list.Role.CanEdit() {
		return apperror.Forbidden("viewers cannot change list items")
	}
	return nil
}
