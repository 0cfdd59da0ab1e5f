package handlers

import (
	"fmt"
	"net/http"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// FriendshipHandler handles HTTP requests related to friendships
type FriendshipHandler struct {
	friendshipRepository repositories.FriendshipRepository
	userRepository       repositories.UserRepository
	notifier             *BackgroundNotifier
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(friendshipRepo repositories.FriendshipRepository, userRepo repositories.UserRepository, notifier *BackgroundNotifier) *FriendshipHandler {
	return &FriendshipHandler{
		friendshipRepository: friendshipRepo,
		userRepository:       userRepo,
		notifier:             notifier,
	}
}

// RegisterFriendshipRoutes registers friendship-related routes
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.POST("/friends/request", h.SendFriendRequest)
	g.GET("/friends/requests/pending", h.GetPendingFriendRequests)
	g.PUT("/friends/request/:id/status", h.UpdateFriendRequestStatus)
}

// SendFriendRequest sends a friend request and notifies the receiver
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateFriendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if currentUserID == req.ReceiverID {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot send a friend request to yourself")
	}
	ctx := c.Request().Context()

	sender, err := h.userRepository.GetUserByID(ctx, currentUserID)
	if err != nil {
		return toHTTPError(err, "Authenticated user not found")
	}
	if _, err := h.userRepository.GetUserByID(ctx, req.ReceiverID); err != nil {
		return toHTTPError(err, "Receiver user not found")
	}

	friendRequest := &models.FriendRequest{
		SenderID:   sender.ID,
		ReceiverID: req.ReceiverID,
		Status:     models.FriendRequestPending,
	}
	if err := h.friendshipRepository.SendFriendRequest(ctx, friendRequest); err != nil {
		return toHTTPError(err, "Friend request not found")
	}

	h.notifier.Notify(notifications.Request{
		RecipientID: req.ReceiverID,
		Message:     fmt.Sprintf("%s sent you a friend request", sender.Username),
		Type:        models.TypeFriendRequest,
		Sender:      sender,
		Related:     &notifications.RelatedObjectRef{Kind: notifications.KindUser, ID: fmt.Sprint(sender.ID)},
	})

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": friendRequest})
}

// GetPendingFriendRequests retrieves pending friend requests for the authenticated user
func (h *FriendshipHandler) GetPendingFriendRequests(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requests, err := h.friendshipRepository.GetUserPendingFriendRequests(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": requests})
}

// UpdateFriendRequestStatus accepts or rejects a pending request. Accepting
// notifies the original sender.
func (h *FriendshipHandler) UpdateFriendRequestStatus(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requestID, err := parseIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request ID")
	}

	var req models.UpdateFriendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	friendRequest, err := h.friendshipRepository.GetFriendRequestByID(ctx, requestID)
	if err != nil {
		return toHTTPError(err, "Friend request not found")
	}
	if friendRequest.ReceiverID != currentUserID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to modify this friend request")
	}
	if friendRequest.Status != models.FriendRequestPending {
		return echo.NewHTTPError(http.StatusConflict, "Friend request has already been answered")
	}

	if err := h.friendshipRepository.UpdateFriendRequestStatus(ctx, requestID, req.Status); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	friendRequest.Status = req.Status

	if req.Status == models.FriendRequestAccepted {
		receiver, err := h.userRepository.GetUserByID(ctx, currentUserID)
		if err == nil {
			h.notifier.Notify(notifications.Request{
				RecipientID: friendRequest.SenderID,
				Message:     fmt.Sprintf("%s accepted your friend request", receiver.Username),
				Type:        models.TypeFriendRequest,
				Sender:      receiver,
				Related:     &notifications.RelatedObjectRef{Kind: notifications.KindUser, ID: fmt.Sprint(receiver.ID)},
			})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": friendRequest})
}
