package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/anonto42/ridehub/backend/internal/chat"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

const maxHistoryPage = 100

// ChatHandler serves chat history and direct messages over REST
type ChatHandler struct {
	messageRepository repositories.ChatMessageRepository
	userRepository    repositories.UserRepository
	chat              *chat.Service
}

func NewChatHandler(msgRepo repositories.ChatMessageRepository, userRepo repositories.UserRepository, chatService *chat.Service) *ChatHandler {
	return &ChatHandler{
		messageRepository: msgRepo,
		userRepository:    userRepo,
		chat:              chatService,
	}
}

// RegisterChatRoutes registers chat routes
func (h *ChatHandler) RegisterChatRoutes(g *echo.Group) {
	g.GET("/chat/rooms/:room_id/messages", h.GetRoomMessages)
	g.POST("/chat/direct/:user_id", h.SendDirectMessage)
}

// GetRoomMessages pages backwards through a room's history, newest first.
func (h *ChatHandler) GetRoomMessages(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	roomID := c.Param("room_id")
	if !chat.CanJoin(roomID, currentUserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You are not a member of this room")
	}

	before := time.Now().UTC()
	if raw := c.QueryParam("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "before must be an RFC3339 timestamp")
		}
		before = t
	}
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if limit < 1 || limit > maxHistoryPage {
		limit = 50
	}

	messages, err := h.messageRepository.ListByRoom(c.Request().Context(), roomID, before, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"messages": messages}})
}

// SendDirectMessage stores a one-to-one message and notifies the recipient
func (h *ChatHandler) SendDirectMessage(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	recipientID, err := parseIDParam(c, "user_id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	var req models.DirectMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	sender, err := h.userRepository.GetUserByID(ctx, currentUserID)
	if err != nil {
		return toHTTPError(err, "Authenticated user not found")
	}
	if _, err := h.userRepository.GetUserByID(ctx, recipientID); err != nil {
		return toHTTPError(err, "Recipient not found")
	}

	msg, err := h.chat.SendDirect(ctx, sender, recipientID, req.Message)
	if err != nil {
		return toHTTPError(err, "Recipient not found")
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": msg})
}
