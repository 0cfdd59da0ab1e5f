package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anonto42/ridehub/backend/internal/chat"
	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/middleware"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	channelNotifications = "notifications"
	channelChat          = "chat"
)

type notificationAction struct {
	Action         string `json:"action"`
	NotificationID uint   `json:"notification_id"`
}

// RealtimeHandler upgrades websocket connections for the personal
// notification channel and chat rooms.
type RealtimeHandler struct {
	hub                    *realtime.Hub
	verifier               middleware.TokenVerifier
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
	chat                   *chat.Service
	upgrader               websocket.Upgrader
	log                    *zap.Logger
}

func NewRealtimeHandler(
	hub *realtime.Hub,
	verifier middleware.TokenVerifier,
	notifRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	chatService *chat.Service,
	log *zap.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		hub:                    hub,
		verifier:               verifier,
		notificationRepository: notifRepo,
		userRepository:         userRepo,
		chat:                   chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// RegisterRealtimeRoutes registers the websocket endpoints. They authenticate
// from the token query parameter, so they sit outside the JWT group.
func (h *RealtimeHandler) RegisterRealtimeRoutes(g *echo.Group) {
	g.GET("/notifications", h.Notifications)
	g.GET("/chat/:room_id", h.ChatRoom)
}

func (h *RealtimeHandler) authenticate(c echo.Context) (uint, bool) {
	token := c.QueryParam("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.Request())
	}
	if token == "" {
		return 0, false
	}
	id, err := h.verifier.VerifyToken(c.Request().Context(), token)
	if err != nil {
		if !errors.Is(err, errs.ErrUnauthorized) {
			h.log.Warn("websocket token verification failed", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}

// Notifications serves the caller's personal channel.
func (h *RealtimeHandler) Notifications(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	session := realtime.NewSession(conn, h.hub, channelNotifications, h.log)

	userID, ok := h.authenticate(c)
	if !ok {
		session.Reject(realtime.CloseUnauthorized, "authentication failed")
		return nil
	}
	if err := session.Authenticate(userID); err != nil {
		session.Close()
		return nil
	}
	if err := session.Subscribe(realtime.UserNotificationsTopic(userID)); err != nil {
		session.Close()
		return nil
	}
	session.Send(echo.Map{"type": "connection_established"})

	log := h.log.With(zap.Uint("user_id", userID))
	log.Debug("notification channel connected")

	session.Run(c.Request().Context(), func(ctx context.Context, raw []byte) {
		var in notificationAction
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Warn("dropping malformed notification frame", zap.Error(err))
			return
		}
		if in.Action != "mark_read" {
			log.Debug("ignoring unknown action", zap.String("action", in.Action))
			return
		}

		success := false
		if in.NotificationID != 0 {
			count, err := h.notificationRepository.MarkRead(ctx, userID, []uint{in.NotificationID})
			if err != nil {
				log.Error("mark read failed", zap.Uint("notification_id", in.NotificationID), zap.Error(err))
			}
			success = err == nil && count > 0
		}
		session.Send(echo.Map{
			"action":          "mark_read_response",
			"success":         success,
			"notification_id": in.NotificationID,
		})
	})
	return nil
}

// ChatRoom attaches the caller to a room; every inbound frame is relayed to
// the room's members.
func (h *RealtimeHandler) ChatRoom(c echo.Context) error {
	roomID := c.Param("room_id")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	session := realtime.NewSession(conn, h.hub, channelChat, h.log)

	userID, ok := h.authenticate(c)
	if !ok {
		session.Reject(realtime.CloseUnauthorized, "authentication failed")
		return nil
	}
	user, err := h.userRepository.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		session.Reject(realtime.CloseUnauthorized, "unknown user")
		return nil
	}
	if !chat.CanJoin(roomID, userID) {
		session.Reject(realtime.CloseForbidden, "not a member of this room")
		return nil
	}
	if err := session.Authenticate(userID); err != nil {
		session.Close()
		return nil
	}
	if err := session.Subscribe(realtime.ChatRoomTopic(roomID)); err != nil {
		session.Close()
		return nil
	}

	session.Run(c.Request().Context(), func(ctx context.Context, raw []byte) {
		_ = h.chat.HandleInbound(ctx, roomID, user, raw)
	})
	return nil
}
