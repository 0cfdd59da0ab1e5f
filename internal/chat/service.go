package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const eventChatMessage = "chat_message"

// MessageStore persists room history.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
}

// Notifier is the slice of the dispatcher used for direct messages.
type Notifier interface {
	Notify(ctx context.Context, req notifications.Request) (*models.Notification, notifications.DeliveryOutcome, error)
}

// Service fans chat messages out to everyone attached to a room.
type Service struct {
	store     MessageStore
	publisher realtime.Publisher
	notifier  Notifier
	validate  *validator.Validate
	log       *zap.Logger
}

func NewService(store MessageStore, publisher realtime.Publisher, notifier Notifier, validate *validator.Validate, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		validate:  validate,
		log:       log,
	}
}

// DirectRoomID is the room shared by two users, independent of who sends.
func DirectRoomID(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm-%d-%d", a, b)
}

// CanJoin reports whether userID may attach to roomID. Direct rooms admit
// only their two participants; any other room admits every signed-in user.
func CanJoin(roomID string, userID uint) bool {
	if !strings.HasPrefix(roomID, "dm-") {
		return roomID != ""
	}
	var a, b uint
	if _, err := fmt.Sscanf(roomID, "dm-%d-%d", &a, &b); err != nil {
		return false
	}
	return userID == a || userID == b
}

// HandleInbound processes one frame received on a room connection. Malformed
// frames are logged and dropped; the returned error only tells the caller
// the frame was not relayed.
func (s *Service) HandleInbound(ctx context.Context, roomID string, sender *models.User, raw []byte) error {
	if sender == nil {
		return errs.ErrUnauthorized
	}

	var in models.InboundChatMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn("dropping malformed chat frame",
			zap.String("room_id", roomID), zap.Uint("user_id", sender.ID), zap.Error(err))
		return fmt.Errorf("decode chat frame: %w", errs.ErrInvalidPayload)
	}
	in.Message = strings.TrimSpace(in.Message)
	if err := s.validate.Struct(in); err != nil {
		s.log.Warn("dropping invalid chat frame",
			zap.String("room_id", roomID), zap.Uint("user_id", sender.ID), zap.Error(err))
		return fmt.Errorf("validate chat frame: %w", errs.ErrInvalidPayload)
	}

	msg := &models.ChatMessage{
		RoomID:   roomID,
		SenderID: sender.ID,
		Username: sender.Username,
		Message:  in.Message,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.log.Error("failed to persist chat message", zap.String("room_id", roomID), zap.Error(err))
	}

	return s.broadcast(ctx, msg)
}

// SendDirect stores a one-to-one message, relays it to the pair's room and
// notifies the recipient.
func (s *Service) SendDirect(ctx context.Context, sender *models.User, recipientID uint, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if err := s.validate.Struct(models.DirectMessageRequest{Message: text}); err != nil {
		return nil, fmt.Errorf("validate direct message: %w", errs.ErrInvalidPayload)
	}
	if sender.ID == recipientID {
		return nil, fmt.Errorf("cannot message yourself: %w", errs.ErrInvalidPayload)
	}

	msg := &models.ChatMessage{
		RoomID:   DirectRoomID(sender.ID, recipientID),
		SenderID: sender.ID,
		Username: sender.Username,
		Message:  text,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist direct message: %w", err)
	}

	if err := s.broadcast(ctx, msg); err != nil {
		s.log.Warn("direct message relay failed", zap.String("room_id", msg.RoomID), zap.Error(err))
	}

	_, _, err := s.notifier.Notify(ctx, notifications.Request{
		RecipientID: recipientID,
		Message:     fmt.Sprintf("New message from %s", sender.Username),
		Type:        models.TypeMessage,
		Sender:      sender,
	})
	if err != nil {
		s.log.Error("direct message notification failed", zap.Uint("recipient_id", recipientID), zap.Error(err))
	}

	return msg, nil
}

func (s *Service) broadcast(ctx context.Context, msg *models.ChatMessage) error {
	event := models.ChatEvent{
		Type:     eventChatMessage,
		Message:  msg.Message,
		Username: msg.Username,
		UserID:   msg.SenderID,
	}
	if err := s.publisher.Publish(ctx, realtime.ChatRoomTopic(msg.RoomID), event); err != nil {
		s.log.Warn("chat publish failed", zap.String("room_id", msg.RoomID), zap.Error(err))
		return err
	}
	return nil
}
