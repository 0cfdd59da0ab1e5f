package push

import (
	"context"
	"strconv"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/anonto42/ridehub/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	timeToLive     = time.Hour
	defaultSound   = "default"
)

// Message is one device notification.
type Message struct {
	Token            string
	Title            string
	Body             string
	Sound            string // empty means silent
	Badge            int
	NotificationType string
	ClickAction      string
	Data             map[string]string
}

// Gateway delivers push notifications. Send never returns an error; it
// reports whether the push service accepted the message.
type Gateway interface {
	Send(ctx context.Context, msg Message) bool
}

// messageSender is the part of *messaging.Client the gateway uses.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMGateway sends through Firebase Cloud Messaging.
type FCMGateway struct {
	client  messageSender
	timeout time.Duration
	log     *zap.Logger
}

// NewFCMGateway wraps a messaging client. A non-positive timeout falls back
// to ten seconds.
func NewFCMGateway(client messageSender, timeout time.Duration, log *zap.Logger) *FCMGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FCMGateway{client: client, timeout: timeout, log: log}
}

func (g *FCMGateway) Send(ctx context.Context, msg Message) bool {
	if msg.Token == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	id, err := g.client.Send(ctx, buildMessage(msg))
	if err != nil {
		metrics.PushSends.WithLabelValues("error").Inc()
		g.log.Warn("push send failed",
			zap.String("notification_type", msg.NotificationType),
			zap.Error(err))
		return false
	}
	if id == "" {
		metrics.PushSends.WithLabelValues("rejected").Inc()
		g.log.Warn("push service returned no message id",
			zap.String("notification_type", msg.NotificationType))
		return false
	}

	metrics.PushSends.WithLabelValues("sent").Inc()
	g.log.Debug("push sent", zap.String("message_id", id))
	return true
}

func buildMessage(msg Message) *messaging.Message {
	data := make(map[string]string, len(msg.Data)+2)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["notification_type"] = msg.NotificationType
	data["click_action"] = msg.ClickAction

	ttl := timeToLive
	badge := msg.Badge

	androidNotification := &messaging.AndroidNotification{
		ClickAction: msg.ClickAction,
	}
	aps := &messaging.Aps{Badge: &badge}
	if msg.Sound != "" {
		androidNotification.Sound = msg.Sound
		aps.Sound = msg.Sound
	}

	return &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			TTL:          &ttl,
			Notification: androidNotification,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":   "10",
				"apns-expiration": strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
			},
			Payload: &messaging.APNSPayload{Aps: aps},
		},
	}
}

// DefaultSound returns the platform sound name when enabled is true.
func DefaultSound(enabled bool) string {
	if enabled {
		return defaultSound
	}
	return ""
}

// NoopGateway drops every message. Used when no push credentials are set.
type NoopGateway struct {
	log *zap.Logger
}

func NewNoopGateway(log *zap.Logger) *NoopGateway {
	return &NoopGateway{log: log}
}

func (g *NoopGateway) Send(_ context.Context, msg Message) bool {
	g.log.Debug("push disabled, dropping message", zap.String("notification_type", msg.NotificationType))
	return false
}
