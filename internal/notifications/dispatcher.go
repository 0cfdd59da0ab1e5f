package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/anonto42/ridehub/backend/pkg/push"
	"go.uber.org/zap"
)

const clickAction = "FLUTTER_NOTIFICATION_CLICK"

// Request describes one notification to deliver.
type Request struct {
	RecipientID uint
	Message     string
	Type        models.NotificationType
	Sender      *models.User      // nil for system notifications
	Related     *RelatedObjectRef // optional
	Title       string            // push title; derived from Type when empty
}

// DeliveryOutcome reports which side channels a Notify call reached.
type DeliveryOutcome struct {
	Skipped   bool // recipient's preferences exclude this type
	Duplicate bool // an identical notification exists within the dedup window
	Persisted bool
	Published bool
	Pushed    bool
}

// Dispatcher applies preferences and dedup, stores the record, then fans it
// out over the realtime channel and the push gateway. Only the preference
// lookup and the store write can fail a call.
type Dispatcher struct {
	prefs     repositories.PreferenceRepository
	store     repositories.NotificationRepository
	dedup     *DedupGuard
	publisher realtime.Publisher
	push      push.Gateway
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now for record timestamps and the dedup window.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
		d.dedup.now = now
	}
}

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.dedup.window = window
		}
	}
}

func NewDispatcher(
	prefs repositories.PreferenceRepository,
	store repositories.NotificationRepository,
	publisher realtime.Publisher,
	gateway push.Gateway,
	log *zap.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		prefs:     prefs,
		store:     store,
		dedup:     NewDedupGuard(store, DefaultDedupWindow),
		publisher: publisher,
		push:      gateway,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers req to a single recipient. It returns a nil notification
// when the recipient's preferences skip the type, and the earlier record when
// the request duplicates one inside the dedup window.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (*models.Notification, DeliveryOutcome, error) {
	var outcome DeliveryOutcome
	log := d.log.With(
		zap.Uint("recipient_id", req.RecipientID),
		zap.String("notification_type", string(req.Type)),
	)
	if !req.Type.Valid() {
		log.Warn("unknown notification type, delivering without a preference gate")
	}

	prefs, err := d.prefs.GetOrCreate(ctx, req.RecipientID)
	if err != nil {
		metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
		return nil, outcome, fmt.Errorf("load preferences for user %d: %w", req.RecipientID, err)
	}

	if !CategoryFor(req.Type).Enabled(prefs) {
		outcome.Skipped = true
		metrics.NotificationsDispatched.WithLabelValues("skipped").Inc()
		log.Debug("notification skipped by preferences")
		return nil, outcome, nil
	}

	senderID := senderIDOf(req.Sender)
	prior, dup, err := d.dedup.IsDuplicate(ctx, req.RecipientID, senderID, req.Message, req.Type)
	if err != nil {
		log.Warn("dedup lookup failed, delivering anyway", zap.Error(err))
	} else if dup {
		outcome.Duplicate = true
		metrics.NotificationsDispatched.WithLabelValues("duplicate").Inc()
		log.Debug("duplicate notification suppressed", zap.Uint("notification_id", prior.ID))
		return prior, outcome, nil
	}

	n := d.newRecord(req.RecipientID, senderID, req)
	if err := d.store.Create(ctx, n); err != nil {
		metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
		return nil, outcome, fmt.Errorf("persist notification: %w", err)
	}
	outcome.Persisted = true
	metrics.NotificationsDispatched.WithLabelValues("persisted").Inc()

	outcome.Published = d.publish(ctx, n, req.Sender)

	if prefs.PushEnabled && prefs.PushToken != nil && *prefs.PushToken != "" {
		outcome.Pushed = d.sendPush(ctx, n, req, prefs)
	}

	return n, outcome, nil
}

// NotifyMany stores one record per recipient in a single batch and publishes
// each on its recipient's channel. Preferences and dedup are not consulted;
// callers filter recipients beforehand when that matters. Push is not sent.
func (d *Dispatcher) NotifyMany(ctx context.Context, recipients []uint, req Request) ([]*models.Notification, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	senderID := senderIDOf(req.Sender)
	records := make([]*models.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		records = append(records, d.newRecord(recipientID, senderID, req))
	}

	if err := d.store.CreateBatch(ctx, records); err != nil {
		metrics.NotificationsDispatched.WithLabelValues("failed").Add(float64(len(records)))
		return nil, fmt.Errorf("persist notification batch: %w", err)
	}
	metrics.NotificationsDispatched.WithLabelValues("persisted").Add(float64(len(records)))

	for _, n := range records {
		d.publish(ctx, n, req.Sender)
	}
	return records, nil
}

func (d *Dispatcher) newRecord(recipientID uint, senderID *uint, req Request) *models.Notification {
	n := &models.Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		Message:     req.Message,
		Type:        req.Type,
		CreatedAt:   d.now().UTC(),
	}
	if req.Related != nil {
		kind := string(req.Related.Kind)
		id := req.Related.ID
		n.ContentObjectType = &kind
		n.ContentObjectID = &id
	}
	return n
}

func (d *Dispatcher) publish(ctx context.Context, n *models.Notification, sender *models.User) bool {
	frame := models.RealtimeNotification{
		ID:        n.ID,
		Message:   n.Message,
		Type:      n.Type,
		Timestamp: n.CreatedAt,
		IsRead:    n.IsRead,
	}
	if sender != nil {
		compact := sender.ToCompact()
		frame.Sender = &compact
	}

	if err := d.publisher.Publish(ctx, realtime.UserNotificationsTopic(n.RecipientID), frame); err != nil {
		d.log.Warn("realtime publish failed",
			zap.Uint("notification_id", n.ID),
			zap.Uint("recipient_id", n.RecipientID),
			zap.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) sendPush(ctx context.Context, n *models.Notification, req Request, prefs *models.NotificationPreferences) bool {
	badge, err := d.store.UnreadCount(ctx, n.RecipientID)
	if err != nil {
		d.log.Warn("unread count for push badge failed", zap.Error(err))
		badge = 0
	}

	title := req.Title
	if title == "" {
		title = TitleFor(n.Type)
	}

	data := map[string]string{"notification_id": strconv.FormatUint(uint64(n.ID), 10)}
	if n.ContentObjectType != nil && n.ContentObjectID != nil {
		data["content_object_type"] = *n.ContentObjectType
		data["content_object_id"] = *n.ContentObjectID
	}

	return d.push.Send(ctx, push.Message{
		Token:            *prefs.PushToken,
		Title:            title,
		Body:             n.Message,
		Sound:            push.DefaultSound(prefs.SoundEnabled),
		Badge:            int(badge),
		NotificationType: string(n.Type),
		ClickAction:      clickAction,
		Data:             data,
	})
}

// TitleFor is the push title used when a request carries none.
func TitleFor(t models.NotificationType) string {
	switch t {
	case models.TypeMessage:
		return "New message"
	case models.TypeGroupMessage:
		return "New group message"
	case models.TypeLike:
		return "New like"
	case models.TypeComment:
		return "New comment"
	case models.TypeFollow:
		return "New follower"
	case models.TypeFriendRequest:
		return "Friend request"
	case models.TypeRideRequest, models.TypeRideUpdate:
		return "Ride update"
	case models.TypeEventJoinRequest, models.TypeEventJoinApproved, models.TypeEventJoinRejected:
		return "Event update"
	case models.TypeGroupInvite, models.TypeGroupJoinRequest, models.TypeGroupJoinApproved,
		models.TypeGroupJoinRejected, models.TypeGroupUpdate:
		return "Group activity"
	default:
		return "RideHub"
	}
}

func senderIDOf(sender *models.User) *uint {
	if sender == nil {
		return nil
	}
	id := sender.ID
	return &id
}
