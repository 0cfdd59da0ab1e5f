package models

import "time"

// NotificationType enumerates what a notification is about.
type NotificationType string

const (
	TypeMessage           NotificationType = "message"
	TypeGroupMessage      NotificationType = "group_message"
	TypeGroupInvite       NotificationType = "group_invite"
	TypeGroupJoinRequest  NotificationType = "group_join_request"
	TypeGroupJoinApproved NotificationType = "group_join_approved"
	TypeGroupJoinRejected NotificationType = "group_join_rejected"
	TypeEventJoinRequest  NotificationType = "event_join_request"
	TypeEventJoinApproved NotificationType = "event_join_approved"
	TypeEventJoinRejected NotificationType = "event_join_rejected"
	TypeRideRequest       NotificationType = "ride_request"
	TypeRideUpdate        NotificationType = "ride_update"
	TypeGroupUpdate       NotificationType = "group_update"
	TypeFriendRequest     NotificationType = "friend_request"
	TypeFollow            NotificationType = "follow"
	TypeLike              NotificationType = "like"
	TypeComment           NotificationType = "comment"
	TypeOther             NotificationType = "other"
)

// NotificationTypes lists every known type.
var NotificationTypes = []NotificationType{
	TypeMessage, TypeGroupMessage, TypeGroupInvite,
	TypeGroupJoinRequest, TypeGroupJoinApproved, TypeGroupJoinRejected,
	TypeEventJoinRequest, TypeEventJoinApproved, TypeEventJoinRejected,
	TypeRideRequest, TypeRideUpdate, TypeGroupUpdate,
	TypeFriendRequest, TypeFollow, TypeLike, TypeComment, TypeOther,
}

// Valid reports whether t is one of NotificationTypes.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is an append-only record addressed to a single recipient (PostgreSQL)
type Notification struct {
	ID                uint             `json:"id" gorm:"primaryKey"`
	RecipientID       uint             `json:"recipient" gorm:"not null;index:idx_notification_recipient_created,priority:1"`
	SenderID          *uint            `json:"sender" gorm:"index"` // nil for system notifications
	Message           string           `json:"message" gorm:"type:text;not null"`
	Type              NotificationType `json:"notification_type" gorm:"column:notification_type;size:30;index;not null"`
	ContentObjectType *string          `json:"content_object_type" gorm:"size:20"`
	ContentObjectID   *string          `json:"content_object_id" gorm:"size:64"`
	IsRead            bool             `json:"is_read" gorm:"not null;default:false;index"`
	CreatedAt         time.Time        `json:"timestamp" gorm:"index:idx_notification_recipient_created,priority:2"`
}

// RealtimeNotification is the frame pushed on a user's personal channel.
type RealtimeNotification struct {
	ID        uint             `json:"id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"notification_type"`
	Sender    *UserCompact     `json:"sender"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"is_read"`
}

// MarkReadRequest is the bulk mark-read body.
type MarkReadRequest struct {
	NotificationIDs []uint `json:"notification_ids" validate:"required,min=1,max=500"`
}
