package notifications

import "github.com/anonto42/ridehub/backend/internal/models"

// Category is the preference switch that gates a notification type.
type Category int

const (
	// CategoryAlways has no switch; such notifications are always delivered.
	CategoryAlways Category = iota
	CategoryDirectMessages
	CategoryGroupMessages
	CategoryLikesComments
	CategoryFollows
	CategoryRideReminders
	CategoryEventUpdates
	CategoryGroupActivity
)

// CategoryFor maps a notification type to its category. Friend requests,
// "other" and unrecognised types fall through to CategoryAlways.
func CategoryFor(t models.NotificationType) Category {
	switch t {
	case models.TypeMessage:
		return CategoryDirectMessages
	case models.TypeGroupMessage:
		return CategoryGroupMessages
	case models.TypeLike, models.TypeComment:
		return CategoryLikesComments
	case models.TypeFollow:
		return CategoryFollows
	case models.TypeRideRequest, models.TypeRideUpdate:
		return CategoryRideReminders
	case models.TypeEventJoinRequest, models.TypeEventJoinApproved, models.TypeEventJoinRejected:
		return CategoryEventUpdates
	case models.TypeGroupInvite, models.TypeGroupJoinRequest, models.TypeGroupJoinApproved,
		models.TypeGroupJoinRejected, models.TypeGroupUpdate:
		return CategoryGroupActivity
	case models.TypeFriendRequest, models.TypeOther:
		return CategoryAlways
	default:
		return CategoryAlways
	}
}

// Enabled reports whether prefs allow delivery for c.
func (c Category) Enabled(prefs *models.NotificationPreferences) bool {
	switch c {
	case CategoryDirectMessages:
		return prefs.DirectMessages
	case CategoryGroupMessages:
		return prefs.GroupMessages
	case CategoryLikesComments:
		return prefs.LikesComments
	case CategoryFollows:
		return prefs.Follows
	case CategoryRideReminders:
		return prefs.RideReminders
	case CategoryEventUpdates:
		return prefs.EventUpdates
	case CategoryGroupActivity:
		return prefs.GroupActivity
	default:
		return true
	}
}
