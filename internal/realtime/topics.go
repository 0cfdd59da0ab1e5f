package realtime

import "strconv"

const (
	userNotificationsPrefix = "user-notifications:"
	chatRoomPrefix          = "chat-room:"
)

// UserNotificationsTopic is the personal channel of a single user.
func UserNotificationsTopic(userID uint) string {
	return userNotificationsPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ChatRoomTopic is the shared channel of a chat room.
func ChatRoomTopic(roomID string) string {
	return chatRoomPrefix + roomID
}
