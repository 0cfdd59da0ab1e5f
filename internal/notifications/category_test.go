package notifications

import (
	"testing"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		typ  models.NotificationType
		want Category
	}{
		{models.TypeMessage, CategoryDirectMessages},
		{models.TypeGroupMessage, CategoryGroupMessages},
		{models.TypeLike, CategoryLikesComments},
		{models.TypeComment, CategoryLikesComments},
		{models.TypeFollow, CategoryFollows},
		{models.TypeRideRequest, CategoryRideReminders},
		{models.TypeRideUpdate, CategoryRideReminders},
		{models.TypeEventJoinRequest, CategoryEventUpdates},
		{models.TypeEventJoinRejected, CategoryEventUpdates},
		{models.TypeGroupJoinApproved, CategoryGroupActivity},
		{models.TypeGroupUpdate, CategoryGroupActivity},
		{models.TypeFriendRequest, CategoryAlways},
		{models.TypeOther, CategoryAlways},
		{models.NotificationType("brand_new_type"), CategoryAlways},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.typ))
		})
	}
}

func TestCategoryEnabled_DefaultsDeliverEverything(t *testing.T) {
	prefs := models.DefaultNotificationPreferences(1)
	for _, typ := range models.NotificationTypes {
		assert.True(t, CategoryFor(typ).Enabled(prefs), typ)
	}
}

func TestCategoryAlways_IgnoresFlags(t *testing.T) {
	prefs := &models.NotificationPreferences{}
	assert.True(t, CategoryFor(models.TypeFriendRequest).Enabled(prefs))
	assert.False(t, CategoryFor(models.TypeLike).Enabled(prefs))
}
