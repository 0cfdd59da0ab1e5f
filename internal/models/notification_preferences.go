package models

import "time"

// NotificationPreferences holds one user's delivery switches (PostgreSQL).
// Booleans carry no gorm default so that an explicit false is persisted.
type NotificationPreferences struct {
	ID                 uint      `json:"-" gorm:"primaryKey"`
	UserID             uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	DirectMessages     bool      `json:"direct_messages"`
	GroupMessages      bool      `json:"group_messages"`
	LikesComments      bool      `json:"likes_comments"`
	Follows            bool      `json:"follows"`
	RideReminders      bool      `json:"ride_reminders"`
	EventUpdates       bool      `json:"event_updates"`
	GroupActivity      bool      `json:"group_activity"`
	NewMembers         bool      `json:"new_members"`
	ChallengesRewards  bool      `json:"challenges_rewards"`
	LeaderboardUpdates bool      `json:"leaderboard_updates"`
	SoundEnabled       bool      `json:"sound_enabled"`
	VibrationEnabled   bool      `json:"vibration_enabled"`
	PushEnabled        bool      `json:"push_enabled"`
	PushToken          *string   `json:"-" gorm:"size:255"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultNotificationPreferences returns the all-enabled record for a user.
func DefaultNotificationPreferences(userID uint) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:             userID,
		DirectMessages:     true,
		GroupMessages:      true,
		LikesComments:      true,
		Follows:            true,
		RideReminders:      true,
		EventUpdates:       true,
		GroupActivity:      true,
		NewMembers:         true,
		ChallengesRewards:  true,
		LeaderboardUpdates: true,
		SoundEnabled:       true,
		VibrationEnabled:   true,
		PushEnabled:        true,
	}
}

// UpdatePreferencesRequest is a partial update; omitted fields are left as is.
type UpdatePreferencesRequest struct {
	DirectMessages     *bool `json:"direct_messages"`
	GroupMessages      *bool `json:"group_messages"`
	LikesComments      *bool `json:"likes_comments"`
	Follows            *bool `json:"follows"`
	RideReminders      *bool `json:"ride_reminders"`
	EventUpdates       *bool `json:"event_updates"`
	GroupActivity      *bool `json:"group_activity"`
	NewMembers         *bool `json:"new_members"`
	ChallengesRewards  *bool `json:"challenges_rewards"`
	LeaderboardUpdates *bool `json:"leaderboard_updates"`
	SoundEnabled       *bool `json:"sound_enabled"`
	VibrationEnabled   *bool `json:"vibration_enabled"`
	PushEnabled        *bool `json:"push_enabled"`
}

// Apply copies every provided field onto p.
func (r *UpdatePreferencesRequest) Apply(p *NotificationPreferences) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.DirectMessages, r.DirectMessages)
	set(&p.GroupMessages, r.GroupMessages)
	set(&p.LikesComments, r.LikesComments)
	set(&p.Follows, r.Follows)
	set(&p.RideReminders, r.RideReminders)
	set(&p.EventUpdates, r.EventUpdates)
	set(&p.GroupActivity, r.GroupActivity)
	set(&p.NewMembers, r.NewMembers)
	set(&p.ChallengesRewards, r.ChallengesRewards)
	set(&p.LeaderboardUpdates, r.LeaderboardUpdates)
	set(&p.SoundEnabled, r.SoundEnabled)
	set(&p.VibrationEnabled, r.VibrationEnabled)
	set(&p.PushEnabled, r.PushEnabled)
}

// PushTokenRequest registers (or clears, when empty) the device push token.
type PushTokenRequest struct {
	Token string `json:"push_token" validate:"max=255"`
}
