package repositories

import (
	"context"

	"github.com/anonto42/ridehub/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository stores per-user notification preferences
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.NotificationPreferences, error)
	Update(ctx context.Context, prefs *models.NotificationPreferences) error
	SetPushToken(ctx context.Context, userID uint, token *string) error
}

type postgresPreferenceRepository struct {
	db *gorm.DB
}

func NewPostgresPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &postgresPreferenceRepository{db: db}
}

// GetOrCreate returns the stored preferences, materializing the defaults on
// first access. Concurrent first readers converge on a single row.
func (r *postgresPreferenceRepository) GetOrCreate(ctx context.Context, userID uint) (*models.NotificationPreferences, error) {
	prefs, found, err := r.find(ctx, userID)
	if err != nil || found {
		return prefs, err
	}

	defaults := models.DefaultNotificationPreferences(userID)
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(defaults).Error
	if err != nil {
		return nil, err
	}

	prefs, _, err = r.find(ctx, userID)
	return prefs, err
}

func (r *postgresPreferenceRepository) find(ctx context.Context, userID uint) (*models.NotificationPreferences, bool, error) {
	var prefs models.NotificationPreferences
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&prefs)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &prefs, res.RowsAffected == 1, nil
}

func (r *postgresPreferenceRepository) Update(ctx context.Context, prefs *models.NotificationPreferences) error {
	return r.db.WithContext(ctx).Save(prefs).Error
}

func (r *postgresPreferenceRepository) SetPushToken(ctx context.Context, userID uint, token *string) error {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.NotificationPreferences{}).
		Where("user_id = ?", userID).
		Update("push_token", token).Error
}
