package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceRepository_GetOrCreateDefaults(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresPreferenceRepository(db)
	alice := testutil.CreateUser(t, db, "alice")

	prefs, err := repo.GetOrCreate(context.Background(), alice.ID)
	require.NoError(t, err)

	want := models.DefaultNotificationPreferences(alice.ID)
	assert.Equal(t, want.DirectMessages, prefs.DirectMessages)
	assert.True(t, prefs.LikesComments)
	assert.True(t, prefs.LeaderboardUpdates)
	assert.True(t, prefs.PushEnabled)
	assert.Nil(t, prefs.PushToken)
}

func TestPreferenceRepository_ExplicitFalsePersists(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresPreferenceRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")

	prefs, err := repo.GetOrCreate(ctx, alice.ID)
	require.NoError(t, err)

	prefs.LikesComments = false
	prefs.PushEnabled = false
	require.NoError(t, repo.Update(ctx, prefs))

	reloaded, err := repo.GetOrCreate(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.LikesComments)
	assert.False(t, reloaded.PushEnabled)
	assert.True(t, reloaded.Follows)
}

func TestPreferenceRepository_ConcurrentFirstAccess(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresPreferenceRepository(db)
	alice := testutil.CreateUser(t, db, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.GetOrCreate(context.Background(), alice.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&models.NotificationPreferences{}).Where("user_id = ?", alice.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPreferenceRepository_SetPushToken(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresPreferenceRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")

	token := "device-token-1"
	require.NoError(t, repo.SetPushToken(ctx, alice.ID, &token))

	prefs, err := repo.GetOrCreate(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, prefs.PushToken)
	assert.Equal(t, token, *prefs.PushToken)

	require.NoError(t, repo.SetPushToken(ctx, alice.ID, nil))
	prefs, err = repo.GetOrCreate(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, prefs.PushToken)
}
