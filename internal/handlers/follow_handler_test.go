package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/anonto42/ridehub/backend/pkg/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTriggerFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)

	broker := realtime.NewBroker(realtime.NewHub(), nil, zap.NewNop())
	dispatcher := notifications.NewDispatcher(f.prefs, f.notifs, broker, push.NewNoopGateway(zap.NewNop()), zap.NewNop())
	notifier := NewBackgroundNotifier(inlineSubmitter{}, dispatcher, zap.NewNop())

	NewFollowHandler(repositories.NewPostgresFollowRepository(f.db), f.users, notifier).RegisterFollowRoutes(f.api)
	NewFriendshipHandler(repositories.NewPostgresFriendshipRepository(f.db), f.users, notifier).RegisterFriendshipRoutes(f.api)
	return f
}

func listFor(t *testing.T, f *fixture, user *models.User) []models.Notification {
	t.Helper()
	list, _, err := f.notifs.List(context.Background(), user.ID, nil, 1, 50)
	require.NoError(t, err)
	return list
}

func TestFollowUser_NotifiesTarget(t *testing.T) {
	f := newTriggerFixture(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := listFor(t, f, f.bob)
	require.Len(t, list, 1)
	assert.Equal(t, models.TypeFollow, list[0].Type)
	assert.Equal(t, "alice started following you", list[0].Message)
	require.NotNil(t, list[0].SenderID)
	assert.Equal(t, f.alice.ID, *list[0].SenderID)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", f.alice.ID), f.aliceJWT, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFollowUser_RespectsPreferences(t *testing.T) {
	f := newTriggerFixture(t)

	prefs, err := f.prefs.GetOrCreate(context.Background(), f.bob.ID)
	require.NoError(t, err)
	prefs.Follows = false
	require.NoError(t, f.prefs.Update(context.Background(), prefs))

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, listFor(t, f, f.bob))
}

func TestUnfollowUser(t *testing.T) {
	f := newTriggerFixture(t)

	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d/follow", f.bob.ID), f.aliceJWT, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFriendRequest_SendAndAccept(t *testing.T) {
	f := newTriggerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/friends/request", f.aliceJWT,
		models.CreateFriendRequest{ReceiverID: f.bob.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := decode[models.FriendRequest](t, rec)

	bobList := listFor(t, f, f.bob)
	require.Len(t, bobList, 1)
	assert.Equal(t, models.TypeFriendRequest, bobList[0].Type)

	rec = f.do(t, http.MethodPost, "/api/v1/friends/request", f.aliceJWT,
		models.CreateFriendRequest{ReceiverID: f.bob.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := fmt.Sprintf("/api/v1/friends/request/%d/status", sent.ID)
	rec = f.do(t, http.MethodPut, path, f.aliceJWT, models.UpdateFriendRequest{Status: models.FriendRequestAccepted})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, path, f.bobJWT, models.UpdateFriendRequest{Status: models.FriendRequestAccepted})
	require.Equal(t, http.StatusOK, rec.Code)

	aliceList := listFor(t, f, f.alice)
	require.Len(t, aliceList, 1)
	assert.Equal(t, "bob accepted your friend request", aliceList[0].Message)

	rec = f.do(t, http.MethodPut, path, f.bobJWT, models.UpdateFriendRequest{Status: models.FriendRequestRejected})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
