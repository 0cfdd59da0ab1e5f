package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNotification(t *testing.T, repo NotificationRepository, recipient uint, sender *uint, msg string, at time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{
		RecipientID: recipient,
		SenderID:    sender,
		Message:     msg,
		Type:        models.TypeLike,
		CreatedAt:   at,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestNotificationRepository_ListNewestFirstWithFilter(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := seedNotification(t, repo, alice.ID, nil, "first", base)
	second := seedNotification(t, repo, alice.ID, nil, "second", base.Add(time.Minute))
	third := seedNotification(t, repo, alice.ID, nil, "third", base.Add(2*time.Minute))

	_, err := repo.MarkRead(ctx, alice.ID, []uint{second.ID})
	require.NoError(t, err)

	all, total, err := repo.List(ctx, alice.ID, nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{third.ID, second.ID, first.ID}, []uint{all[0].ID, all[1].ID, all[2].ID})

	unread := false
	onlyUnread, total, err := repo.List(ctx, alice.ID, &unread, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, n := range onlyUnread {
		assert.False(t, n.IsRead)
	}

	page2, _, err := repo.List(ctx, alice.ID, nil, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, first.ID, page2[0].ID)
}

func TestNotificationRepository_MarkReadScopedToRecipient(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	now := time.Now()
	mine := seedNotification(t, repo, alice.ID, nil, "mine", now)
	theirs := seedNotification(t, repo, bob.ID, nil, "theirs", now)

	count, err := repo.MarkRead(ctx, alice.ID, []uint{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetByID(ctx, theirs.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead)

	count, err = repo.MarkRead(ctx, alice.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	unread, err := repo.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	count, err = repo.MarkAllRead(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	unread, err = repo.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestNotificationRepository_Delete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	n := seedNotification(t, repo, alice.ID, nil, "hello", time.Now())

	assert.ErrorIs(t, repo.Delete(ctx, bob.ID, n.ID), errs.ErrForbidden)
	assert.ErrorIs(t, repo.Delete(ctx, alice.ID, n.ID+100), errs.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, alice.ID, n.ID))
	_, err := repo.GetByID(ctx, n.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNotificationRepository_FindRecentDuplicate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fromBob := seedNotification(t, repo, alice.ID, &bob.ID, "bob liked your post", now.Add(-2*time.Minute))
	system := seedNotification(t, repo, alice.ID, nil, "ride starts soon", now.Add(-time.Minute))

	since := now.Add(-5 * time.Minute)

	found, err := repo.FindRecentDuplicate(ctx, alice.ID, &bob.ID, "bob liked your post", models.TypeLike, since)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, fromBob.ID, found.ID)

	found, err = repo.FindRecentDuplicate(ctx, alice.ID, nil, "ride starts soon", models.TypeLike, since)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, system.ID, found.ID)

	// Different sender, type or message never match.
	found, err = repo.FindRecentDuplicate(ctx, alice.ID, nil, "bob liked your post", models.TypeLike, since)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.FindRecentDuplicate(ctx, alice.ID, &bob.ID, "bob liked your post", models.TypeComment, since)
	require.NoError(t, err)
	assert.Nil(t, found)

	// Outside the window.
	found, err = repo.FindRecentDuplicate(ctx, alice.ID, &bob.ID, "bob liked your post", models.TypeLike, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestNotificationRepository_CreateBatch(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	batch := []*models.Notification{
		{RecipientID: alice.ID, Message: "ride update", Type: models.TypeRideUpdate},
		{RecipientID: bob.ID, Message: "ride update", Type: models.TypeRideUpdate},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))
	for _, n := range batch {
		assert.NotZero(t, n.ID)
	}
	require.NoError(t, repo.CreateBatch(ctx, nil))
}
