package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/anonto42/ridehub/backend/internal/testutil"
	"github.com/anonto42/ridehub/backend/pkg/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type published struct {
	topic string
	frame []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	frames []published
}

func (p *fakePublisher) Publish(_ context.Context, topic string, v any) error {
	if p.err != nil {
		return p.err
	}
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, published{topic: topic, frame: frame})
	return nil
}

type fakeGateway struct {
	ok   bool
	sent []push.Message
}

func (g *fakeGateway) Send(_ context.Context, msg push.Message) bool {
	g.sent = append(g.sent, msg)
	return g.ok
}

type failingPrefs struct{}

func (failingPrefs) GetOrCreate(context.Context, uint) (*models.NotificationPreferences, error) {
	return nil, errors.New("database is down")
}
func (failingPrefs) Update(context.Context, *models.NotificationPreferences) error { return nil }
func (failingPrefs) SetPushToken(context.Context, uint, *string) error          { return nil }

type fixture struct {
	db         *gorm.DB
	prefs      repositories.PreferenceRepository
	store      repositories.NotificationRepository
	publisher  *fakePublisher
	gateway    *fakeGateway
	dispatcher *Dispatcher
	now        time.Time
	alice      *models.User
	bob        *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:        db,
		prefs:     repositories.NewPostgresPreferenceRepository(db),
		store:     repositories.NewPostgresNotificationRepository(db),
		publisher: &fakePublisher{},
		gateway:   &fakeGateway{ok: true},
		now:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		alice:     testutil.CreateUser(t, db, "alice"),
		bob:       testutil.CreateUser(t, db, "bob"),
	}
	f.dispatcher = NewDispatcher(f.prefs, f.store, f.publisher, f.gateway, zap.NewNop(),
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) setPrefs(t *testing.T, userID uint, mutate func(p *models.NotificationPreferences)) {
	t.Helper()
	p, err := f.prefs.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	mutate(p)
	require.NoError(t, f.prefs.Update(context.Background(), p))
}

func (f *fixture) count(t *testing.T, recipientID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID).Count(&n).Error)
	return n
}

func TestNotify_LikeThenMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := "alice-device"
	require.NoError(t, f.prefs.SetPushToken(ctx, f.alice.ID, &token))

	n, outcome, err := f.dispatcher.Notify(ctx, Request{
		RecipientID: f.alice.ID,
		Message:     "bob liked your post",
		Type:        models.TypeLike,
		Sender:      f.bob,
		Related:     &RelatedObjectRef{Kind: KindPost, ID: "665f1c2e9b1d4a0012345678"},
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.False(t, n.IsRead)
	assert.Equal(t, DeliveryOutcome{Persisted: true, Published: true, Pushed: true}, outcome)
	require.NotNil(t, n.ContentObjectType)
	assert.Equal(t, "post", *n.ContentObjectType)

	require.Len(t, f.publisher.frames, 1)
	assert.Equal(t, realtime.UserNotificationsTopic(f.alice.ID), f.publisher.frames[0].topic)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(f.publisher.frames[0].frame, &frame))
	assert.Equal(t, "like", frame["notification_type"])
	assert.Equal(t, "bob liked your post", frame["message"])
	assert.Equal(t, "bob", frame["sender"].(map[string]any)["username"])
	assert.Equal(t, false, frame["is_read"])

	require.Len(t, f.gateway.sent, 1)
	msg := f.gateway.sent[0]
	assert.Equal(t, token, msg.Token)
	assert.Equal(t, "New like", msg.Title)
	assert.Equal(t, 1, msg.Badge)
	assert.Equal(t, "default", msg.Sound)
	assert.Equal(t, "665f1c2e9b1d4a0012345678", msg.Data["content_object_id"])

	count, err := f.store.MarkRead(ctx, f.alice.ID, []uint{n.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := f.store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	// Repeating mark-read converges without error.
	_, err = f.store.MarkRead(ctx, f.alice.ID, []uint{n.ID})
	require.NoError(t, err)
}

func TestNotify_SkippedByPreference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setPrefs(t, f.alice.ID, func(p *models.NotificationPreferences) { p.Follows = false })

	n, outcome, err := f.dispatcher.Notify(ctx, Request{
		RecipientID: f.alice.ID,
		Message:     "carol followed you",
		Type:        models.TypeFollow,
		Sender:      f.bob,
	})
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Equal(t, DeliveryOutcome{Skipped: true}, outcome)
	assert.Zero(t, f.count(t, f.alice.ID))
	assert.Empty(t, f.publisher.frames)

	list, _, err := f.store.List(ctx, f.alice.ID, nil, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotify_EveryGatedCategorySkips(t *testing.T) {
	tests := []struct {
		typ    models.NotificationType
		mutate func(p *models.NotificationPreferences)
	}{
		{models.TypeMessage, func(p *models.NotificationPreferences) { p.DirectMessages = false }},
		{models.TypeGroupMessage, func(p *models.NotificationPreferences) { p.GroupMessages = false }},
		{models.TypeComment, func(p *models.NotificationPreferences) { p.LikesComments = false }},
		{models.TypeRideUpdate, func(p *models.NotificationPreferences) { p.RideReminders = false }},
		{models.TypeEventJoinApproved, func(p *models.NotificationPreferences) { p.EventUpdates = false }},
		{models.TypeGroupInvite, func(p *models.NotificationPreferences) { p.GroupActivity = false }},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			f := newFixture(t)
			f.setPrefs(t, f.alice.ID, tt.mutate)

			n, outcome, err := f.dispatcher.Notify(context.Background(), Request{
				RecipientID: f.alice.ID,
				Message:     "something happened",
				Type:        tt.typ,
			})
			require.NoError(t, err)
			assert.Nil(t, n)
			assert.True(t, outcome.Skipped)
			assert.Zero(t, f.count(t, f.alice.ID))
		})
	}
}

func TestNotify_DuplicateWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{RecipientID: f.alice.ID, Message: "bob commented", Type: models.TypeComment, Sender: f.bob}

	first, _, err := f.dispatcher.Notify(ctx, req)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Minute)
	second, outcome, err := f.dispatcher.Notify(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, outcome.Duplicate)
	assert.False(t, outcome.Persisted)
	assert.Equal(t, int64(1), f.count(t, f.alice.ID))
	assert.Len(t, f.publisher.frames, 1)
}

func TestNotify_DuplicateOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{RecipientID: f.alice.ID, Message: "bob commented", Type: models.TypeComment, Sender: f.bob}

	first, _, err := f.dispatcher.Notify(ctx, req)
	require.NoError(t, err)

	f.now = f.now.Add(DefaultDedupWindow + time.Minute)
	second, outcome, err := f.dispatcher.Notify(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, outcome.Persisted)
	assert.Equal(t, int64(2), f.count(t, f.alice.ID))
}

func TestNotify_DistinctMessagesAreNotDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "one", Type: models.TypeOther})
	require.NoError(t, err)
	_, _, err = f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "two", Type: models.TypeOther})
	require.NoError(t, err)
	_, _, err = f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "one", Type: models.TypeOther, Sender: f.bob})
	require.NoError(t, err)

	assert.Equal(t, int64(3), f.count(t, f.alice.ID))
}

func TestNotify_ConfigurableWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := NewDispatcher(f.prefs, f.store, f.publisher, f.gateway, zap.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithDedupWindow(30*time.Second))
	req := Request{RecipientID: f.alice.ID, Message: "ping", Type: models.TypeOther}

	_, _, err := d.Notify(ctx, req)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, outcome, err := d.Notify(ctx, req)
	require.NoError(t, err)

	assert.False(t, outcome.Duplicate)
	assert.Equal(t, int64(2), f.count(t, f.alice.ID))
}

func TestNotify_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")
	f.gateway.ok = false
	token := "alice-device"
	require.NoError(t, f.prefs.SetPushToken(context.Background(), f.alice.ID, &token))

	n, outcome, err := f.dispatcher.Notify(context.Background(), Request{
		RecipientID: f.alice.ID,
		Message:     "ride moved to 9am",
		Type:        models.TypeRideUpdate,
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, DeliveryOutcome{Persisted: true}, outcome)
	assert.Len(t, f.gateway.sent, 1)
}

func TestNotify_PushRequiresEnabledAndToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, outcome, err := f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "no token yet", Type: models.TypeOther})
	require.NoError(t, err)
	assert.False(t, outcome.Pushed)
	assert.Empty(t, f.gateway.sent)

	token := "alice-device"
	require.NoError(t, f.prefs.SetPushToken(ctx, f.alice.ID, &token))
	f.setPrefs(t, f.alice.ID, func(p *models.NotificationPreferences) {
		p.PushEnabled = false
	})

	_, outcome, err = f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "push disabled", Type: models.TypeOther})
	require.NoError(t, err)
	assert.True(t, outcome.Persisted)
	assert.False(t, outcome.Pushed)
	assert.Empty(t, f.gateway.sent)
}

func TestNotify_SilentWhenSoundDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := "alice-device"
	require.NoError(t, f.prefs.SetPushToken(ctx, f.alice.ID, &token))
	f.setPrefs(t, f.alice.ID, func(p *models.NotificationPreferences) { p.SoundEnabled = false })

	_, _, err := f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "quiet", Type: models.TypeOther, Title: "Heads up"})
	require.NoError(t, err)
	require.Len(t, f.gateway.sent, 1)
	assert.Empty(t, f.gateway.sent[0].Sound)
	assert.Equal(t, "Heads up", f.gateway.sent[0].Title)
}

func TestNotify_UnknownTypeIsLoggedAndDelivered(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(f.prefs, f.store, f.publisher, f.gateway, zap.New(core),
		WithClock(func() time.Time { return f.now }))

	n, outcome, err := d.Notify(context.Background(), Request{
		RecipientID: f.alice.ID,
		Message:     "your ride was cancelled",
		Type:        models.NotificationType("ride_cancelled"),
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, outcome.Persisted)

	entries := logs.FilterMessage("unknown notification type, delivering without a preference gate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ride_cancelled", entries[0].ContextMap()["notification_type"])

	_, _, err = d.Notify(context.Background(), Request{RecipientID: f.alice.ID, Message: "bob followed you", Type: models.TypeFollow})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("unknown notification type, delivering without a preference gate").Len())
}

func TestNotify_PreferenceFailurePropagates(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(failingPrefs{}, f.store, f.publisher, f.gateway, zap.NewNop())

	n, outcome, err := d.Notify(context.Background(), Request{RecipientID: f.alice.ID, Message: "x", Type: models.TypeLike})
	assert.Error(t, err)
	assert.Nil(t, n)
	assert.False(t, outcome.Persisted)
}

func TestNotify_StoreFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.prefs.GetOrCreate(ctx, f.alice.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Migrator().DropTable(&models.Notification{}))

	n, outcome, err := f.dispatcher.Notify(ctx, Request{RecipientID: f.alice.ID, Message: "x", Type: models.TypeOther})
	assert.Error(t, err)
	assert.Nil(t, n)
	assert.False(t, outcome.Persisted)
	assert.Empty(t, f.publisher.frames)
}

func TestNotifyMany_BatchesAndBypassesPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := testutil.CreateUser(t, f.db, "carol")
	f.setPrefs(t, carol.ID, func(p *models.NotificationPreferences) { p.RideReminders = false })

	records, err := f.dispatcher.NotifyMany(ctx, []uint{f.alice.ID, carol.ID}, Request{
		Message: "the sunday ride starts at 8",
		Type:    models.TypeRideUpdate,
		Sender:  f.bob,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, n := range records {
		assert.NotZero(t, n.ID)
	}
	assert.Equal(t, int64(1), f.count(t, carol.ID))

	topics := []string{f.publisher.frames[0].topic, f.publisher.frames[1].topic}
	assert.ElementsMatch(t, []string{
		realtime.UserNotificationsTopic(f.alice.ID),
		realtime.UserNotificationsTopic(carol.ID),
	}, topics)
	assert.Empty(t, f.gateway.sent)

	none, err := f.dispatcher.NotifyMany(ctx, nil, Request{Message: "x", Type: models.TypeOther})
	require.NoError(t, err)
	assert.Nil(t, none)
}
