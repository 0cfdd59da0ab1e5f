package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/anonto42/ridehub/backend/internal/middleware"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/pkg/worker"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inlineSubmitter struct {
	reject bool
}

func (s inlineSubmitter) SubmitDetached(task worker.Task) error {
	if s.reject {
		return worker.ErrPoolClosed
	}
	task(context.Background())
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	single []notifications.Request
	many   [][]uint
	err    error
}

func (d *recordingDispatcher) Notify(_ context.Context, req notifications.Request) (*models.Notification, notifications.DeliveryOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.single = append(d.single, req)
	return nil, notifications.DeliveryOutcome{}, d.err
}

func (d *recordingDispatcher) NotifyMany(_ context.Context, recipients []uint, _ notifications.Request) ([]*models.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.many = append(d.many, recipients)
	return nil, d.err
}

func TestBackgroundNotifier(t *testing.T) {
	d := &recordingDispatcher{}
	n := NewBackgroundNotifier(inlineSubmitter{}, d, zap.NewNop())

	n.Notify(notifications.Request{RecipientID: 3, Type: models.TypeFollow})
	n.NotifyMany([]uint{1, 2}, notifications.Request{Type: models.TypeOther})
	n.NotifyMany(nil, notifications.Request{Type: models.TypeOther})

	require.Len(t, d.single, 1)
	assert.Equal(t, uint(3), d.single[0].RecipientID)
	require.Len(t, d.many, 1)
	assert.Equal(t, []uint{1, 2}, d.many[0])

	got, outcome, err := n.Deferred().Notify(context.Background(), notifications.Request{RecipientID: 4})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, notifications.DeliveryOutcome{}, outcome)
	assert.Len(t, d.single, 2)
}

func TestBackgroundNotifier_ErrorsAreContained(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("db down")}
	n := NewBackgroundNotifier(inlineSubmitter{}, d, zap.NewNop())
	assert.NotPanics(t, func() { n.Notify(notifications.Request{RecipientID: 1}) })

	rejected := NewBackgroundNotifier(inlineSubmitter{reject: true}, d, zap.NewNop())
	rejected.Notify(notifications.Request{RecipientID: 1})
	assert.Len(t, d.single, 1)

	ran := false
	rejected.Background("noop", func(context.Context) error { ran = true; return nil })
	assert.False(t, ran)
}

// blockingDispatcher holds every Notify call until release is closed.
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDispatcher) Notify(ctx context.Context, _ notifications.Request) (*models.Notification, notifications.DeliveryOutcome, error) {
	d.started <- struct{}{}
	<-d.release
	return nil, notifications.DeliveryOutcome{}, nil
}

func (d *blockingDispatcher) NotifyMany(context.Context, []uint, notifications.Request) ([]*models.Notification, error) {
	return nil, nil
}

func TestBackgroundNotifier_DoesNotBlockWhenPoolBusy(t *testing.T) {
	pool, err := worker.NewPool(context.Background(), 1, zap.NewNop())
	require.NoError(t, err)
	d := &blockingDispatcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	t.Cleanup(func() {
		close(d.release)
		pool.Shutdown()
	})

	n := NewBackgroundNotifier(pool, d, zap.NewNop())
	n.Notify(notifications.Request{RecipientID: 1, Type: models.TypeFollow})
	<-d.started

	rejectedBefore := testutil.ToFloat64(metrics.BackgroundTasksRejected.WithLabelValues("notify"))
	done := make(chan struct{})
	go func() {
		n.Notify(notifications.Request{RecipientID: 2, Type: models.TypeFollow})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify waited for a busy worker")
	}
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(metrics.BackgroundTasksRejected.WithLabelValues("notify")))
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errs.ErrNotFound, http.StatusNotFound},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrUnauthorized, http.StatusUnauthorized},
		{errs.ErrConflict, http.StatusConflict},
		{errs.ErrInvalidPayload, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, toHTTPError(tt.err, "missing"), &he)
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, uint(0), getUserIDFromContext(c))

	c.Set(middleware.UserIDKey, uint(9))
	assert.Equal(t, uint(9), getUserIDFromContext(c))
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "janedoeabcdef", usernameFromEmail("jane.doe@example.com", "abcdefghij"))
	assert.Equal(t, "riderx1", usernameFromEmail("rider@x.test", "x1"))
}
