package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/anonto42/ridehub/backend/internal/middleware"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/pkg/worker"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// getUserIDFromContext returns the id stored by the auth middleware, or 0.
func getUserIDFromContext(c echo.Context) uint {
	id, _ := c.Get(middleware.UserIDKey).(uint)
	return id
}

func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// bindAndValidate binds the request body into req and runs the echo validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// toHTTPError maps repository and service errors onto status codes.
func toHTTPError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFoundMsg)
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "You are not allowed to access this resource")
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrInvalidPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type dispatcher interface {
	Notify(ctx context.Context, req notifications.Request) (*models.Notification, notifications.DeliveryOutcome, error)
	NotifyMany(ctx context.Context, recipients []uint, req notifications.Request) ([]*models.Notification, error)
}

type taskSubmitter interface {
	SubmitDetached(task worker.Task) error
}

// BackgroundNotifier runs dispatcher calls on the worker pool so a request
// returns as soon as its primary write commits.
type BackgroundNotifier struct {
	pool       taskSubmitter
	dispatcher dispatcher
	log        *zap.Logger
}

func NewBackgroundNotifier(pool taskSubmitter, d dispatcher, log *zap.Logger) *BackgroundNotifier {
	return &BackgroundNotifier{pool: pool, dispatcher: d, log: log}
}

func (b *BackgroundNotifier) Notify(req notifications.Request) {
	err := b.pool.SubmitDetached(func(ctx context.Context) {
		if _, _, err := b.dispatcher.Notify(ctx, req); err != nil {
			b.log.Error("notification delivery failed",
				zap.Uint("recipient_id", req.RecipientID),
				zap.String("notification_type", string(req.Type)),
				zap.Error(err))
		}
	})
	if err != nil {
		metrics.BackgroundTasksRejected.WithLabelValues("notify").Inc()
		b.log.Warn("notification task rejected", zap.Uint("recipient_id", req.RecipientID), zap.Error(err))
	}
}

func (b *BackgroundNotifier) NotifyMany(recipients []uint, req notifications.Request) {
	if len(recipients) == 0 {
		return
	}
	err := b.pool.SubmitDetached(func(ctx context.Context) {
		if _, err := b.dispatcher.NotifyMany(ctx, recipients, req); err != nil {
			b.log.Error("bulk notification delivery failed",
				zap.Int("recipients", len(recipients)),
				zap.String("notification_type", string(req.Type)),
				zap.Error(err))
		}
	})
	if err != nil {
		metrics.BackgroundTasksRejected.WithLabelValues("notify_many").Inc()
		b.log.Warn("bulk notification task rejected", zap.Int("recipients", len(recipients)), zap.Error(err))
	}
}

// Background runs an arbitrary follow-up on the pool, e.g. counter updates.
func (b *BackgroundNotifier) Background(name string, fn func(ctx context.Context) error) {
	err := b.pool.SubmitDetached(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			b.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	})
	if err != nil {
		metrics.BackgroundTasksRejected.WithLabelValues(name).Inc()
		b.log.Warn("background task rejected", zap.String("task", name), zap.Error(err))
	}
}

// Deferred adapts b to the synchronous Notify signature used by the chat
// service. The call only queues the work, so the returned record is nil.
func (b *BackgroundNotifier) Deferred() DeferredNotifier {
	return DeferredNotifier{b: b}
}

type DeferredNotifier struct {
	b *BackgroundNotifier
}

func (d DeferredNotifier) Notify(_ context.Context, req notifications.Request) (*models.Notification, notifications.DeliveryOutcome, error) {
	d.b.Notify(req)
	return nil, notifications.DeliveryOutcome{}, nil
}
