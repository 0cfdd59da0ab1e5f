package notifications

import (
	"context"
	"time"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/repositories"
)

// DefaultDedupWindow is the trailing interval checked for duplicates.
const DefaultDedupWindow = 5 * time.Minute

// DedupGuard suppresses a notification when an identical one (same recipient,
// sender, message and type) was created within the trailing window.
type DedupGuard struct {
	store  repositories.NotificationRepository
	window time.Duration
	now    func() time.Time
}

func NewDedupGuard(store repositories.NotificationRepository, window time.Duration) *DedupGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &DedupGuard{store: store, window: window, now: time.Now}
}

// IsDuplicate returns the earlier matching record when there is one.
func (g *DedupGuard) IsDuplicate(ctx context.Context, recipientID uint, senderID *uint, message string, notificationType models.NotificationType) (*models.Notification, bool, error) {
	since := g.now().UTC().Add(-g.window)
	prior, err := g.store.FindRecentDuplicate(ctx, recipientID, senderID, message, notificationType, since)
	if err != nil {
		return nil, false, err
	}
	return prior, prior != nil, nil
}
