package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// keeps (page-1)*limit far from overflowing the query offset
	maxPage = 10000
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	preferenceRepository   repositories.PreferenceRepository
	userRepository         repositories.UserRepository
	related                *notifications.RelatedObjectRegistry
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(
	notifRepo repositories.NotificationRepository,
	prefRepo repositories.PreferenceRepository,
	userRepo repositories.UserRepository,
	related *notifications.RelatedObjectRegistry,
) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		preferenceRepository:   prefRepo,
		userRepository:         userRepo,
		related:                related,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.GET("/notifications/preferences", h.GetPreferences)
	g.PUT("/notifications/preferences", h.UpdatePreferences)
	g.PUT("/notifications/push-token", h.RegisterPushToken)
	g.PUT("/notifications/mark-read", h.MarkRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.GET("/notifications/:id", h.GetNotification)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.DELETE("/notifications/:id", h.DeleteNotification)
}

// EnrichedNotification includes sender info
type EnrichedNotification struct {
	models.Notification
	Sender *models.UserCompact `json:"sender"`
}

func (h *NotificationHandler) enrichNotifications(c echo.Context, list []models.Notification) []EnrichedNotification {
	enriched := make([]EnrichedNotification, len(list))
	userCache := make(map[uint]*models.UserCompact)

	for i, n := range list {
		enriched[i] = EnrichedNotification{Notification: n}
		if n.SenderID == nil {
			continue
		}
		if sender, ok := userCache[*n.SenderID]; ok {
			enriched[i].Sender = sender
			continue
		}
		user, err := h.userRepository.GetUserByID(c.Request().Context(), *n.SenderID)
		if err != nil {
			userCache[*n.SenderID] = nil
			continue
		}
		compact := user.ToCompact()
		userCache[*n.SenderID] = &compact
		enriched[i].Sender = &compact
	}
	return enriched
}

// GetNotifications returns paginated notifications, newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	var isRead *bool
	if raw := c.QueryParam("is_read"); raw != "" {
		v, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "is_read must be true or false")
		}
		isRead = &v
	}

	list, total, err := h.notificationRepository.List(c.Request().Context(), currentUserID, isRead, page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": h.enrichNotifications(c, list),
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// GetNotification returns one notification along with the object it concerns
func (h *NotificationHandler) GetNotification(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := parseIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	ctx := c.Request().Context()
	n, err := h.notificationRepository.GetByID(ctx, notifID)
	if err != nil {
		return toHTTPError(err, "Notification not found")
	}
	if n.RecipientID != currentUserID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not allowed to access this notification")
	}

	data := echo.Map{"notification": h.enrichNotifications(c, []models.Notification{*n})[0]}
	if ref := notifications.RefFromRecord(n.ContentObjectType, n.ContentObjectID); ref != nil && h.related != nil {
		// The referenced object may have been removed since.
		obj, err := h.related.Resolve(ctx, *ref)
		if err != nil {
			obj = nil
		}
		data["related_object"] = obj
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": data})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.notificationRepository.UnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkRead marks the listed notifications as read. Ids that belong to other
// users are ignored and not counted.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.MarkReadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	count, err := h.notificationRepository.MarkRead(c.Request().Context(), currentUserID, req.NotificationIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks a single notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := parseIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	count, err := h.notificationRepository.MarkRead(c.Request().Context(), currentUserID, []uint{notifID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if count == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.notificationRepository.MarkAllRead(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// DeleteNotification removes one of the caller's notifications
func (h *NotificationHandler) DeleteNotification(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := parseIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if err := h.notificationRepository.Delete(c.Request().Context(), currentUserID, notifID); err != nil {
		return toHTTPError(err, "Notification not found")
	}

	return c.NoContent(http.StatusNoContent)
}

// GetPreferences returns the caller's delivery preferences, creating the
// default record on first access
func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	prefs, err := h.preferenceRepository.GetOrCreate(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": prefs})
}

// UpdatePreferences applies a partial update to the caller's preferences
func (h *NotificationHandler) UpdatePreferences(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.UpdatePreferencesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	prefs, err := h.preferenceRepository.GetOrCreate(ctx, currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	req.Apply(prefs)
	if err := h.preferenceRepository.Update(ctx, prefs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": prefs})
}

// RegisterPushToken stores the device token used for push delivery. An empty
// token clears it.
func (h *NotificationHandler) RegisterPushToken(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.PushTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var token *string
	if t := strings.TrimSpace(req.Token); t != "" {
		token = &t
	}
	if err := h.preferenceRepository.SetPushToken(c.Request().Context(), currentUserID, token); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"registered": token != nil}})
}
