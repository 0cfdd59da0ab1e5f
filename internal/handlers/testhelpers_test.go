package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/anonto42/ridehub/backend/internal/middleware"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/anonto42/ridehub/backend/internal/testutil"
	"github.com/anonto42/ridehub/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

type fixture struct {
	db       *gorm.DB
	e        *echo.Echo
	api      *echo.Group
	jwt      *middleware.JWTVerifier
	users    repositories.UserRepository
	notifs   repositories.NotificationRepository
	prefs    repositories.PreferenceRepository
	alice    *models.User
	bob      *models.User
	aliceJWT string
	bobJWT   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &fixture{
		db:     db,
		e:      echo.New(),
		jwt:    middleware.NewJWTVerifier(testSecret),
		users:  repositories.NewPostgresUserRepository(db),
		notifs: repositories.NewPostgresNotificationRepository(db),
		prefs:  repositories.NewPostgresPreferenceRepository(db),
		alice:  testutil.CreateUser(t, db, "alice"),
		bob:    testutil.CreateUser(t, db, "bob"),
	}
	f.e.Validator = validators.NewValidator()
	f.api = f.e.Group("/api/v1")
	f.api.Use(middleware.JWTAuthMiddleware(f.jwt))

	var err error
	f.aliceJWT, err = f.jwt.IssueToken(f.alice)
	require.NoError(t, err)
	f.bobJWT, err = f.jwt.IssueToken(f.bob)
	require.NoError(t, err)
	return f
}

func (f *fixture) notify(t *testing.T, recipient, sender *models.User, message string) *models.Notification {
	t.Helper()
	n := &models.Notification{
		RecipientID: recipient.ID,
		Message:     message,
		Type:        models.TypeLike,
	}
	if sender != nil {
		n.SenderID = &sender.ID
	}
	require.NoError(t, f.notifs.Create(context.Background(), n))
	return n
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Success)
	return env.Data
}
