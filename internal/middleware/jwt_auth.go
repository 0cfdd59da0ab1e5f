package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

// UserIDKey is the echo context key holding the authenticated user id.
const UserIDKey = "user_id"

const tokenTTL = 72 * time.Hour

// TokenVerifier turns a presented credential into a local user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uint, error)
}

// Verifiers tries each verifier in order and accepts the first success. When
// none succeeds, the last error other than ErrUnauthorized is returned so
// backend failures are not reported as bad credentials.
type Verifiers []TokenVerifier

func (vs Verifiers) VerifyToken(ctx context.Context, token string) (uint, error) {
	var lastErr error
	for _, v := range vs {
		if v == nil {
			continue
		}
		id, err := v.VerifyToken(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, errs.ErrUnauthorized) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return 0, errs.ErrUnauthorized
}

// JWTVerifier issues and checks locally signed HS256 tokens.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for user that expires after 72 hours.
func (v *JWTVerifier) IssueToken(user *models.User) (string, error) {
	now := v.now()
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *JWTVerifier) VerifyToken(_ context.Context, tokenString string) (uint, error) {
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, errs.ErrUnauthorized
	}
	if claims.UserID == 0 {
		return 0, errs.ErrUnauthorized
	}
	return claims.UserID, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuthMiddleware checks for a valid credential and stores the user id.
func JWTAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
			}

			tokenString, ok := BearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
			}

			userID, err := verifier.VerifyToken(c.Request().Context(), tokenString)
			if err != nil {
				if errors.Is(err, errs.ErrUnauthorized) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}

			c.Set(UserIDKey, userID)
			return next(c)
		}
	}
}
