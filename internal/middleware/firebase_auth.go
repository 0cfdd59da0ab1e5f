package middleware

import (
	"context"
	"errors"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/ridehub/backend/internal/errs"
	"github.com/anonto42/ridehub/backend/internal/models"
)

// IDTokenVerifier is the part of *auth.Client that checks Firebase ID tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type firebaseUserLookup interface {
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
}

// FirebaseVerifier accepts Firebase ID tokens of users already linked to a
// local account.
type FirebaseVerifier struct {
	client IDTokenVerifier
	users  firebaseUserLookup
}

func NewFirebaseVerifier(client IDTokenVerifier, users firebaseUserLookup) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, users: users}
}

func (v *FirebaseVerifier) VerifyToken(ctx context.Context, idToken string) (uint, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return 0, errs.ErrUnauthorized
	}

	user, err := v.users.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return 0, errs.ErrUnauthorized
		}
		return 0, err
	}
	return user.ID, nil
}
