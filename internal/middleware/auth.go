package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/neilb14/users-service/internal/auth"
	"github.com/neilb14/users-service/internal/models"
	"github.com/neilb14/users-service/internal/service"
	"github.com/neilb14/users-service/internal/utils/respond"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userKey contextKey = "user"

const (
	msgProvideToken = "Provide a valid auth token."
	msgInvalidToken = "Invalid token. Please log in again."
	msgExpiredToken = "Signature expired. Please log in again."
	msgInactive     = "Something went wrong. Please contact us."
	msgTryAgain     = "Try again."
)

// Authenticator resolves a bearer token to an active user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware rejects requests without a usable bearer token and stores
// the resolved user in the request context.
func AuthMiddleware(authn Authenticator, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respond.Message(w, http.StatusUnauthorized, respond.StatusError, msgProvideToken)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrForbidden):
					log.Warnf("Inactive account rejected on %s", r.URL.Path)
					respond.Message(w, http.StatusUnauthorized, respond.StatusError, msgInactive)
				case errors.Is(err, auth.ErrTokenExpired):
					respond.Message(w, http.StatusUnauthorized, respond.StatusError, msgExpiredToken)
				case errors.Is(err, service.ErrUnauthorized):
					log.Debugf("Token rejected on %s: %v", r.URL.Path, err)
					respond.Message(w, http.StatusUnauthorized, respond.StatusError, msgInvalidToken)
				default:
					log.Errorf("Failed to authenticate request: %v", err)
					respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
				}
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user attached by AuthMiddleware
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
