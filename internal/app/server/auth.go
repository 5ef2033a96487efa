package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chess-vn/slduel/internal/auth"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

type ctxKey int

const userIdKey ctxKey = iota

// bearerVerifier accepts identity-provider tokens and returns the subject.
type bearerVerifier interface {
	Verify(token string) (string, error)
}

// userRegistrar is implemented by stores that learn users from authenticated
// requests instead of an external user table.
type userRegistrar interface {
	PutUser(user entities.User)
}

func userIdFrom(ctx context.Context) string {
	userId, _ := ctx.Value(userIdKey).(string)
	return userId
}

func withUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

// bearerToken accepts both "Bearer <token>" and a bare token.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// socketToken reads the capability token from the query string, falling back
// to the Authorization header for clients that can set headers.
func socketToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return bearerToken(r)
}

// authenticate resolves the caller of a REST request. Tokens minted by the
// issuer for the API audience are tried first, then the identity provider.
func (s *server) authenticate(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", auth.ErrMissingToken
	}
	claims, err := s.issuer.Validate(token, auth.AudienceAPI)
	if err == nil {
		return claims.UserId, nil
	}
	if s.verifier == nil {
		return "", err
	}
	userId, verr := s.verifier.Verify(token)
	if verr != nil {
		return "", errors.Join(err, verr)
	}
	return userId, nil
}

func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.authenticate(r)
		if err != nil {
			logging.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
			writeErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or missing token")
			return
		}
		if reg, ok := s.store.(userRegistrar); ok {
			if _, err := s.store.GetUser(r.Context(), userId); err != nil {
				reg.PutUser(entities.User{Id: userId, Username: userId})
			}
		}
		next.ServeHTTP(w, r.WithContext(withUserId(r.Context(), userId)))
	})
}
