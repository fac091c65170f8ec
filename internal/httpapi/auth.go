package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/models"
)

type sessionStore interface {
	FindByToken(ctx context.Context, token string) (*models.Session, error)
}

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated caller attached to the request context. The
// session token is opaque here; who minted it is a separate system's concern.
type Identity struct {
	UserID      string
	Email       string
	AccessToken string
}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// sessionAuthMiddleware resolves a bearer token to a live session and attaches
// the caller's identity to the context. Missing or expired tokens get 401.
func (s *Server) sessionAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				apperr.Render(w, middleware.GetReqID(r.Context()), apperr.Auth("authentication required"))
				return
			}
			sess, err := s.sessions.FindByToken(r.Context(), token)
			if err != nil {
				s.log.Error("session lookup", "err", err)
				apperr.Render(w, middleware.GetReqID(r.Context()), err)
				return
			}
			if sess == nil {
				apperr.Render(w, middleware.GetReqID(r.Context()), apperr.Auth("invalid or expired session"))
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, Identity{
				UserID:      sess.UserID,
				Email:       sess.Email,
				AccessToken: sess.AccessToken,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.adminUsername || pass != s.adminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="cardpress"`)
				apperr.Render(w, middleware.GetReqID(r.Context()), apperr.Auth("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
