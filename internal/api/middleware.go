package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/store"
)

type ctxKey string

const ctxUser ctxKey = "user"

// authMiddleware validates the bearer token and loads the caller's profile.
// Tenant and role always come from the profile, never from the token.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ValidateToken(h.secret, strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := h.store.GetUser(r.Context(), claims.UserID)
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "profile not found")
			return
		}
		if err != nil {
			logging.Error(h.logger, "api", "authMiddleware", "loading profile", claims.UserID, err)
			respondError(w, http.StatusInternalServerError, "unable to load profile")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = audit.WithActor(ctx, audit.Actor{
			UserID:    user.ID,
			Role:      user.Role,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects callers whose profile role is not one of roles.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r.Context())
			if user == nil {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

// requirePharmacy rejects callers that no pharmacy has claimed yet. Super-admins
// pass.
func requirePharmacy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r.Context())
		if user == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if user.Unassigned() {
			respondError(w, http.StatusForbidden, "account is not assigned to a pharmacy")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(ctxUser).(*domain.User)
	return user
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestLogger writes one structured line per request.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.RequestURI(),
				"status":     status,
				"duration":   time.Since(start).Round(time.Millisecond).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
