package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/models"
)

type ctxKey int

const (
	accountKey ctxKey = iota
	requestIDKey
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// AccountFrom returns the authenticated account stored by JWTAuthMiddleware.
func AccountFrom(ctx context.Context) (models.AccountID, bool) {
	account, ok := ctx.Value(accountKey).(models.AccountID)
	return account, ok
}

// RequestIDFrom returns the request id stored by RequestLogger.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		account, err := h.AuthService.AccountFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger tags each request with an id and logs it once served
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.Metrics.RecordHTTP(route, status)

		entry := h.Log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   time.Since(started).String(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
	})
}
