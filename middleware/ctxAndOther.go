package middleware

import (
	"context"
	"log"
	"net/http"

	"nutrichat/globals"
)

// WithContext copies the caller identity headers into the request context so
// handlers downstream only deal with context values.
func WithContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid := r.Header.Get("X-User-ID"); uid != "" {
			ctx = context.WithValue(ctx, globals.UserIDKey, uid)
		}
		if sid := r.Header.Get("X-Session-ID"); sid != "" {
			ctx = context.WithValue(ctx, globals.SessionIDKey, sid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("🔥 Panic recovered: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
