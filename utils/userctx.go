package utils

import (
	"context"
	"net/http"

	"nutrichat/globals"
)

func GetUserIDFromContext(ctx context.Context) string {
	requestingUserID, ok := ctx.Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

// GetSessionIDFromRequest reads the chat session id carried on every intent
// request from the presentation layer.
func GetSessionIDFromRequest(r *http.Request) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return r.URL.Query().Get("session")
}
