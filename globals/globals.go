package globals

type contextKey string

const (
	UserIDKey    contextKey = "userId"
	SessionIDKey contextKey = "sessionId"
)
