package error

var (
	ErrSessionNotFound      = NotFoundError("session not found")
	ErrSessionNotConnected  = ValidationError("session is not connected")
	ErrConversationNotFound = NotFoundError("conversation not found")
)
