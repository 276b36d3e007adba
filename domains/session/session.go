package session

import (
	"context"

	"github.com/hctoledo/wachannel/domains/chatstorage"
)

type CreateSessionRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
	UserID    string `json:"user_id" form:"user_id"`
}

type SendMessageRequest struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone" form:"phone"`
	Message   string `json:"message" form:"message"`
}

type StatusResponse struct {
	SessionID   string                    `json:"session_id"`
	Status      chatstorage.SessionStatus `json:"status"`
	PhoneNumber string                    `json:"phone_number,omitempty"`
	QRCode      string                    `json:"qr_code,omitempty"`
}

type ISessionUsecase interface {
	Create(ctx context.Context, request CreateSessionRequest) (StatusResponse, error)
	Disconnect(ctx context.Context, sessionID string) error
	Send(ctx context.Context, request SendMessageRequest) error
	Status(ctx context.Context, sessionID string) (StatusResponse, error)
	ListByUser(ctx context.Context, userID string) ([]StatusResponse, error)
	Conversations(ctx context.Context, sessionID string) ([]*chatstorage.Conversation, error)
}
