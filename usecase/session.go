package usecase

import (
	"context"

	"github.com/google/uuid"
	domainChatStorage "github.com/hctoledo/wachannel/domains/chatstorage"
	domainSession "github.com/hctoledo/wachannel/domains/session"
	"github.com/hctoledo/wachannel/engine"
	pkgError "github.com/hctoledo/wachannel/pkg/error"
	"github.com/hctoledo/wachannel/validations"
)

type sessionService struct {
	controller *engine.Controller
	dispatcher *engine.Dispatcher
	repo       domainChatStorage.IChatStorageRepository
}

func NewSessionService(
	controller *engine.Controller,
	dispatcher *engine.Dispatcher,
	repo domainChatStorage.IChatStorageRepository,
) domainSession.ISessionUsecase {
	return &sessionService{
		controller: controller,
		dispatcher: dispatcher,
		repo:       repo,
	}
}

func (service *sessionService) Create(ctx context.Context, request domainSession.CreateSessionRequest) (domainSession.StatusResponse, error) {
	if err := validations.ValidateCreateSession(ctx, &request); err != nil {
		return domainSession.StatusResponse{}, err
	}
	if request.SessionID == "" {
		request.SessionID = uuid.NewString()
	}

	if err := service.controller.CreateSession(ctx, request.SessionID, request.UserID); err != nil {
		return domainSession.StatusResponse{}, err
	}
	return service.Status(ctx, request.SessionID)
}

func (service *sessionService) Disconnect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgError.ValidationError("session_id: cannot be blank.")
	}
	if _, err := service.repo.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return service.controller.DisconnectSession(ctx, sessionID)
}

func (service *sessionService) Send(ctx context.Context, request domainSession.SendMessageRequest) error {
	if err := validations.ValidateSendMessage(ctx, &request); err != nil {
		return err
	}
	if !service.dispatcher.Send(ctx, request.SessionID, request.Phone, request.Message) {
		return pkgError.ErrSessionNotConnected
	}
	return nil
}

func (service *sessionService) Status(ctx context.Context, sessionID string) (domainSession.StatusResponse, error) {
	if sessionID == "" {
		return domainSession.StatusResponse{}, pkgError.ValidationError("session_id: cannot be blank.")
	}
	session, err := service.controller.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return domainSession.StatusResponse{}, err
	}
	return toStatusResponse(session), nil
}

func (service *sessionService) ListByUser(ctx context.Context, userID string) ([]domainSession.StatusResponse, error) {
	if userID == "" {
		return nil, pkgError.ValidationError("user_id: cannot be blank.")
	}
	sessions, err := service.repo.GetSessionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]domainSession.StatusResponse, 0, len(sessions))
	for _, session := range sessions {
		// The live view wins over the stored row while a link is active.
		if merged, err := service.controller.GetSessionStatus(ctx, session.ID); err == nil {
			session = merged
		}
		res = append(res, toStatusResponse(session))
	}
	return res, nil
}

func (service *sessionService) Conversations(ctx context.Context, sessionID string) ([]*domainChatStorage.Conversation, error) {
	if sessionID == "" {
		return nil, pkgError.ValidationError("session_id: cannot be blank.")
	}
	if _, err := service.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return service.repo.GetConversationsBySession(ctx, sessionID)
}

func toStatusResponse(session *domainChatStorage.Session) domainSession.StatusResponse {
	return domainSession.StatusResponse{
		SessionID:   session.ID,
		Status:      session.Status,
		PhoneNumber: session.PhoneNumber,
		QRCode:      session.QRCode,
	}
}
