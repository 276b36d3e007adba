package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	domainSession "github.com/hctoledo/wachannel/domains/session"
	pkgError "github.com/hctoledo/wachannel/pkg/error"
)

func ValidateCreateSession(ctx context.Context, request *domainSession.CreateSessionRequest) error {
	err := validation.ValidateStructWithContext(ctx, request,
		validation.Field(&request.UserID, validation.Required),
		validation.Field(&request.SessionID, validation.Length(0, 64)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMessage(ctx context.Context, request *domainSession.SendMessageRequest) error {
	err := validation.ValidateStructWithContext(ctx, request,
		validation.Field(&request.SessionID, validation.Required),
		validation.Field(&request.Phone, validation.Required),
		validation.Field(&request.Message, validation.Required, validation.Length(1, 4096)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
