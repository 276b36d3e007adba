package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	pkgError "github.com/hctoledo/wachannel/pkg/error"
	"github.com/hctoledo/wachannel/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Recovery converts panics raised by handlers into JSON error responses.
// Typed errors keep their HTTP status, anything else becomes a 500.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				logrus.Errorf("Panic recovered in middleware: %v", err)

				typedError, isTypedError := err.(pkgError.GenericError)
				if isTypedError {
					res.Status = typedError.StatusCode()
					res.Code = typedError.ErrCode()
					res.Message = typedError.Error()
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
