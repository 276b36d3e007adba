package rest

import (
	domainSession "github.com/hctoledo/wachannel/domains/session"
	"github.com/hctoledo/wachannel/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Session struct {
	Service domainSession.ISessionUsecase
}

func InitRestSession(app fiber.Router, service domainSession.ISessionUsecase) Session {
	rest := Session{Service: service}
	app.Post("/sessions", rest.Create)
	app.Get("/sessions", rest.List)
	app.Get("/sessions/:id", rest.Status)
	app.Delete("/sessions/:id", rest.Disconnect)
	app.Post("/sessions/:id/send", rest.Send)
	app.Get("/sessions/:id/conversations", rest.Conversations)
	return rest
}

func (controller *Session) Create(c *fiber.Ctx) error {
	var request domainSession.CreateSessionRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := controller.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create session",
		Results: response,
	})
}

func (controller *Session) List(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "user_id is required",
		})
	}

	sessions, err := controller.Service.ListByUser(c.UserContext(), userID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch sessions",
		Results: sessions,
	})
}

func (controller *Session) Status(c *fiber.Ctx) error {
	response, err := controller.Service.Status(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch session status",
		Results: response,
	})
}

func (controller *Session) Disconnect(c *fiber.Ctx) error {
	err := controller.Service.Disconnect(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success disconnect session",
	})
}

func (controller *Session) Send(c *fiber.Ctx) error {
	var request domainSession.SendMessageRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	request.SessionID = c.Params("id")

	err = controller.Service.Send(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success send message",
	})
}

func (controller *Session) Conversations(c *fiber.Ctx) error {
	conversations, err := controller.Service.Conversations(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch conversations",
		Results: conversations,
	})
}
