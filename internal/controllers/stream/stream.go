package stream

import (
	"github.com/gofiber/fiber/v3"
	"github.com/privstream/privrec/internal/services/capture"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("controller", "stream")

type Controller struct {
	service *capture.Service
}

func NewController(app *fiber.App, service *capture.Service) *Controller {
	sc := &Controller{service: service}
	streams := app.Group("/streams")
	streams.Get("/", sc.listStreams)
	streams.Post("/:streamID/start", sc.startStream)
	streams.Post("/:streamID/stop", sc.stopStream)
	streams.Get("/:streamID/status", sc.streamStatus)
	return sc
}

func (s *Controller) listStreams(ctx fiber.Ctx) error {
	return ctx.JSON(s.service.ListStreams())
}

func (s *Controller) startStream(ctx fiber.Ctx) error {
	streamID := ctx.Params("streamID")
	if err := s.service.Start(streamID); err != nil {
		logger.Warnf("cannot start stream %s: %v", streamID, err)
		switch err {
		case capture.ErrStreamNotConfigured:
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case capture.ErrStreamRunning:
			return fiber.NewError(fiber.StatusConflict, err.Error())
		default:
			return fiber.ErrInternalServerError
		}
	}
	return ctx.SendStatus(fiber.StatusOK)
}

func (s *Controller) stopStream(ctx fiber.Ctx) error {
	streamID := ctx.Params("streamID")
	stopped := s.service.Stop(streamID)
	return ctx.JSON(fiber.Map{
		"streamID": streamID,
		"success":  stopped,
	})
}

func (s *Controller) streamStatus(ctx fiber.Ctx) error {
	st, ok := s.service.State(ctx.Params("streamID"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "stream is not running")
	}
	return ctx.JSON(st.Info())
}
