package stats

import (
	"github.com/gofiber/fiber/v3"
	"github.com/privstream/privrec/internal/services/stats"
)

type Controller struct {
	service *stats.Service
}

func NewController(app *fiber.App, service *stats.Service) *Controller {
	sc := &Controller{service: service}
	app.Get("/stats", sc.snapshot)
	return sc
}

func (s *Controller) snapshot(ctx fiber.Ctx) error {
	return ctx.JSON(s.service.Snapshot())
}
