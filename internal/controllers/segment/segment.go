package segment

import (
	"github.com/gofiber/fiber/v3"
	"github.com/privstream/privrec/internal/services/file"
	"github.com/privstream/privrec/internal/services/relocate"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("controller", "segment")

type Controller struct {
	relocator *relocate.Service
	files     *file.Service
}

func NewController(app *fiber.App, relocator *relocate.Service, files *file.Service) *Controller {
	sc := &Controller{relocator: relocator, files: files}
	segments := app.Group("/segments")
	segments.Get("/", sc.listSegments)
	segments.Get("/files", sc.listFiles)
	return sc
}

// listSegments serves the bbolt-indexed records, optionally per stream.
func (s *Controller) listSegments(ctx fiber.Ctx) error {
	records, err := s.relocator.ListSegments(ctx.Query("stream"))
	if err != nil {
		logger.Errorf("cannot list segments: %v", err)
		return fiber.ErrInternalServerError
	}
	return ctx.JSON(records)
}

// listFiles serves the durable tree directly, for browsing partitions.
func (s *Controller) listFiles(ctx fiber.Ctx) error {
	entries, err := s.files.ListSegmentFiles(ctx.Query("path"))
	if err != nil {
		switch err {
		case file.ErrAccessDenied, file.ErrInvalidFilePath:
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(fiber.StatusNotFound, "path not found")
		}
	}
	return ctx.JSON(entries)
}
