package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/logging"
)

// HandleBrochurePopulate checks a brochure payload and acknowledges it.
// Nothing is stored; the client keeps the content in its own state.
func HandleBrochurePopulate(c *fiber.Ctx) error {
	bc, err := domain.ParseBrochureContent(c.Body())
	if err != nil {
		logging.Warn("Rejected brochure payload", "error", err, "request_id", c.GetRespHeader(fiber.HeaderXRequestID))
		if errors.Is(err, domain.ErrBrochureSyntax) {
			return fiber.NewError(fiber.StatusBadRequest, domain.BrochureInvalidJSON)
		}
		return fiber.NewError(fiber.StatusBadRequest, domain.BrochureInvalidStructure)
	}

	logging.Info("Brochure payload received", "title", *bc.Meta.BrochureTitle)
	return c.JSON(fiber.Map{"message": domain.BrochureAcceptedMessage})
}
