package handlers

import (
	"errors"

	"coin-rewards-ledger/services"
	"coin-rewards-ledger/store"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors to a status and the usual {"error": ...} body.
func respondError(c *fiber.Ctx, log *logrus.Entry, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrReferralNotFound),
		errors.Is(err, services.ErrUnknownTier):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrRequestFinalized):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrChallengeNotMet):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrTooManyRetries), errors.Is(err, store.ErrUnavailable):
		log.WithError(err).WithField("path", c.Path()).Warn("store unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage busy, try again"})
	}

	log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid JSON",
		"cause": err.Error(),
	})
}
