// Package handler exposes the HTTP API on Fiber.
package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repolens/internal/port"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeNotFound          = "not_found"
	CodeValidation        = "validation_error"
	CodeInvalidRepository = "invalid_repository"
	CodePermissionDenied  = "permission_denied"
	CodeInvalidTransition = "invalid_state_transition"
	CodeJobNotCompleted   = "job_not_completed"
	CodeCommandFailed     = "command_failed"
	CodeInternal          = "internal_error"
)

// statusOf maps an error onto an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, port.ErrNotFound), errors.Is(err, port.ErrRendererNotFound):
		return fiber.StatusNotFound, CodeNotFound
	case errors.Is(err, port.ErrValidation):
		return fiber.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, port.ErrInvalidRepository):
		return fiber.StatusUnprocessableEntity, CodeInvalidRepository
	case errors.Is(err, port.ErrPermissionDenied):
		return fiber.StatusForbidden, CodePermissionDenied
	case errors.Is(err, port.ErrJobNotCompleted):
		return fiber.StatusConflict, CodeJobNotCompleted
	case errors.Is(err, port.ErrInvalidStateTransition):
		return fiber.StatusConflict, CodeInvalidTransition
	case errors.Is(err, port.ErrCommandFailed):
		return fiber.StatusBadGateway, CodeCommandFailed
	}
	return fiber.StatusInternalServerError, CodeInternal
}

// writeError renders err as {"error", "code"}, adding "details" for
// validation errors.
func writeError(c fiber.Ctx, err error) error {
	status, code := statusOf(err)
	body := fiber.Map{"error": err.Error(), "code": code}

	var ve port.ValidationErrors
	if errors.As(err, &ve) {
		body["error"] = "validation failed"
		body["details"] = ve
	}
	switch {
	case errors.Is(err, port.ErrJobNotCompleted):
		body["error"] = "job not completed"
	case status == fiber.StatusInternalServerError:
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		body["error"] = "internal server error"
	}
	return c.Status(status).JSON(body)
}

// invalidBody reports a request body that could not be decoded.
func invalidBody(c fiber.Ctx, err error) error {
	return writeError(c, port.NewValidationError(port.KindType, "invalid request body: "+err.Error(), "body"))
}

// queryInt parses an optional integer query parameter.
func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, port.NewValidationError(port.KindType, "must be an integer", "query", key)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(c fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, port.NewValidationError(port.KindType, "must be a boolean", "query", key)
	}
	return &b, nil
}
