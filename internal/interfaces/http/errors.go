package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cte-api/internal/application/dto"
	"github.com/jhoicas/cte-api/internal/application/emission"
	"github.com/jhoicas/cte-api/internal/domain"
)

// respondError traduz a taxonomia de erros do domínio em status HTTP.
func respondError(c *fiber.Ctx, err error) error {
	status, body := classify(err)
	return c.Status(status).JSON(body)
}

func classify(err error) (int, dto.ErrorResponse) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "VALIDATION", Message: err.Error(), Field: ve.Field}
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, dto.ErrorResponse{Code: "FORBIDDEN", Message: "acesso negado ao recurso"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, emission.ErrEventRefused):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "EVENT_REFUSED", Message: err.Error()}
	case domain.IsTransient(err):
		return fiber.StatusServiceUnavailable, dto.ErrorResponse{Code: "SEFAZ_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, domain.ErrGateway):
		return fiber.StatusBadGateway, dto.ErrorResponse{Code: "SEFAZ_ERROR", Message: err.Error()}
	case errors.Is(err, domain.ErrNotImplemented):
		return fiber.StatusNotImplemented, dto.ErrorResponse{Code: "NOT_IMPLEMENTED", Message: err.Error()}
	default:
		return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	}
}
