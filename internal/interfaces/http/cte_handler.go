package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cte-api/internal/application/dto"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

// CTeService casos de uso de emissão consumidos pelo handler. Implementado por *emission.Service.
type CTeService interface {
	Issue(ctx context.Context, companyID, branchID string, in cte.DocumentInput) (*entity.CTeRecord, error)
	Cancel(ctx context.Context, companyID, key, reason string) (*entity.CTeRecord, error)
	Status(ctx context.Context, companyID, key string) (*entity.CTeRecord, *sefaz.StatusResult, error)
	DACTE(ctx context.Context, companyID, key string) ([]byte, string, error)
}

// CTeHandler rotas de CT-e emitidos (protegido).
type CTeHandler struct {
	svc CTeService
}

// NewCTeHandler constrói o handler.
func NewCTeHandler(svc CTeService) *CTeHandler {
	return &CTeHandler{svc: svc}
}

// Issue emite, transmite e autoriza um CT-e.
// POST /api/ctes
func (h *CTeHandler) Issue(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var req dto.IssueCTeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if req.BranchID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "branch_id obrigatório", Field: "branch_id"})
	}
	rec, err := h.svc.Issue(c.Context(), companyID, req.BranchID, req.ToInput())
	if err != nil {
		if rec != nil {
			// gravado em BUILT/TRANSMITTED; a chave permite consultar depois
			c.Set("X-CTe-Access-Key", rec.AccessKey)
		}
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if cte.Status(rec.Status) == cte.StatusAuthorized {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(dto.NewCTeResponse(rec))
}

// Cancel registra o evento de cancelamento.
// POST /api/ctes/:key/cancel
func (h *CTeHandler) Cancel(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var req dto.CancelCTeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	rec, err := h.svc.Cancel(c.Context(), companyID, c.Params("key"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewCTeResponse(rec))
}

// Status devolve a situação gravada e a consulta na SEFAZ.
// GET /api/ctes/:key/status
func (h *CTeHandler) Status(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	rec, remote, err := h.svc.Status(c.Context(), companyID, c.Params("key"))
	if err != nil {
		return respondError(c, err)
	}
	out := dto.CTeStatusResponse{CTeResponse: dto.NewCTeResponse(rec)}
	if remote != nil {
		out.Remote = &dto.RemoteStatusDTO{
			StatusCode: remote.StatusCode,
			Message:    remote.Message,
			Protocol:   remote.Protocol,
			Status:     string(remote.Status),
		}
	}
	return c.JSON(out)
}

// DACTE devolve o PDF do CT-e autorizado.
// GET /api/ctes/:key/dacte
func (h *CTeHandler) DACTE(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	pdf, filename, err := h.svc.DACTE(c.Context(), companyID, c.Params("key"))
	if err != nil {
		return respondError(c, err)
	}
	disposition := "inline"
	if strings.EqualFold(c.Query("download"), "true") {
		disposition = "attachment"
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, disposition+`; filename="`+filename+`"`)
	return c.Send(pdf)
}
