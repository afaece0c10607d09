package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cte-api/internal/application/dto"
	"github.com/jhoicas/cte-api/internal/application/inbound"
	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

// maxImportDocuments limite de XMLs por requisição de importação manual.
const maxImportDocuments = 500

// Downloader distribuição DF-e de uma filial. Implementado por *inbound.DownloadOrchestrator.
type Downloader interface {
	Download(ctx context.Context, branchID string) (*inbound.ImportBatch, error)
}

// Importer importação de XMLs recebidos. Implementado por *inbound.Processor.
type Importer interface {
	Process(ctx context.Context, companyID, branchID string, raws []inbound.RawDocument) (*inbound.ImportBatch, error)
}

// InboundHandler rotas de documentos recebidos (protegido).
type InboundHandler struct {
	branches   repository.BranchRepository
	downloader Downloader
	importer   Importer
}

// NewInboundHandler constrói o handler.
func NewInboundHandler(branches repository.BranchRepository, downloader Downloader, importer Importer) *InboundHandler {
	return &InboundHandler{branches: branches, downloader: downloader, importer: importer}
}

// Download consulta a distribuição DF-e da filial desde o último NSU e importa o que chegou.
// POST /api/branches/:id/dfe/download
func (h *InboundHandler) Download(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	branch, err := ownedBranch(c.Context(), h.branches, companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	batch, err := h.downloader.Download(c.Context(), branch.ID)
	if err != nil {
		if batch != nil {
			// páginas já importadas continuam valendo
			status, body := classify(err)
			return c.Status(status).JSON(fiber.Map{"error": body, "batch": batch})
		}
		return respondError(c, err)
	}
	return c.JSON(batch)
}

// Import importa XMLs enviados pelo cliente com a mesma regra da distribuição.
// POST /api/inbound/import
func (h *InboundHandler) Import(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var req dto.ImportDocumentsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxImportDocuments {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "VALIDATION", Field: "documents",
			Message: fmt.Sprintf("informe de 1 a %d documentos", maxImportDocuments),
		})
	}
	branch, err := ownedBranch(c.Context(), h.branches, companyID, req.BranchID)
	if err != nil {
		return respondError(c, err)
	}
	raws := make([]inbound.RawDocument, len(req.Documents))
	for i, d := range req.Documents {
		raws[i] = inbound.RawDocument{AccessKey: d.AccessKey, Content: []byte(d.XML)}
	}
	batch, err := h.importer.Process(c.Context(), companyID, branch.ID, raws)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(batch)
}

// ownedBranch carrega a filial e confere se pertence à empresa do token.
func ownedBranch(ctx context.Context, branches repository.BranchRepository, companyID, branchID string) (*entity.Branch, error) {
	if branchID == "" {
		return nil, domain.NewValidationError("branch_id", "obrigatório")
	}
	branch, err := branches.GetByID(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, fmt.Errorf("%w: filial %s", domain.ErrNotFound, branchID)
	}
	if branch.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return branch, nil
}
