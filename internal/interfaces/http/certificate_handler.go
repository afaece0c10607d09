package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cte-api/internal/application/dto"
	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz/signer"
)

// CertificateValidator leitura do certificado A1. Implementado por *signer.CertificateService.
type CertificateValidator interface {
	Validate(path, password string) (*signer.CertificateInfo, error)
}

// CertificateHandler validação do certificado configurado na filial.
type CertificateHandler struct {
	branches  repository.BranchRepository
	validator CertificateValidator
}

// NewCertificateHandler constrói o handler.
func NewCertificateHandler(branches repository.BranchRepository, validator CertificateValidator) *CertificateHandler {
	return &CertificateHandler{branches: branches, validator: validator}
}

// Validate abre o certificado da filial e devolve titular, emissor e validade.
// GET /api/branches/:id/certificate
func (h *CertificateHandler) Validate(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	branch, err := ownedBranch(c.Context(), h.branches, companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if branch.CertificatePath == "" {
		return respondError(c, domain.NewValidationError("filial.certificado", "certificado A1 não configurado"))
	}
	info, err := h.validator.Validate(branch.CertificatePath, branch.CertificatePassword)
	if err != nil {
		return respondError(c, err)
	}
	if info.TaxID != "" && info.TaxID != branch.CNPJ {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":        "CERTIFICATE_MISMATCH",
			"message":     "CNPJ do certificado difere do CNPJ da filial",
			"certificate": info,
		})
	}
	return c.JSON(info)
}
