package main

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/pkg/config"
)

// branchDefaults completa a filial com o certificado e a UF padrão da configuração
// quando o cadastro não informa.
type branchDefaults struct {
	repository.BranchRepository
	sefaz config.SEFAZConfig
}

func (r branchDefaults) GetByID(ctx context.Context, id string) (*entity.Branch, error) {
	b, err := r.BranchRepository.GetByID(ctx, id)
	if err != nil || b == nil {
		return b, err
	}
	if b.CertificatePath == "" && r.sefaz.CertPath != "" {
		b.CertificatePath, b.CertificatePassword = r.sefaz.CertPath, r.sefaz.CertPassword
	}
	if b.UF == "" {
		b.UF = r.sefaz.UF
	}
	if b.Environment == 0 {
		b.Environment = r.sefaz.Environment
	}
	return b, nil
}
