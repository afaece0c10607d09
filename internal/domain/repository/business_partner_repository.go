package repository

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// BusinessPartnerRepository define o porto de persistência de parceiros.
type BusinessPartnerRepository interface {
	// UpsertByTaxID cria ou atualiza pelo par (empresa, CNPJ/CPF) e preenche p.ID.
	// created=false quando o parceiro já existia.
	UpsertByTaxID(ctx context.Context, p *entity.BusinessPartner) (created bool, err error)
}
