package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ repository.BusinessPartnerRepository = (*BusinessPartnerRepo)(nil)

// BusinessPartnerRepo implementação de BusinessPartnerRepository (pool ou tx).
type BusinessPartnerRepo struct {
	q Querier
}

// NewBusinessPartnerRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewBusinessPartnerRepository(q Querier) *BusinessPartnerRepo {
	return &BusinessPartnerRepo{q: q}
}

// UpsertByTaxID insere ou atualiza pelo par (empresa, CNPJ/CPF). O papel existente é
// preservado; razão social e endereço seguem o documento mais recente.
func (r *BusinessPartnerRepo) UpsertByTaxID(ctx context.Context, p *entity.BusinessPartner) (bool, error) {
	query := `
		INSERT INTO business_partners (company_id, tax_id, ie, legal_name, trade_name, role, city, uf, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (company_id, tax_id) DO UPDATE SET
			ie         = COALESCE(NULLIF(EXCLUDED.ie, ''), business_partners.ie),
			legal_name = EXCLUDED.legal_name,
			trade_name = COALESCE(NULLIF(EXCLUDED.trade_name, ''), business_partners.trade_name),
			city       = EXCLUDED.city,
			uf         = EXCLUDED.uf,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted`
	var created bool
	err := r.q.QueryRow(ctx, query,
		p.CompanyID, p.TaxID, p.IE, p.LegalName, p.TradeName, p.Role, p.City, p.UF, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &created)
	if err != nil {
		return false, fmt.Errorf("upsert business partner %s: %w", p.TaxID, err)
	}
	return created, nil
}
