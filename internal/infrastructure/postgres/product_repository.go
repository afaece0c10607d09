package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo implementação de ProductRepository sobre PostgreSQL (pool ou tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// UpsertByCode cria o produto ou atualiza descrição e último preço do existente.
// xmax = 0 só na linha recém-inserida.
func (r *ProductRepo) UpsertByCode(ctx context.Context, p *entity.Product) (bool, error) {
	query := `
		INSERT INTO products (company_id, partner_id, code, description, ncm, cest, unit, last_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (company_id, partner_id, code) DO UPDATE SET
			description = EXCLUDED.description,
			ncm         = COALESCE(NULLIF(EXCLUDED.ncm, ''), products.ncm),
			unit        = EXCLUDED.unit,
			last_price  = EXCLUDED.last_price,
			updated_at  = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted`
	var created bool
	err := r.q.QueryRow(ctx, query,
		p.CompanyID, nullIfEmpty(p.PartnerID), p.Code, p.Description, p.NCM, p.CEST, p.Unit, p.LastPrice,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &created)
	if err != nil {
		return false, fmt.Errorf("upsert product %s: %w", p.Code, err)
	}
	return created, nil
}
