package repository

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// ProductRepository define o porto de persistência para Product.
type ProductRepository interface {
	// UpsertByCode vincula pelo (empresa, parceiro, cProd) ou cria; preenche p.ID.
	UpsertByCode(ctx context.Context, p *entity.Product) (created bool, err error)
}
