package repository

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// CTeRepository define o porto de persistência dos CT-e emitidos.
type CTeRepository interface {
	Create(ctx context.Context, rec *entity.CTeRecord) error
	// Update grava estado, protocolos e XML; o resto da linha é imutável.
	Update(ctx context.Context, rec *entity.CTeRecord) error
	GetByAccessKey(ctx context.Context, companyID, key string) (*entity.CTeRecord, error)
	// NextNumber devolve o próximo nCT livre da série na filial.
	NextNumber(ctx context.Context, branchID string, series int) (int, error)
}
