package repository

import (
	"context"
	"time"

	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// BranchRepository define o porto de persistência das filiais.
type BranchRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Branch, error)
	// UpdateLastNSU grava o ponto de controle da distribuição DF-e.
	UpdateLastNSU(ctx context.Context, id, nsu string, at time.Time) error
}
