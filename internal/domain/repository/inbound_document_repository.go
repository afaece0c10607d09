package repository

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// InboundDocumentRepository define o porto de persistência dos documentos recebidos.
type InboundDocumentRepository interface {
	// ExistsByAccessKey a unicidade é por empresa: o mesmo documento pode ser
	// destinado a mais de um contribuinte.
	ExistsByAccessKey(ctx context.Context, companyID, key string) (bool, error)
	// Create devolve domain.ErrDuplicate quando a chave já existe na empresa.
	Create(ctx context.Context, doc *entity.InboundDocument) error
}
