package inbound

import (
	"context"
	"time"

	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

// TxRunner executa a unidade de trabalho de um documento recebido em uma transação.
type TxRunner interface {
	RunInbound(ctx context.Context, fn func(
		docRepo repository.InboundDocumentRepository,
		partnerRepo repository.BusinessPartnerRepository,
		productRepo repository.ProductRepository,
	) error) error
}

// DistributionGateway consulta a distribuição DF-e em nome de uma filial.
type DistributionGateway interface {
	Distribution(ctx context.Context, req sefaz.DistributionRequest) (*sefaz.DistributionResult, error)
}

// GatewayProvider entrega o gateway configurado com o certificado da filial.
type GatewayProvider interface {
	ForBranch(ctx context.Context, branch *entity.Branch) (DistributionGateway, error)
}

// GatewayProviderFunc adapta uma função a GatewayProvider.
type GatewayProviderFunc func(ctx context.Context, branch *entity.Branch) (DistributionGateway, error)

// ForBranch implementa GatewayProvider.
func (f GatewayProviderFunc) ForBranch(ctx context.Context, branch *entity.Branch) (DistributionGateway, error) {
	return f(ctx, branch)
}

// Locker trava exclusiva com expiração. release é idempotente.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}
