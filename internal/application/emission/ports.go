package emission

import (
	"context"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/dacte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

// DocumentBuilder valida a entrada e monta o XML no estado BUILT.
type DocumentBuilder interface {
	Issue(in cte.DocumentInput) (cte.IssuedDocument, error)
}

// DocumentSigner assina o XML com o certificado A1 em disco.
type DocumentSigner interface {
	SignFile(xml []byte, path, password string) ([]byte, error)
}

// FiscalGateway operações de autorização do CT-e na SEFAZ.
type FiscalGateway interface {
	Mode() sefaz.TransmissionMode
	Transmit(ctx context.Context, doc cte.IssuedDocument) (*sefaz.TransmitResult, error)
	Authorize(ctx context.Context, doc cte.IssuedDocument) (*sefaz.AuthorizeResult, error)
	Cancel(ctx context.Context, doc cte.IssuedDocument, reason string) (*sefaz.CancelResult, error)
	QueryStatus(ctx context.Context, key string) (*sefaz.StatusResult, error)
}

// GatewayProvider entrega o gateway da filial.
type GatewayProvider interface {
	ForBranch(ctx context.Context, branch *entity.Branch) (FiscalGateway, error)
}

// GatewayProviderFunc adapta uma função a GatewayProvider.
type GatewayProviderFunc func(ctx context.Context, branch *entity.Branch) (FiscalGateway, error)

// ForBranch implementa GatewayProvider.
func (f GatewayProviderFunc) ForBranch(ctx context.Context, branch *entity.Branch) (FiscalGateway, error) {
	return f(ctx, branch)
}

// DACTERenderer gera o PDF do DACTE a partir da projeção imprimível.
type DACTERenderer interface {
	Render(doc *dacte.PrintableDocument) ([]byte, error)
}

// SchemaValidator valida o XML assinado contra o XSD oficial.
type SchemaValidator interface {
	Validate(xml []byte) error
}
