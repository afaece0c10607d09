package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/cte-api/internal/application/inbound"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ inbound.TxRunner = (*TxRunner)(nil)

// TxRunner executa callbacks dentro de uma transação PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner constrói o runner com o pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInbound grava um documento recebido com parceiro e produtos na mesma transação.
// Erro em qualquer etapa desfaz tudo; o documento seguinte do lote não é afetado.
func (r *TxRunner) RunInbound(ctx context.Context, fn func(
	docRepo repository.InboundDocumentRepository,
	partnerRepo repository.BusinessPartnerRepository,
	productRepo repository.ProductRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewInboundDocumentRepository(tx), NewBusinessPartnerRepository(tx), NewProductRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
