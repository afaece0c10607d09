package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ repository.InboundDocumentRepository = (*InboundDocumentRepo)(nil)

// InboundDocumentRepo documentos recebidos e seus itens (pool ou tx).
type InboundDocumentRepo struct {
	q Querier
}

// NewInboundDocumentRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewInboundDocumentRepository(q Querier) *InboundDocumentRepo {
	return &InboundDocumentRepo{q: q}
}

// ExistsByAccessKey pré-checagem de duplicidade.
func (r *InboundDocumentRepo) ExistsByAccessKey(ctx context.Context, companyID, key string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbound_documents WHERE company_id = $1 AND access_key = $2)`, companyID, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists inbound document: %w", err)
	}
	return exists, nil
}

// Create grava cabeçalho e itens. Violação de UNIQUE (company_id, access_key) vira domain.ErrDuplicate.
func (r *InboundDocumentRepo) Create(ctx context.Context, doc *entity.InboundDocument) error {
	query := `
		INSERT INTO inbound_documents (id, company_id, branch_id, access_key, kind, model, series, number,
			issuer_tax_id, issuer_name, partner_id, issued_at, cfop, total_value, nsu, schema_name, xml, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.CompanyID, nullIfEmpty(doc.BranchID), doc.AccessKey, doc.Kind, doc.Model, doc.Series, doc.Number,
		doc.IssuerTaxID, doc.IssuerName, nullIfEmpty(doc.PartnerID), nullTime(doc.IssuedAt), doc.CFOP, doc.TotalValue,
		doc.NSU, doc.Schema, doc.XML, doc.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert inbound document: %w", err)
	}
	if len(doc.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, it := range doc.Items {
		batch.Queue(`
			INSERT INTO inbound_document_items (document_id, item_number, product_id, code, description, ncm, cfop, cst, unit,
				quantity, unit_value, total_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			doc.ID, i+1, nullIfEmpty(it.ProductID), it.Code, it.Description, it.NCM, it.CFOP, it.CST, it.Unit,
			it.Quantity, it.UnitValue, it.TotalValue,
		)
	}
	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for i := range doc.Items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert inbound item %d: %w", i+1, err)
		}
	}
	return br.Close()
}
