package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ repository.CTeRepository = (*CTeRepo)(nil)

// CTeRepo CT-e emitidos (pool ou tx).
type CTeRepo struct {
	q Querier
}

// NewCTeRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewCTeRepository(q Querier) *CTeRepo {
	return &CTeRepo{q: q}
}

const cteColumns = `id, company_id, branch_id, access_key, code, series, number, status, input, xml,
	transmission_protocol, transmitted_at, protocol, authorized_at, status_code, status_message,
	cancel_protocol, cancel_reason, cancelled_at, created_at, updated_at`

// Create persiste o CT-e recém-montado.
func (r *CTeRepo) Create(ctx context.Context, c *entity.CTeRecord) error {
	query := `INSERT INTO ctes (` + cteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.CompanyID, c.BranchID, c.AccessKey, c.Code, c.Series, c.Number, c.Status, c.Input, c.XML,
		c.TransmissionProtocol, c.TransmittedAt, c.Protocol, c.AuthorizedAt, c.StatusCode, c.StatusMessage,
		c.CancelProtocol, c.CancelReason, c.CancelledAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert cte: %w", err)
	}
	return nil
}

// Update grava estado, XML e protocolos.
func (r *CTeRepo) Update(ctx context.Context, c *entity.CTeRecord) error {
	query := `
		UPDATE ctes SET status = $2, xml = $3, transmission_protocol = $4, transmitted_at = $5,
			protocol = $6, authorized_at = $7, status_code = $8, status_message = $9,
			cancel_protocol = $10, cancel_reason = $11, cancelled_at = $12, updated_at = $13
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.Status, c.XML, c.TransmissionProtocol, c.TransmittedAt,
		c.Protocol, c.AuthorizedAt, c.StatusCode, c.StatusMessage,
		c.CancelProtocol, c.CancelReason, c.CancelledAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update cte: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByAccessKey obtém o CT-e da empresa pela chave.
func (r *CTeRepo) GetByAccessKey(ctx context.Context, companyID, key string) (*entity.CTeRecord, error) {
	query := `SELECT ` + cteColumns + ` FROM ctes WHERE company_id = $1 AND access_key = $2`
	var c entity.CTeRecord
	err := r.q.QueryRow(ctx, query, companyID, key).Scan(
		&c.ID, &c.CompanyID, &c.BranchID, &c.AccessKey, &c.Code, &c.Series, &c.Number, &c.Status, &c.Input, &c.XML,
		&c.TransmissionProtocol, &c.TransmittedAt, &c.Protocol, &c.AuthorizedAt, &c.StatusCode, &c.StatusMessage,
		&c.CancelProtocol, &c.CancelReason, &c.CancelledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cte: %w", err)
	}
	return &c, nil
}

// NextNumber reserva o próximo nCT da série (contador por filial, atômico no UPSERT).
func (r *CTeRepo) NextNumber(ctx context.Context, branchID string, series int) (int, error) {
	query := `
		INSERT INTO cte_numbering (branch_id, series, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_id, series) DO UPDATE SET last_number = cte_numbering.last_number + 1
		RETURNING last_number`
	var n int
	if err := r.q.QueryRow(ctx, query, branchID, series).Scan(&n); err != nil {
		return 0, fmt.Errorf("next cte number: %w", err)
	}
	return n, nil
}
