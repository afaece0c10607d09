package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
)

var _ repository.BranchRepository = (*BranchRepo)(nil)

// BranchRepo filiais emissoras.
type BranchRepo struct {
	q Querier
}

// NewBranchRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewBranchRepository(q Querier) *BranchRepo {
	return &BranchRepo{q: q}
}

// GetByID obtém a filial com certificado e ponto de controle.
func (r *BranchRepo) GetByID(ctx context.Context, id string) (*entity.Branch, error) {
	query := `
		SELECT id, company_id, name, cnpj, ie, uf, environment, certificate_path, certificate_password,
			last_nsu, last_sync_at, created_at, updated_at
		FROM branches WHERE id = $1`
	var b entity.Branch
	var certPath, certPassword *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.CompanyID, &b.Name, &b.CNPJ, &b.IE, &b.UF, &b.Environment, &certPath, &certPassword,
		&b.LastNSU, &b.LastSyncAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}
	b.CertificatePath = derefString(certPath)
	b.CertificatePassword = derefString(certPassword)
	return &b, nil
}

// UpdateLastNSU grava o último NSU processado.
func (r *BranchRepo) UpdateLastNSU(ctx context.Context, id, nsu string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE branches SET last_nsu = $2, last_sync_at = $3, updated_at = $3 WHERE id = $1`, id, nsu, at)
	if err != nil {
		return fmt.Errorf("update branch nsu: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
