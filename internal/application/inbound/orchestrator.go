package inbound

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/cte-api/pkg/logger"
	pkgsefaz "github.com/jhoicas/cte-api/pkg/sefaz"
)

// OrchestratorConfig limites do ciclo de download.
type OrchestratorConfig struct {
	Kind     sefaz.Kind    // padrão KindCTe
	MaxPages int           // padrão 20 (50 documentos por página na SEFAZ)
	LockTTL  time.Duration // padrão 10 min
}

// DownloadOrchestrator coordena: trava da filial → configuração → distribuição paginada →
// Processor → ponto de controle (ultNSU).
type DownloadOrchestrator struct {
	branches  repository.BranchRepository
	gateways  GatewayProvider
	processor *Processor
	locker    Locker
	cfg       OrchestratorConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewDownloadOrchestrator cria o orquestrador.
func NewDownloadOrchestrator(branches repository.BranchRepository, gateways GatewayProvider, processor *Processor, locker Locker, cfg OrchestratorConfig, log *logger.Logger) *DownloadOrchestrator {
	if cfg.Kind == "" {
		cfg.Kind = sefaz.KindCTe
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &DownloadOrchestrator{
		branches:  branches,
		gateways:  gateways,
		processor: processor,
		locker:    locker,
		cfg:       cfg,
		log:       logger.OrNop(log).Component("inbound.download"),
		now:       time.Now,
	}
}

// Download busca tudo que ainda não foi entregue à filial desde o último NSU.
// Em falha no meio da paginação, devolve o lote parcial junto com o erro; o ponto de
// controle avança só até a última página processada.
func (o *DownloadOrchestrator) Download(ctx context.Context, branchID string) (*ImportBatch, error) {
	release, ok, err := o.locker.Acquire(ctx, "dfe:branch:"+branchID, o.cfg.LockTTL)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "inbound: travar filial", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%w: download da filial %s já em andamento", domain.ErrConflict, branchID)
	}
	defer release()

	branch, err := o.branches.GetByID(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("inbound: buscar filial: %w", err)
	}
	if branch == nil {
		return nil, fmt.Errorf("%w: filial %s", domain.ErrNotFound, branchID)
	}
	if err := pkgsefaz.ValidateCNPJ(branch.CNPJ); err != nil {
		return nil, domain.NewValidationError("filial.cnpj", err.Error())
	}
	gw, err := o.gateways.ForBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	start := sefaz.PadNSU(branch.LastNSU)
	nsu := start
	total := &ImportBatch{LastNSU: nsu}
	var loopErr error

	for page := 0; page < o.cfg.MaxPages; page++ {
		res, err := gw.Distribution(ctx, sefaz.DistributionRequest{
			Kind:        o.cfg.Kind,
			TaxID:       branch.CNPJ,
			UF:          branch.UF,
			Environment: branch.Environment,
			LastNSU:     nsu,
		})
		if err != nil {
			loopErr = err
			break
		}
		total.Pages++
		if res.StatusCode == pkgsefaz.StatusOverConsumption {
			o.log.Warn().Str("filial", branchID).Str("xMotivo", res.Message).Msg("consumo indevido; interrompendo paginação")
			break
		}

		raws := make([]RawDocument, 0, len(res.Documents))
		for _, d := range res.Documents {
			raws = append(raws, RawDocument{NSU: d.NSU, Schema: d.Schema, Content: d.Content, Err: d.Err})
		}
		if len(raws) > 0 {
			batch, err := o.processor.Process(ctx, branch.CompanyID, branch.ID, raws)
			if err != nil {
				loopErr = err
				break
			}
			total.Merge(batch)
		}
		if res.LastNSU != "" {
			nsu = sefaz.PadNSU(res.LastNSU)
		}
		if res.Exhausted() {
			break
		}
	}
	total.LastNSU = nsu
	total.FinishedAt = o.now()

	if nsu != start {
		if err := o.branches.UpdateLastNSU(ctx, branch.ID, nsu, total.FinishedAt); err != nil {
			o.log.Error().Err(err).Str("filial", branchID).Str("ultNSU", nsu).Msg("falha ao gravar ponto de controle")
			if loopErr == nil {
				loopErr = fmt.Errorf("inbound: gravar ultNSU: %w", err)
			}
		}
	}

	o.log.Info().Str("filial", branchID).Int("paginas", total.Pages).Str("ultNSU", nsu).Msg(total.Summary())
	if loopErr != nil {
		return total, loopErr
	}
	return total, nil
}
