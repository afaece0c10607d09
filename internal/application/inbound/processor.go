// Package inbound importa documentos fiscais recebidos (distribuição DF-e ou upload):
// deduplicação por chave de acesso, vínculo de parceiros e produtos e resumo do lote.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/pkg/logger"
)

// DefaultWorkers documentos processados em paralelo por lote.
const DefaultWorkers = 4

// Processor importa lotes de documentos recebidos. Cada documento é uma unidade de
// trabalho independente; a constraint UNIQUE da chave decide duplicidades concorrentes.
type Processor struct {
	docs    repository.InboundDocumentRepository
	tx      TxRunner
	workers int
	log     *logger.Logger
	now     func() time.Time
}

// NewProcessor cria o processador. workers <= 0 usa DefaultWorkers.
func NewProcessor(docs repository.InboundDocumentRepository, tx TxRunner, workers int, log *logger.Logger) *Processor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Processor{
		docs:    docs,
		tx:      tx,
		workers: workers,
		log:     logger.OrNop(log).Component("inbound.processor"),
		now:     time.Now,
	}
}

type outcomeKind int

const (
	outcomeImported outcomeKind = iota
	outcomeDuplicate
	outcomeSkipped
	outcomeError
)

type outcome struct {
	kind            outcomeKind
	key             string
	err             error
	partnerID       string
	partnerCreated  bool
	productIDs      []string
	productsCreated int
}

// Process importa os documentos e nunca aborta o lote: falhas viram Errors/Failures.
// O erro de retorno só aparece com o contexto cancelado.
func (p *Processor) Process(ctx context.Context, companyID, branchID string, raws []RawDocument) (*ImportBatch, error) {
	outcomes := make([]outcome, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.processOne(gctx, companyID, branchID, raws[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &ImportBatch{Total: len(raws), FinishedAt: p.now()}
	for i, o := range outcomes {
		switch o.kind {
		case outcomeImported:
			batch.Imported++
			if o.partnerCreated {
				batch.PartnersCreated++
			} else {
				batch.PartnersLinked++
			}
			if o.partnerID != "" {
				batch.PartnerIDs = appendUnique(batch.PartnerIDs, o.partnerID)
			}
			batch.ProductIDs = appendUnique(batch.ProductIDs, o.productIDs...)
			batch.ProductsCreated += o.productsCreated
			batch.ProductsLinked += len(o.productIDs) - o.productsCreated
		case outcomeDuplicate:
			batch.Duplicates++
		case outcomeSkipped:
			batch.Skipped++
		case outcomeError:
			batch.Errors++
			batch.Failures = append(batch.Failures, ImportFailure{Index: i, NSU: raws[i].NSU, AccessKey: o.key, Reason: o.err.Error()})
		}
		if raws[i].NSU != "" && raws[i].NSU > batch.LastNSU {
			batch.LastNSU = raws[i].NSU
		}
	}
	sort.SliceStable(batch.Failures, func(a, b int) bool { return batch.Failures[a].Index < batch.Failures[b].Index })

	p.log.Info().Str("empresa", companyID).Int("total", batch.Total).Int("importados", batch.Imported).
		Int("duplicados", batch.Duplicates).Int("erros", batch.Errors).Msg("lote processado")
	return batch, nil
}

func (p *Processor) processOne(ctx context.Context, companyID, branchID string, raw RawDocument) outcome {
	if raw.Err != nil {
		return p.fail(raw, raw.AccessKey, raw.Err)
	}
	doc := etree.NewDocument()
	parseErr := doc.ReadFromBytes(raw.Content)

	if parseErr == nil && doc.Root() != nil && isSummary(doc.Root().Tag) {
		return outcome{kind: outcomeSkipped, key: raw.AccessKey}
	}

	key := raw.AccessKey
	if key == "" && parseErr == nil {
		key = extractKey(doc)
	}
	if key == "" {
		if parseErr != nil {
			return p.fail(raw, "", fmt.Errorf("XML inválido: %w", parseErr))
		}
		return p.fail(raw, "", errors.New("chave de acesso não encontrada"))
	}
	if err := cte.ValidateAccessKey(key); err != nil {
		return p.fail(raw, key, err)
	}

	// pré-checagem barata; a constraint UNIQUE continua sendo a fonte da verdade
	exists, err := p.docs.ExistsByAccessKey(ctx, companyID, key)
	if err != nil {
		return p.fail(raw, key, err)
	}
	if exists {
		p.log.Debug().Str("chave", key).Msg("documento já importado")
		return outcome{kind: outcomeDuplicate, key: key}
	}
	if parseErr != nil {
		return p.fail(raw, key, fmt.Errorf("XML inválido: %w", parseErr))
	}

	parsed, err := parseDocument(doc)
	if err != nil {
		return p.fail(raw, key, err)
	}

	out := outcome{kind: outcomeImported, key: key}
	now := p.now()
	err = p.tx.RunInbound(ctx, func(docRepo repository.InboundDocumentRepository, partnerRepo repository.BusinessPartnerRepository, productRepo repository.ProductRepository) error {
		partner := parsed.Issuer
		partner.CompanyID = companyID
		partner.Role = parsed.IssuerRole
		partner.CreatedAt, partner.UpdatedAt = now, now
		created, err := partnerRepo.UpsertByTaxID(ctx, &partner)
		if err != nil {
			return fmt.Errorf("parceiro %s: %w", partner.TaxID, err)
		}
		out.partnerID, out.partnerCreated = partner.ID, created

		items := make([]entity.InboundItem, len(parsed.Items))
		for i, it := range parsed.Items {
			prod := entity.Product{
				CompanyID:   companyID,
				PartnerID:   partner.ID,
				Code:        it.Code,
				Description: it.Description,
				NCM:         it.NCM,
				Unit:        it.Unit,
				LastPrice:   it.UnitValue,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			created, err := productRepo.UpsertByCode(ctx, &prod)
			if err != nil {
				return fmt.Errorf("produto %s: %w", it.Code, err)
			}
			if created {
				out.productsCreated++
			}
			out.productIDs = append(out.productIDs, prod.ID)
			it.ProductID = prod.ID
			items[i] = it
		}

		return docRepo.Create(ctx, &entity.InboundDocument{
			ID:          uuid.NewString(),
			CompanyID:   companyID,
			BranchID:    branchID,
			AccessKey:   key,
			Kind:        parsed.Kind,
			Model:       parsed.Model,
			Series:      parsed.Series,
			Number:      parsed.Number,
			IssuerTaxID: partner.TaxID,
			IssuerName:  partner.LegalName,
			PartnerID:   partner.ID,
			IssuedAt:    parsed.IssuedAt,
			CFOP:        parsed.CFOP,
			TotalValue:  parsed.TotalValue,
			NSU:         raw.NSU,
			Schema:      raw.Schema,
			XML:         string(raw.Content),
			Items:       items,
			CreatedAt:   now,
		})
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// outra importação concorrente gravou a mesma chave
		p.log.Debug().Str("chave", key).Msg("duplicidade detectada na gravação")
		return outcome{kind: outcomeDuplicate, key: key}
	}
	if err != nil {
		return p.fail(raw, key, err)
	}
	return out
}

func (p *Processor) fail(raw RawDocument, key string, err error) outcome {
	p.log.Warn().Err(err).Str("nsu", raw.NSU).Str("chave", key).Msg("falha ao importar documento")
	return outcome{kind: outcomeError, key: key, err: err}
}

// isSummary resumos e eventos da distribuição não geram documento importado.
func isSummary(tag string) bool {
	for _, prefix := range []string{"resEvento", "resNFe", "resCTe", "procEvento"} {
		if strings.HasPrefix(tag, prefix) {
			return true
		}
	}
	return false
}
