// Package emission orquestra a emissão do CT-e: montagem, assinatura, transmissão,
// autorização e persistência, além de cancelamento, consulta e DACTE.
package emission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/dacte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/cte-api/pkg/logger"
)

// ErrEventRefused a SEFAZ recusou o evento (ex.: cancelamento fora do prazo).
var ErrEventRefused = errors.New("evento recusado pela SEFAZ")

// Service casos de uso do CT-e emitido.
type Service struct {
	branches repository.BranchRepository
	records  repository.CTeRepository
	builder  DocumentBuilder
	signer   DocumentSigner
	gateways GatewayProvider
	composer *dacte.Composer
	renderer DACTERenderer
	schema   SchemaValidator
	log      *logger.Logger
	now      func() time.Time
}

// Option configura o Service.
type Option func(*Service)

// WithSchemaValidation valida o XML assinado contra o XSD antes de gravar.
func WithSchemaValidation(v SchemaValidator) Option {
	return func(s *Service) { s.schema = v }
}

// NewService constrói o serviço. renderer pode ser nil: nesse caso o DACTE não é gerado.
func NewService(
	branches repository.BranchRepository,
	records repository.CTeRepository,
	builder DocumentBuilder,
	signer DocumentSigner,
	gateways GatewayProvider,
	renderer DACTERenderer,
	log *logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		branches: branches,
		records:  records,
		builder:  builder,
		signer:   signer,
		gateways: gateways,
		composer: dacte.NewComposer(),
		renderer: renderer,
		log:      logger.OrNop(log).Component("emission"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue emite o CT-e da filial: numeração, montagem, assinatura, transmissão e
// autorização. A linha é gravada em BUILT antes de qualquer chamada à SEFAZ; se a
// transmissão falhar, o registro volta junto com o erro.
func (s *Service) Issue(ctx context.Context, companyID, branchID string, in cte.DocumentInput) (*entity.CTeRecord, error) {
	branch, err := s.branchFor(ctx, companyID, branchID)
	if err != nil {
		return nil, err
	}
	if in.Issuer.TaxID == "" {
		in.Issuer.TaxID = branch.CNPJ
	}
	if in.Issuer.TaxID != branch.CNPJ {
		return nil, domain.NewValidationError("emit.CNPJ", "emitente difere do CNPJ da filial")
	}
	if in.Identification.Environment == 0 {
		in.Identification.Environment = branch.Environment
	}
	if in.Identification.EmittedAt.IsZero() {
		in.Identification.EmittedAt = s.now()
	}
	if in.Identification.Number == 0 {
		n, err := s.records.NextNumber(ctx, branch.ID, in.Identification.Series)
		if err != nil {
			return nil, fmt.Errorf("emissão: próximo nCT: %w", err)
		}
		in.Identification.Number = n
	}

	gw, err := s.gateways.ForBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	doc, err := s.builder.Issue(in)
	if err != nil {
		return nil, err
	}
	if doc, err = s.sign(branch, gw, doc); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := newRecord(companyID, branch.ID, doc, now)
	if err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("emissão: gravar CT-e: %w", err)
	}

	tr, err := gw.Transmit(ctx, doc)
	if err != nil {
		s.log.Error().Err(err).Str("chave", rec.AccessKey).Msg("falha na transmissão")
		return rec, err
	}
	doc = tr.Document
	applyDocument(rec, doc, s.now())
	rec.StatusCode, rec.StatusMessage = tr.StatusCode, tr.Message
	if err := s.records.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("emissão: gravar transmissão: %w", err)
	}

	ar, err := gw.Authorize(ctx, doc)
	if err != nil {
		s.log.Error().Err(err).Str("chave", rec.AccessKey).Msg("falha na autorização")
		return rec, err
	}
	applyDocument(rec, ar.Document, s.now())
	if err := s.records.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("emissão: gravar autorização: %w", err)
	}

	s.log.Info().Str("chave", rec.AccessKey).Str("status", rec.Status).Int("cStat", rec.StatusCode).
		Str("protocolo", rec.Protocol).Msg("CT-e processado")
	return rec, nil
}

func (s *Service) sign(branch *entity.Branch, gw FiscalGateway, doc cte.IssuedDocument) (cte.IssuedDocument, error) {
	if branch.CertificatePath == "" {
		if gw.Mode() == sefaz.ModeLive {
			return doc, domain.NewValidationError("filial.certificado", "certificado A1 não configurado")
		}
		s.log.Debug().Str("chave", doc.AccessKey.String()).Msg("filial sem certificado; XML não assinado (modo simulado)")
		return doc, nil
	}
	signed, err := s.signer.SignFile(doc.XML, branch.CertificatePath, branch.CertificatePassword)
	if err != nil {
		return doc, err
	}
	doc.XML = signed
	if s.schema != nil {
		if err := s.schema.Validate(signed); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// Cancel registra o evento de cancelamento (110111) de um CT-e autorizado.
func (s *Service) Cancel(ctx context.Context, companyID, key, reason string) (*entity.CTeRecord, error) {
	rec, branch, err := s.load(ctx, companyID, key)
	if err != nil {
		return nil, err
	}
	doc, err := documentFromRecord(rec)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.ForBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	res, err := gw.Cancel(ctx, doc, reason)
	if err != nil {
		return nil, err
	}
	if !res.Cancelled {
		return rec, fmt.Errorf("%w: cStat %d: %s", ErrEventRefused, res.StatusCode, res.Message)
	}
	applyDocument(rec, res.Document, s.now())
	rec.StatusMessage = res.Message
	if err := s.records.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("emissão: gravar cancelamento: %w", err)
	}
	s.log.Info().Str("chave", key).Str("protocolo", rec.CancelProtocol).Msg("CT-e cancelado")
	return rec, nil
}

// Status devolve a linha gravada e a situação atual consultada na SEFAZ.
func (s *Service) Status(ctx context.Context, companyID, key string) (*entity.CTeRecord, *sefaz.StatusResult, error) {
	rec, branch, err := s.load(ctx, companyID, key)
	if err != nil {
		return nil, nil, err
	}
	gw, err := s.gateways.ForBranch(ctx, branch)
	if err != nil {
		return nil, nil, err
	}
	remote, err := gw.QueryStatus(ctx, key)
	if err != nil {
		return rec, nil, err
	}
	return rec, remote, nil
}

// DACTE gera o PDF do CT-e autorizado.
//
// Retorna:
//   - domain.ErrNotFound     se o CT-e não existe para a empresa.
//   - domain.ErrInvalidInput se o CT-e não está autorizado.
func (s *Service) DACTE(ctx context.Context, companyID, key string) (pdf []byte, filename string, err error) {
	if s.renderer == nil {
		return nil, "", fmt.Errorf("%w: renderizador de DACTE", domain.ErrNotImplemented)
	}
	rec, _, err := s.load(ctx, companyID, key)
	if err != nil {
		return nil, "", err
	}
	if cte.Status(rec.Status) != cte.StatusAuthorized {
		return nil, "", fmt.Errorf("%w: CT-e em estado %s não tem DACTE", domain.ErrInvalidInput, rec.Status)
	}
	doc, err := documentFromRecord(rec)
	if err != nil {
		return nil, "", err
	}
	in, err := dacte.FromIssued(doc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	printable, err := s.composer.Generate(in)
	if err != nil {
		return nil, "", err
	}
	pdf, err = s.renderer.Render(printable)
	if err != nil {
		return nil, "", fmt.Errorf("emissão: gerar DACTE: %w", err)
	}
	return pdf, "DACTE-" + key + ".pdf", nil
}

func (s *Service) branchFor(ctx context.Context, companyID, branchID string) (*entity.Branch, error) {
	branch, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("emissão: buscar filial: %w", err)
	}
	if branch == nil {
		return nil, fmt.Errorf("%w: filial %s", domain.ErrNotFound, branchID)
	}
	if branch.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return branch, nil
}

func (s *Service) load(ctx context.Context, companyID, key string) (*entity.CTeRecord, *entity.Branch, error) {
	if err := cte.RequireKeyFormat(key); err != nil {
		return nil, nil, err
	}
	rec, err := s.records.GetByAccessKey(ctx, companyID, key)
	if err != nil {
		return nil, nil, fmt.Errorf("emissão: buscar CT-e: %w", err)
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("%w: CT-e %s", domain.ErrNotFound, key)
	}
	branch, err := s.branchFor(ctx, companyID, rec.BranchID)
	if err != nil {
		return nil, nil, err
	}
	return rec, branch, nil
}
