package sefaz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/cte-api/pkg/logger"
)

// BranchGateways entrega o Gateway de cada filial. No modo simulado há um gateway por
// ambiente; no modo real cada filial tem o próprio transporte mTLS com o certificado A1.
type BranchGateways struct {
	cfg       GatewayConfig
	endpoints *EndpointTable
	certs     *signer.CertificateService
	gwLog     *logger.Logger
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewBranchGateways cria o provedor. certs só é usado no modo real.
func NewBranchGateways(cfg GatewayConfig, endpoints *EndpointTable, certs *signer.CertificateService, log *logger.Logger) *BranchGateways {
	if endpoints == nil {
		endpoints = NewDefaultEndpointTable()
	}
	if certs == nil {
		certs = signer.NewCertificateService(signer.WithLogger(log))
	}
	return &BranchGateways{
		cfg:       cfg,
		endpoints: endpoints,
		certs:     certs,
		gwLog:     log,
		log:       logger.OrNop(log).Component("sefaz.gateways"),
		now:       time.Now,
		gateways:  make(map[string]*Gateway),
	}
}

// Mode modo de transmissão configurado.
func (p *BranchGateways) Mode() TransmissionMode { return p.cfg.Mode }

// ForBranch devolve (ou monta e guarda) o gateway da filial.
func (p *BranchGateways) ForBranch(_ context.Context, branch *entity.Branch) (*Gateway, error) {
	if branch == nil {
		return nil, fmt.Errorf("%w: filial", domain.ErrNotFound)
	}
	cfg := p.cfg
	if branch.Environment != 0 {
		cfg.Environment = branch.Environment
	}

	cacheKey := fmt.Sprintf("sim:%d", cfg.Environment)
	if cfg.Mode == ModeLive {
		cacheKey = branch.ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gw, ok := p.gateways[cacheKey]; ok {
		return gw, nil
	}

	opts := []GatewayOption{WithGatewayLogger(p.gwLog)}
	if cfg.Mode == ModeLive {
		if branch.CertificatePath == "" {
			return nil, domain.NewValidationError("filial.certificado", "certificado A1 não configurado")
		}
		km, err := p.certs.Load(branch.CertificatePath, branch.CertificatePassword)
		if err != nil {
			return nil, err
		}
		if now := p.now(); now.After(km.Certificate.NotAfter) || now.Before(km.Certificate.NotBefore) {
			km.Release()
			return nil, domain.NewValidationError("filial.certificado",
				"certificado fora do período de validade ("+km.Certificate.NotAfter.Format("02/01/2006")+")")
		}
		cert := km.TLS()
		opts = append(opts,
			WithTransport(NewSOAPTransport(cert, cfg.Timeout)),
			WithEventSigner(p.certs.EventSigner(cert)),
		)
	}

	gw := NewGateway(cfg, p.endpoints, opts...)
	p.gateways[cacheKey] = gw
	p.log.Debug().
		Str("filial", branch.ID).Str("modo", cfg.Mode.String()).Int("tpAmb", cfg.Environment).Msg("gateway criado")
	return gw, nil
}

// Invalidate descarta o gateway da filial (troca de certificado).
func (p *BranchGateways) Invalidate(branchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.gateways, branchID)
}
