package sefaz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/pkg/logger"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Mensagens do modo simulado.
const (
	msgAuthorized    = "Autorizado o uso do CT-e"
	msgReceived      = "Lote recebido com sucesso"
	msgEvent         = "Evento registrado e vinculado a CT-e"
	msgNoDocuments   = "Nenhum documento localizado"
	mockProtocolPref = "MOCK-"
)

// EventSigner assina o XML de eventos (eventoCTe) antes do envio no modo real.
type EventSigner func(xml []byte) ([]byte, error)

// GatewayConfig parâmetros do Gateway.
type GatewayConfig struct {
	Mode        TransmissionMode
	Environment int           // tpAmb
	Timeout     time.Duration // por chamada; padrão 30s
	Retry       RetryPolicy
	// DistributionPerMinute limita consultas de distribuição por CNPJ (cStat 656 = consumo indevido).
	DistributionPerMinute int
}

// Gateway máquina de estados de transmissão do CT-e.
type Gateway struct {
	cfg       GatewayConfig
	transport Transport
	endpoints *EndpointTable
	signEvent EventSigner
	now       func() time.Time
	log       *logger.Logger

	lastMock atomic.Int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// GatewayOption configura o Gateway.
type GatewayOption func(*Gateway)

// WithTransport define o transporte do modo real.
func WithTransport(t Transport) GatewayOption { return func(g *Gateway) { g.transport = t } }

// WithEventSigner define o assinador de eventos.
func WithEventSigner(s EventSigner) GatewayOption { return func(g *Gateway) { g.signEvent = s } }

// WithClock substitui o relógio (testes).
func WithClock(now func() time.Time) GatewayOption { return func(g *Gateway) { g.now = now } }

// WithGatewayLogger injeta o logger.
func WithGatewayLogger(l *logger.Logger) GatewayOption { return func(g *Gateway) { g.log = l } }

// NewGateway cria o gateway. endpoints nil usa NewDefaultEndpointTable.
func NewGateway(cfg GatewayConfig, endpoints *EndpointTable, opts ...GatewayOption) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Environment == 0 {
		cfg.Environment = sefaz.EnvironmentHomologation
	}
	if endpoints == nil {
		endpoints = NewDefaultEndpointTable()
	}
	g := &Gateway{
		cfg:       cfg,
		endpoints: endpoints,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(g)
	}
	g.log = logger.OrNop(g.log).Component("sefaz.gateway")
	return g
}

// Mode modo configurado.
func (g *Gateway) Mode() TransmissionMode { return g.cfg.Mode }

// ── Resultados ─────────────────────────────────────────────────────────────

// TransmitResult documento em TRANSMITTED mais o recibo.
type TransmitResult struct {
	Document   cte.IssuedDocument
	Success    bool
	Protocol   string
	StatusCode int
	Message    string
}

// AuthorizeResult Document está em AUTHORIZED ou REJECTED.
type AuthorizeResult struct {
	Document   cte.IssuedDocument
	Authorized bool
	StatusCode int
	Message    string
}

// CancelResult Document em CANCELLED quando Cancelled=true; caso contrário, inalterado.
type CancelResult struct {
	Document   cte.IssuedDocument
	Cancelled  bool
	Protocol   string
	StatusCode int
	Message    string
}

// StatusResult situação atual do CT-e na SEFAZ.
type StatusResult struct {
	AccessKey  string
	StatusCode int
	Message    string
	Protocol   string
	Status     cte.Status
}

// DistributionRequest consulta de documentos destinados a TaxID desde LastNSU.
type DistributionRequest struct {
	Kind        Kind
	TaxID       string
	UF          string
	Environment int
	LastNSU     string
}

// DistributionResult lote devolvido pela distribuição DF-e.
type DistributionResult struct {
	StatusCode int
	Message    string
	LastNSU    string
	MaxNSU     string
	Documents  []DistributedDocument
}

// Exhausted indica que não há mais documentos a buscar (ultNSU == maxNSU).
func (r *DistributionResult) Exhausted() bool {
	return r.StatusCode == sefaz.StatusNoDocuments || PadNSU(r.LastNSU) == PadNSU(r.MaxNSU)
}

// ── Operações ──────────────────────────────────────────────────────────────

// Transmit envia o CT-e (BUILT → TRANSMITTED). No modo simulado não há rede e o
// protocolo é MOCK-<unixnano>, distinto a cada chamada.
func (g *Gateway) Transmit(ctx context.Context, doc cte.IssuedDocument) (*TransmitResult, error) {
	if strings.TrimSpace(doc.AccessKey.String()) == "" {
		return nil, domain.NewValidationError("chave", "documento sem chave de acesso")
	}
	if !cte.CanTransition(doc.Status, cte.StatusTransmitted) {
		return nil, fmt.Errorf("%w: transmitir a partir de %s", domain.ErrInvalidTransition, doc.Status)
	}

	var (
		protocol = ""
		code     = sefaz.StatusBatchReceived
		message  = msgReceived
		receipt  *cte.Receipt
	)
	switch g.cfg.Mode {
	case ModeSimulated:
		protocol = g.mockProtocol()
	case ModeLive:
		if g.transport == nil {
			return nil, fmt.Errorf("%w: transmissão real sem transporte configurado", domain.ErrNotImplemented)
		}
		resp, err := g.call(ctx, OpSubmit, KindCTe, ServiceAuthorization, doc.Input.Issuer.Address.UF, doc.XML, g.cfg.Retry)
		if err != nil {
			return nil, err
		}
		protocol, code, message = resp.Protocol, resp.StatusCode, resp.Message
		receipt = &cte.Receipt{StatusCode: resp.StatusCode, StatusMessage: resp.Message, Protocol: resp.Protocol, ReceivedAt: resp.ReceivedAt}
	}

	next, err := doc.MarkTransmitted(protocol, g.now())
	if err != nil {
		return nil, err
	}
	next.Receipt = receipt
	g.log.Info().Str("chave", doc.AccessKey.String()).Str("modo", g.cfg.Mode.String()).Str("protocolo", protocol).Msg("CT-e transmitido")
	return &TransmitResult{Document: next, Success: sefaz.IsAuthorizedStatus(code) || code == sefaz.StatusBatchReceived, Protocol: protocol, StatusCode: code, Message: message}, nil
}

// Authorize consulta o resultado do processamento (TRANSMITTED → AUTHORIZED | REJECTED).
func (g *Gateway) Authorize(ctx context.Context, doc cte.IssuedDocument) (*AuthorizeResult, error) {
	if err := cte.RequireKeyFormat(doc.AccessKey.String()); err != nil {
		return nil, err
	}
	if doc.Status != cte.StatusTransmitted {
		return nil, fmt.Errorf("%w: autorizar a partir de %s", domain.ErrInvalidTransition, doc.Status)
	}

	auth := cte.Authorization{StatusCode: sefaz.StatusAuthorized, StatusMessage: msgAuthorized}
	switch g.cfg.Mode {
	case ModeSimulated:
		auth.Protocol = g.mockProtocol()
		auth.AuthorizedAt = g.now()
	case ModeLive:
		resp, err := g.authorizationAnswer(ctx, doc)
		if err != nil {
			return nil, err
		}
		switch {
		case sefaz.IsAuthorizedStatus(resp.StatusCode):
		case sefaz.IsRejectionStatus(resp.StatusCode):
			next, err := doc.Reject(cte.Rejection{StatusCode: resp.StatusCode, StatusMessage: resp.Message})
			if err != nil {
				return nil, err
			}
			g.log.Warn().Str("chave", doc.AccessKey.String()).Int("cStat", resp.StatusCode).Str("xMotivo", resp.Message).Msg("CT-e rejeitado")
			return &AuthorizeResult{Document: next, StatusCode: resp.StatusCode, Message: resp.Message}, nil
		default:
			return nil, &domain.GatewayError{Op: string(OpQuery), Err: fmt.Errorf("cStat %d inesperado na autorização: %s", resp.StatusCode, resp.Message)}
		}
		auth.Protocol = resp.Protocol
		auth.AuthorizedAt = resp.ReceivedAt
		auth.StatusCode = resp.StatusCode
		auth.StatusMessage = resp.Message
		if auth.AuthorizedAt.IsZero() {
			auth.AuthorizedAt = g.now()
		}
	}

	next, err := doc.Authorize(auth)
	if err != nil {
		return nil, err
	}
	g.log.Info().Str("chave", doc.AccessKey.String()).Str("protocolo", auth.Protocol).Msg("CT-e autorizado")
	return &AuthorizeResult{Document: next, Authorized: true, StatusCode: auth.StatusCode, Message: auth.StatusMessage}, nil
}

// Cancel registra o evento de cancelamento. Só é válido a partir de AUTHORIZED e
// nunca é repetido automaticamente.
func (g *Gateway) Cancel(ctx context.Context, doc cte.IssuedDocument, reason string) (*CancelResult, error) {
	if err := cte.RequireKeyFormat(doc.AccessKey.String()); err != nil {
		return nil, err
	}
	if doc.Status != cte.StatusAuthorized || doc.Authorization == nil {
		return nil, fmt.Errorf("%w: cancelar a partir de %s", domain.ErrInvalidTransition, doc.Status)
	}
	if err := cte.ValidateCancelReason(reason); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	c := cte.Cancellation{Reason: reason, StatusCode: sefaz.StatusEventRegistered}
	message := msgEvent
	switch g.cfg.Mode {
	case ModeSimulated:
		c.Protocol = g.mockProtocol()
		c.CancelledAt = g.now()
	case ModeLive:
		if g.transport == nil {
			return nil, fmt.Errorf("%w: cancelamento real sem transporte configurado", domain.ErrNotImplemented)
		}
		payload, err := buildCancelEvent(g.cfg.Environment, doc.AccessKey, doc.Authorization.Protocol, reason, g.now())
		if err != nil {
			return nil, fmt.Errorf("sefaz: montar evento de cancelamento: %w", err)
		}
		if g.signEvent != nil {
			if payload, err = g.signEvent(payload); err != nil {
				return nil, err
			}
		}
		resp, err := g.call(ctx, OpEvent, KindCTe, ServiceEvent, doc.Input.Issuer.Address.UF, payload, NoRetry())
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != sefaz.StatusEventRegistered && resp.StatusCode != sefaz.StatusCancelled {
			g.log.Warn().Str("chave", doc.AccessKey.String()).Int("cStat", resp.StatusCode).Str("xMotivo", resp.Message).Msg("cancelamento recusado")
			return &CancelResult{Document: doc, StatusCode: resp.StatusCode, Message: resp.Message}, nil
		}
		c.Protocol, c.StatusCode, message = resp.Protocol, resp.StatusCode, resp.Message
		c.CancelledAt = resp.ReceivedAt
		if c.CancelledAt.IsZero() {
			c.CancelledAt = g.now()
		}
	}

	next, err := doc.Cancel(c)
	if err != nil {
		return nil, err
	}
	g.log.Info().Str("chave", doc.AccessKey.String()).Str("protocolo", c.Protocol).Msg("CT-e cancelado")
	return &CancelResult{Document: next, Cancelled: true, Protocol: c.Protocol, StatusCode: c.StatusCode, Message: message}, nil
}

// QueryStatus consulta a situação do CT-e pela chave.
func (g *Gateway) QueryStatus(ctx context.Context, key string) (*StatusResult, error) {
	if err := cte.RequireKeyFormat(key); err != nil {
		return nil, err
	}
	if g.cfg.Mode == ModeSimulated {
		return &StatusResult{AccessKey: key, StatusCode: sefaz.StatusAuthorized, Message: msgAuthorized, Status: cte.StatusAuthorized}, nil
	}
	uf, _ := sefaz.UFFromCode(cte.AccessKey(key).Region())
	resp, err := g.queryLive(ctx, key, uf)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		AccessKey:  key,
		StatusCode: resp.StatusCode,
		Message:    resp.Message,
		Protocol:   resp.Protocol,
		Status:     statusFromCode(resp.StatusCode),
	}, nil
}

// Distribution busca documentos destinados ao contribuinte a partir do último NSU.
func (g *Gateway) Distribution(ctx context.Context, req DistributionRequest) (*DistributionResult, error) {
	if err := sefaz.ValidateTaxID(req.TaxID); err != nil {
		return nil, domain.NewValidationError("distDFeInt.CNPJ", err.Error())
	}
	if req.Kind == "" {
		req.Kind = KindCTe
	}
	if req.Environment == 0 {
		req.Environment = g.cfg.Environment
	}
	if err := g.limiter(req.TaxID).Wait(ctx); err != nil {
		return nil, &domain.GatewayError{Op: "distribuicao", Transient: true, Err: err}
	}

	if g.cfg.Mode == ModeSimulated {
		nsu := PadNSU(req.LastNSU)
		return &DistributionResult{StatusCode: sefaz.StatusNoDocuments, Message: msgNoDocuments, LastNSU: nsu, MaxNSU: nsu}, nil
	}

	payload, err := buildDistributionQuery(req)
	if err != nil {
		return nil, err
	}
	url, err := g.endpoints.URL(req.Kind, req.Environment, req.UF, ServiceDistribution)
	if err != nil {
		return nil, err
	}
	resp, err := g.invoke(ctx, Request{Operation: OpDistribution, Kind: req.Kind, URL: url, UF: req.UF, Environment: req.Environment, Payload: payload}, g.cfg.Retry)
	if err != nil {
		return nil, err
	}
	g.log.Debug().Str("cnpj", req.TaxID).Int("cStat", resp.StatusCode).Int("docs", len(resp.Documents)).Str("ultNSU", resp.LastNSU).Msg("distribuição DF-e")
	return &DistributionResult{
		StatusCode: resp.StatusCode,
		Message:    resp.Message,
		LastNSU:    resp.LastNSU,
		MaxNSU:     resp.MaxNSU,
		Documents:  resp.Documents,
	}, nil
}

// ── internos ───────────────────────────────────────────────────────────────

func (g *Gateway) queryLive(ctx context.Context, key, uf string) (*Response, error) {
	payload, err := buildStatusQuery(g.cfg.Environment, key)
	if err != nil {
		return nil, fmt.Errorf("sefaz: montar consulta: %w", err)
	}
	return g.call(ctx, OpQuery, KindCTe, ServiceQuery, uf, payload, g.cfg.Retry)
}

// authorizationAnswer usa o protCTe da recepção síncrona quando ele já decide o
// documento; senão consulta a situação. Lote em processamento e 217 (ainda não
// replicado) voltam como falha transitória e entram na política de novas tentativas.
func (g *Gateway) authorizationAnswer(ctx context.Context, doc cte.IssuedDocument) (*Response, error) {
	if r := doc.Receipt; r != nil && (sefaz.IsAuthorizedStatus(r.StatusCode) || sefaz.IsRejectionStatus(r.StatusCode)) {
		return &Response{StatusCode: r.StatusCode, Message: r.StatusMessage, Protocol: r.Protocol, ReceivedAt: r.ReceivedAt}, nil
	}
	if g.transport == nil {
		return nil, fmt.Errorf("%w: %s sem transporte configurado", domain.ErrNotImplemented, OpQuery)
	}
	payload, err := buildStatusQuery(g.cfg.Environment, doc.AccessKey.String())
	if err != nil {
		return nil, fmt.Errorf("sefaz: montar consulta: %w", err)
	}
	uf := doc.Input.Issuer.Address.UF
	url, err := g.endpoints.URL(KindCTe, g.cfg.Environment, uf, ServiceQuery)
	if err != nil {
		return nil, err
	}
	req := Request{Operation: OpQuery, Kind: KindCTe, URL: url, UF: uf, Environment: g.cfg.Environment, Payload: payload}
	return g.cfg.Retry.do(ctx, g.log, string(OpQuery), func(ctx context.Context) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		resp, err := g.transport.Call(ctx, req)
		if err != nil {
			return nil, err
		}
		if sefaz.IsPendingStatus(resp.StatusCode) {
			return nil, &domain.GatewayError{Op: string(OpQuery), Transient: true, Err: fmt.Errorf("cStat %d: %s", resp.StatusCode, resp.Message)}
		}
		return resp, nil
	})
}

func (g *Gateway) call(ctx context.Context, op Operation, kind Kind, svc Service, uf string, payload []byte, retry RetryPolicy) (*Response, error) {
	if g.transport == nil {
		return nil, fmt.Errorf("%w: %s sem transporte configurado", domain.ErrNotImplemented, op)
	}
	url, err := g.endpoints.URL(kind, g.cfg.Environment, uf, svc)
	if err != nil {
		return nil, err
	}
	return g.invoke(ctx, Request{Operation: op, Kind: kind, URL: url, UF: uf, Environment: g.cfg.Environment, Payload: payload}, retry)
}

func (g *Gateway) invoke(ctx context.Context, req Request, retry RetryPolicy) (*Response, error) {
	if g.transport == nil {
		return nil, fmt.Errorf("%w: %s sem transporte configurado", domain.ErrNotImplemented, req.Operation)
	}
	return retry.do(ctx, g.log, string(req.Operation), func(ctx context.Context) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		return g.transport.Call(ctx, req)
	})
}

// mockProtocol MOCK-<unixnano>, estritamente crescente mesmo com relógio de baixa resolução.
func (g *Gateway) mockProtocol() string {
	for {
		now := g.now().UnixNano()
		last := g.lastMock.Load()
		if now <= last {
			now = last + 1
		}
		if g.lastMock.CompareAndSwap(last, now) {
			return fmt.Sprintf("%s%d", mockProtocolPref, now)
		}
	}
}

func (g *Gateway) limiter(taxID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[taxID]
	if !ok {
		limit := rate.Inf
		if g.cfg.DistributionPerMinute > 0 {
			limit = rate.Limit(float64(g.cfg.DistributionPerMinute) / 60)
		}
		l = rate.NewLimiter(limit, 1)
		g.limiters[taxID] = l
	}
	return l
}

func statusFromCode(code int) cte.Status {
	switch {
	case sefaz.IsAuthorizedStatus(code):
		return cte.StatusAuthorized
	case code == sefaz.StatusCancelled || code == sefaz.StatusEventRegistered:
		return cte.StatusCancelled
	case sefaz.IsPendingStatus(code):
		return cte.StatusTransmitted
	default:
		return cte.StatusRejected
	}
}
