package sefaz_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/cte/ctetest"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

const validReason = "Erro na digitação do valor do frete"

// fakeTransport devolve as respostas na ordem e registra as requisições.
type fakeTransport struct {
	mu        sync.Mutex
	responses []fakeReply
	calls     []sefaz.Request
}

type fakeReply struct {
	resp *sefaz.Response
	err  error
}

func (f *fakeTransport) Call(_ context.Context, req sefaz.Request) (*sefaz.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return nil, errors.New("sem resposta programada")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r.resp, r.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func transient() error {
	return &domain.GatewayError{Op: "teste", Transient: true, Err: errors.New("timeout")}
}

func fastRetry() sefaz.RetryPolicy {
	return sefaz.RetryPolicy{Attempts: 3, Delays: []time.Duration{time.Millisecond}}
}

func simulated() *sefaz.Gateway {
	return sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeSimulated}, nil)
}

func live(tr sefaz.Transport) *sefaz.Gateway {
	return sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeLive, Retry: fastRetry()}, nil, sefaz.WithTransport(tr))
}

func built() cte.IssuedDocument {
	key := &cte.GeneratedKey{Key: cte.AccessKey(ctetest.AuthorizedKey), Code: "12345678", CheckDigit: 7}
	return cte.NewIssuedDocument(ctetest.ValidInput(), key, []byte("<CTe/>"))
}

func authorized(t *testing.T, g *sefaz.Gateway) cte.IssuedDocument {
	t.Helper()
	ctx := context.Background()
	tr, err := g.Transmit(ctx, built())
	require.NoError(t, err)
	au, err := g.Authorize(ctx, tr.Document)
	require.NoError(t, err)
	require.True(t, au.Authorized)
	return au.Document
}

// ── Modo simulado ──────────────────────────────────────────────────────────

func TestSimulado_TransmitirGeraProtocolosDistintos(t *testing.T) {
	g := simulated()
	ctx := context.Background()

	a, err := g.Transmit(ctx, built())
	require.NoError(t, err)
	b, err := g.Transmit(ctx, built())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Protocol, "MOCK-"))
	assert.NotEqual(t, a.Protocol, b.Protocol)
	assert.True(t, a.Success)
	assert.Equal(t, 103, a.StatusCode)
	assert.Equal(t, cte.StatusTransmitted, a.Document.Status)
}

func TestSimulado_RelogioParadoAindaGeraProtocolosCrescentes(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	g := sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeSimulated}, nil, sefaz.WithClock(func() time.Time { return fixed }))

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		res, err := g.Transmit(context.Background(), built())
		require.NoError(t, err)
		assert.False(t, seen[res.Protocol])
		seen[res.Protocol] = true
	}
}

func TestSimulado_FluxoCompleto(t *testing.T) {
	g := simulated()
	doc := authorized(t, g)
	assert.Equal(t, cte.StatusAuthorized, doc.Status)
	assert.Equal(t, 100, doc.Authorization.StatusCode)

	res, err := g.Cancel(context.Background(), doc, validReason)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 135, res.StatusCode)
	assert.Equal(t, cte.StatusCancelled, res.Document.Status)
	assert.Equal(t, validReason, res.Document.Cancellation.Reason)
	// o original não muda
	assert.Equal(t, cte.StatusAuthorized, doc.Status)
}

func TestTransmit_EstadoInvalido(t *testing.T) {
	g := simulated()
	doc := authorized(t, g)
	_, err := g.Transmit(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransmit_SemChave(t *testing.T) {
	doc := built()
	doc.AccessKey = ""
	_, err := simulated().Transmit(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAuthorize_ExigeTransmitido(t *testing.T) {
	_, err := simulated().Authorize(context.Background(), built())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_Justificativa(t *testing.T) {
	g := simulated()
	doc := authorized(t, g)

	_, err := g.Cancel(context.Background(), doc, strings.Repeat("a", 14))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = g.Cancel(context.Background(), doc, "   "+strings.Repeat("a", 14)+"   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	res, err := g.Cancel(context.Background(), doc, strings.Repeat("a", 15))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
}

func TestCancel_APartirDeTransmitidoFalhaMesmoComJustificativaValida(t *testing.T) {
	g := simulated()
	tr, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)

	_, err = g.Cancel(context.Background(), tr.Document, validReason)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = g.Cancel(context.Background(), tr.Document, "curta")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_ChaveMalFormada(t *testing.T) {
	doc := authorized(t, simulated())
	doc.AccessKey = "123"
	_, err := simulated().Cancel(context.Background(), doc, validReason)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQueryStatus_Simulado(t *testing.T) {
	res, err := simulated().QueryStatus(context.Background(), ctetest.AuthorizedKey)
	require.NoError(t, err)
	assert.Equal(t, 100, res.StatusCode)
	assert.Equal(t, cte.StatusAuthorized, res.Status)

	_, err = simulated().QueryStatus(context.Background(), "35")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── Modo real (transporte falso) ───────────────────────────────────────────

func TestLive_SemTransporteNaoImplementado(t *testing.T) {
	g := sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeLive}, nil)
	_, err := g.Transmit(context.Background(), built())
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
}

func TestLive_TransmitirUsaEndpointDaUF(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{{resp: &sefaz.Response{StatusCode: 103, Protocol: "135000000000001", Message: "Lote recebido"}}}}
	res, err := live(tr).Transmit(context.Background(), built())
	require.NoError(t, err)

	assert.Equal(t, "135000000000001", res.Protocol)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, sefaz.OpSubmit, tr.calls[0].Operation)
	assert.Contains(t, tr.calls[0].URL, "homologacao.nfe.fazenda.sp.gov.br/CTeWS/WS/CTeRecepcaoSincV4")
	assert.Equal(t, []byte("<CTe/>"), tr.calls[0].Payload)
}

func TestLive_RepeteSomenteFalhasTransitorias(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{err: transient()},
		{err: transient()},
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
	}}
	_, err := live(tr).Transmit(context.Background(), built())
	require.NoError(t, err)
	assert.Equal(t, 3, tr.count())

	permanent := &fakeTransport{responses: []fakeReply{{err: &domain.GatewayError{Op: "teste", Err: errors.New("HTTP 403")}}}}
	_, err = live(permanent).Transmit(context.Background(), built())
	assert.ErrorIs(t, err, domain.ErrGateway)
	assert.Equal(t, 1, permanent.count())
}

func TestLive_DesisteAposTentativas(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{{err: transient()}}}
	_, err := live(tr).Transmit(context.Background(), built())
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, 3, tr.count())
}

func TestLive_AutorizarRejeitado(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
		{resp: &sefaz.Response{StatusCode: 539, Message: "Duplicidade de CT-e"}},
	}}
	g := live(tr)
	sent, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)

	res, err := g.Authorize(context.Background(), sent.Document)
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.Equal(t, cte.StatusRejected, res.Document.Status)
	assert.Equal(t, 539, res.Document.Rejection.StatusCode)
	assert.Equal(t, sefaz.OpQuery, tr.calls[1].Operation)
}

func TestLive_AutorizarUsaProtocoloDaRecepcaoSincrona(t *testing.T) {
	at := time.Date(2024, 10, 15, 14, 31, 0, 0, time.UTC)
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 100, Protocol: "135240000009999", Message: "Autorizado o uso do CT-e", ReceivedAt: at}},
	}}
	g := live(tr)
	sent, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)
	require.NotNil(t, sent.Document.Receipt)

	res, err := g.Authorize(context.Background(), sent.Document)
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.Equal(t, "135240000009999", res.Document.Authorization.Protocol)
	assert.Equal(t, at, res.Document.Authorization.AuthorizedAt)
	assert.Equal(t, 1, tr.count(), "sem consulta adicional")
}

func TestLive_AutorizarRejeicaoNaRecepcaoSincrona(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 539, Message: "Duplicidade de CT-e"}},
	}}
	g := live(tr)
	sent, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)
	assert.False(t, sent.Success)

	res, err := g.Authorize(context.Background(), sent.Document)
	require.NoError(t, err)
	assert.Equal(t, cte.StatusRejected, res.Document.Status)
	assert.Equal(t, 1, tr.count())
}

func TestLive_AutorizarNaoConstaNaBaseEhTransitorio(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
		{resp: &sefaz.Response{StatusCode: 217, Message: "CT-e não consta na base de dados da SEFAZ"}},
	}}
	g := live(tr)
	sent, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)

	res, err := g.Authorize(context.Background(), sent.Document)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, domain.IsTransient(err))
	assert.ErrorIs(t, err, domain.ErrGateway)
	assert.Equal(t, 4, tr.count(), "recepção + 3 consultas")
	assert.Equal(t, cte.StatusTransmitted, sent.Document.Status)
}

func TestLive_AutorizarDepoisDeReplicar(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
		{resp: &sefaz.Response{StatusCode: 217}},
		{resp: &sefaz.Response{StatusCode: 105}},
		{resp: &sefaz.Response{StatusCode: 100, Protocol: "135240000000077"}},
	}}
	g := live(tr)
	sent, err := g.Transmit(context.Background(), built())
	require.NoError(t, err)

	res, err := g.Authorize(context.Background(), sent.Document)
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.Equal(t, "135240000000077", res.Document.Authorization.Protocol)
}

func TestLive_CancelamentoNuncaRepete(t *testing.T) {
	at := time.Date(2024, 10, 16, 9, 0, 0, 0, time.UTC)
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
		{resp: &sefaz.Response{StatusCode: 100, Protocol: "135240000000001", ReceivedAt: at}},
		{err: transient()},
	}}
	var signed bool
	g := sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeLive, Retry: fastRetry()}, nil,
		sefaz.WithTransport(tr),
		sefaz.WithEventSigner(func(b []byte) ([]byte, error) { signed = true; return b, nil }))

	doc := authorized(t, g)
	assert.Equal(t, at, doc.Authorization.AuthorizedAt)

	_, err := g.Cancel(context.Background(), doc, validReason)
	require.Error(t, err)
	assert.True(t, signed)
	assert.Equal(t, 3, tr.count())
	assert.Contains(t, string(tr.calls[2].Payload), "<tpEvento>110111</tpEvento>")
}

func TestLive_CancelamentoRecusadoMantemDocumento(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{
		{resp: &sefaz.Response{StatusCode: 103, Protocol: "1"}},
		{resp: &sefaz.Response{StatusCode: 100, Protocol: "135240000000001"}},
		{resp: &sefaz.Response{StatusCode: 220, Message: "Prazo de cancelamento superior ao previsto"}},
	}}
	g := live(tr)
	doc := authorized(t, g)

	res, err := g.Cancel(context.Background(), doc, validReason)
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 220, res.StatusCode)
	assert.Equal(t, cte.StatusAuthorized, res.Document.Status)
}

// ── Distribuição ───────────────────────────────────────────────────────────

func TestDistribution_SimuladoSemDocumentos(t *testing.T) {
	res, err := simulated().Distribution(context.Background(), sefaz.DistributionRequest{TaxID: ctetest.IssuerCNPJ, UF: "SP", LastNSU: "42"})
	require.NoError(t, err)
	assert.Equal(t, 137, res.StatusCode)
	assert.Equal(t, "000000000000042", res.LastNSU)
	assert.True(t, res.Exhausted())
}

func TestDistribution_DocumentoInvalido(t *testing.T) {
	_, err := simulated().Distribution(context.Background(), sefaz.DistributionRequest{TaxID: "11222333000180", UF: "SP"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDistribution_Live(t *testing.T) {
	tr := &fakeTransport{responses: []fakeReply{{resp: &sefaz.Response{
		StatusCode: 138, LastNSU: "000000000000010", MaxNSU: "000000000000020",
		Documents: []sefaz.DistributedDocument{{NSU: "000000000000010", Schema: "procCTe_v4.00.xsd", Content: []byte("<cteProc/>")}},
	}}}}
	res, err := live(tr).Distribution(context.Background(), sefaz.DistributionRequest{Kind: sefaz.KindNFe, TaxID: ctetest.IssuerCNPJ, UF: "SP"})
	require.NoError(t, err)
	assert.False(t, res.Exhausted())
	require.Len(t, res.Documents, 1)
	assert.Equal(t, sefaz.OpDistribution, tr.calls[0].Operation)
	assert.Contains(t, tr.calls[0].URL, "NFeDistribuicaoDFe")
	assert.Contains(t, string(tr.calls[0].Payload), "<CNPJ>11222333000181</CNPJ>")
}

func TestDistribution_LimitePorContribuinte(t *testing.T) {
	g := sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeSimulated, DistributionPerMinute: 1}, nil)
	req := sefaz.DistributionRequest{TaxID: ctetest.IssuerCNPJ, UF: "SP"}

	_, err := g.Distribution(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Distribution(ctx, req)
	assert.True(t, domain.IsTransient(err))

	// outro CNPJ tem seu próprio limite
	_, err = g.Distribution(context.Background(), sefaz.DistributionRequest{TaxID: ctetest.SenderCNPJ, UF: "SP"})
	assert.NoError(t, err)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, sefaz.ModeLive, sefaz.ParseMode("live"))
	assert.Equal(t, sefaz.ModeLive, sefaz.ParseMode("PRODUCTION"))
	assert.Equal(t, sefaz.ModeSimulated, sefaz.ParseMode(""))
	assert.Equal(t, sefaz.ModeSimulated, sefaz.ParseMode("mock"))
}
