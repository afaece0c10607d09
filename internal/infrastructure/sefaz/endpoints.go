package sefaz

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Kind tipo de documento fiscal eletrônico atendido pelo webservice.
type Kind string

const (
	KindCTe  Kind = "CTe"
	KindNFe  Kind = "NFe"
	KindMDFe Kind = "MDFe"
)

// Service serviço dentro de um conjunto de endpoints.
type Service string

const (
	ServiceAuthorization Service = "autorizacao"
	ServiceQuery         Service = "consulta"
	ServiceEvent         Service = "evento"
	ServiceStatus        Service = "status"
	ServiceDistribution  Service = "distribuicao"
)

// FallbackUF chave da entrada usada para UFs sem autorizador próprio.
const FallbackUF = "SVRS"

// Endpoints URLs de um autorizador para um tipo de documento e ambiente.
type Endpoints struct {
	Authority     string // SP, MG, SVRS...
	Authorization string
	Query         string
	Event         string
	Status        string
	Distribution  string
	QRCode        string
}

// URL devolve o endereço do serviço; vazio se o autorizador não oferece o serviço.
func (e Endpoints) URL(s Service) string {
	switch s {
	case ServiceAuthorization:
		return e.Authorization
	case ServiceQuery:
		return e.Query
	case ServiceEvent:
		return e.Event
	case ServiceStatus:
		return e.Status
	case ServiceDistribution:
		return e.Distribution
	default:
		return ""
	}
}

type tableKey struct {
	kind Kind
	env  int
	uf   string
}

// EndpointEntry linha da tabela para NewEndpointTable.
type EndpointEntry struct {
	Kind        Kind
	Environment int
	UF          string // sigla ou FallbackUF
	Endpoints   Endpoints
}

// EndpointTable tabela {tipo × ambiente × UF} com entrada de contingência SVRS.
// É montada uma vez e só lida depois; segura para uso concorrente.
type EndpointTable struct {
	entries map[tableKey]Endpoints
}

// NewEndpointTable cria a tabela a partir das entradas (cópia defensiva).
func NewEndpointTable(entries []EndpointEntry) *EndpointTable {
	t := &EndpointTable{entries: make(map[tableKey]Endpoints, len(entries))}
	for _, e := range entries {
		t.entries[tableKey{e.Kind, e.Environment, strings.ToUpper(e.UF)}] = e.Endpoints
	}
	return t
}

// Resolve devolve os endpoints da UF ou, na falta, os do SVRS.
func (t *EndpointTable) Resolve(kind Kind, env int, uf string) (Endpoints, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if e, ok := t.entries[tableKey{kind, env, uf}]; ok {
		return e, nil
	}
	if e, ok := t.entries[tableKey{kind, env, FallbackUF}]; ok {
		return e, nil
	}
	return Endpoints{}, fmt.Errorf("sefaz: nenhum endpoint %s para ambiente %d e UF %q", kind, env, uf)
}

// URL atalho para Resolve + Endpoints.URL.
func (t *EndpointTable) URL(kind Kind, env int, uf string, s Service) (string, error) {
	e, err := t.Resolve(kind, env, uf)
	if err != nil {
		return "", err
	}
	u := e.URL(s)
	if u == "" {
		return "", fmt.Errorf("sefaz: autorizador %s não oferece o serviço %s para %s", e.Authority, s, kind)
	}
	return u, nil
}

// QRCodeURL endereço gravado em <qrCodCTe> (consulta pública do CT-e).
func (t *EndpointTable) QRCodeURL(env int, uf string, key cte.AccessKey) string {
	e, err := t.Resolve(KindCTe, env, uf)
	if err != nil || e.QRCode == "" {
		return ""
	}
	q := url.Values{}
	q.Set("chCTe", key.String())
	q.Set("tpAmb", fmt.Sprint(env))
	return e.QRCode + "?" + q.Encode()
}

// ── Tabela padrão ──────────────────────────────────────────────────────────

const (
	prod = sefaz.EnvironmentProduction
	hom  = sefaz.EnvironmentHomologation
)

// Distribuição DF-e é centralizada no Ambiente Nacional.
var distribution = map[Kind][2]string{
	KindCTe:  {"https://www1.cte.fazenda.gov.br/CTeDistribuicaoDFe/CTeDistribuicaoDFe.asmx", "https://hom1.cte.fazenda.gov.br/CTeDistribuicaoDFe/CTeDistribuicaoDFe.asmx"},
	KindNFe:  {"https://www1.nfe.fazenda.gov.br/NFeDistribuicaoDFe/NFeDistribuicaoDFe.asmx", "https://hom1.nfe.fazenda.gov.br/NFeDistribuicaoDFe/NFeDistribuicaoDFe.asmx"},
	KindMDFe: {"https://mdfe.svrs.rs.gov.br/ws/MDFeDistribuicaoDFe/MDFeDistribuicaoDFe.asmx", "https://mdfe-homologacao.svrs.rs.gov.br/ws/MDFeDistribuicaoDFe/MDFeDistribuicaoDFe.asmx"},
}

// NewDefaultEndpointTable tabela com os autorizadores de CT-e, NF-e e MDF-e 4.00.
func NewDefaultEndpointTable() *EndpointTable {
	var entries []EndpointEntry
	add := func(kind Kind, uf string, p, h Endpoints) {
		p.Authority, h.Authority = uf, uf
		p.Distribution = distribution[kind][0]
		h.Distribution = distribution[kind][1]
		entries = append(entries,
			EndpointEntry{Kind: kind, Environment: prod, UF: uf, Endpoints: p},
			EndpointEntry{Kind: kind, Environment: hom, UF: uf, Endpoints: h},
		)
	}

	// CT-e: autorizadores próprios; demais UFs usam SVRS.
	add(KindCTe, FallbackUF,
		cteAsmx("https://cte.svrs.rs.gov.br/ws/%[1]s/%[1]s.asmx", "https://dfe-portal.svrs.rs.gov.br/cte/qrCode"),
		cteAsmx("https://cte-homologacao.svrs.rs.gov.br/ws/%[1]s/%[1]s.asmx", "https://dfe-portal.svrs.rs.gov.br/cte/qrCode"))
	add(KindCTe, "SP",
		cteAsmx("https://nfe.fazenda.sp.gov.br/CTeWS/WS/%s.asmx", "https://nfe.fazenda.sp.gov.br/CTeConsulta/qrCode"),
		cteAsmx("https://homologacao.nfe.fazenda.sp.gov.br/CTeWS/WS/%s.asmx", "https://homologacao.nfe.fazenda.sp.gov.br/CTeConsulta/qrCode"))
	add(KindCTe, "MG",
		cteAsmx("https://cte.fazenda.mg.gov.br/cte/services/%s", "https://cte.fazenda.mg.gov.br/portalcte/sistema/qrcode.xhtml"),
		cteAsmx("https://hcte.fazenda.mg.gov.br/cte/services/%s", "https://cte.fazenda.mg.gov.br/portalcte/sistema/qrcode.xhtml"))
	add(KindCTe, "MS",
		cteAsmx("https://producao.cte.ms.gov.br/ws/%s", "https://www.dfe.ms.gov.br/cte/qrcode"),
		cteAsmx("https://homologacao.cte.ms.gov.br/ws/%s", "https://www.dfe.ms.gov.br/cte/qrcode"))
	add(KindCTe, "MT",
		cteAsmx("https://cte.sefaz.mt.gov.br/ctews2/services/%s", "https://www.sefaz.mt.gov.br/cte/qrcode"),
		cteAsmx("https://homologacao.sefaz.mt.gov.br/ctews2/services/%s", "https://homologacao.sefaz.mt.gov.br/cte/qrcode"))
	add(KindCTe, "PR",
		cteAsmx("https://cte.fazenda.pr.gov.br/cte4/%s", "http://www.fazenda.pr.gov.br/cte/qrcode"),
		cteAsmx("https://homologacao.cte.fazenda.pr.gov.br/cte4/%s", "http://www.fazenda.pr.gov.br/cte/qrcode"))

	// NF-e (consultas de documentos vinculados e manifestação).
	add(KindNFe, FallbackUF,
		nfeAsmx("https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx", "https://nfe.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx",
			"https://nfe.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx", "https://nfe.svrs.rs.gov.br/ws/NfeStatusServico/NfeStatusServico4.asmx"),
		nfeAsmx("https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx", "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx",
			"https://nfe-homologacao.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx", "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeStatusServico/NfeStatusServico4.asmx"))
	add(KindNFe, "SP",
		nfeAsmx("https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx", "https://nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
			"https://nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx", "https://nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx"),
		nfeAsmx("https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx", "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
			"https://homologacao.nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx", "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx"))
	add(KindNFe, "MG",
		nfeAsmx("https://nfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4", "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeConsultaProtocolo4",
			"https://nfe.fazenda.mg.gov.br/nfe2/services/NFeRecepcaoEvento4", "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeStatusServico4"),
		nfeAsmx("https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4", "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeConsultaProtocolo4",
			"https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeRecepcaoEvento4", "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeStatusServico4"))

	// MDF-e: autorizador único (SVRS) para todas as UFs.
	add(KindMDFe, FallbackUF,
		nfeAsmx("https://mdfe.svrs.rs.gov.br/ws/MDFeRecepcaoSinc/MDFeRecepcaoSinc.asmx", "https://mdfe.svrs.rs.gov.br/ws/MDFeConsulta/MDFeConsulta.asmx",
			"https://mdfe.svrs.rs.gov.br/ws/MDFeRecepcaoEvento/MDFeRecepcaoEvento.asmx", "https://mdfe.svrs.rs.gov.br/ws/MDFeStatusServico/MDFeStatusServico.asmx"),
		nfeAsmx("https://mdfe-homologacao.svrs.rs.gov.br/ws/MDFeRecepcaoSinc/MDFeRecepcaoSinc.asmx", "https://mdfe-homologacao.svrs.rs.gov.br/ws/MDFeConsulta/MDFeConsulta.asmx",
			"https://mdfe-homologacao.svrs.rs.gov.br/ws/MDFeRecepcaoEvento/MDFeRecepcaoEvento.asmx", "https://mdfe-homologacao.svrs.rs.gov.br/ws/MDFeStatusServico/MDFeStatusServico.asmx"))

	return NewEndpointTable(entries)
}

// cteAsmx preenche os quatro serviços do CT-e 4.00 a partir de um padrão com %s = nome do serviço.
func cteAsmx(pattern, qr string) Endpoints {
	return Endpoints{
		Authorization: fmt.Sprintf(pattern, "CTeRecepcaoSincV4"),
		Query:         fmt.Sprintf(pattern, "CTeConsultaV4"),
		Event:         fmt.Sprintf(pattern, "CTeRecepcaoEventoV4"),
		Status:        fmt.Sprintf(pattern, "CTeStatusServicoV4"),
		QRCode:        qr,
	}
}

func nfeAsmx(authorization, query, event, status string) Endpoints {
	return Endpoints{Authorization: authorization, Query: query, Event: event, Status: status}
}
