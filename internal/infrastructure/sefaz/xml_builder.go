// Package sefaz implementa a montagem do XML do CT-e 4.00, a resolução de endpoints
// e a comunicação (real ou simulada) com os webservices da SEFAZ.
package sefaz

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/pkg/logger"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Namespaces e constantes do leiaute (MOC CT-e 4.00).
const (
	NsCTe = "http://www.portalfiscal.inf.br/cte"
	NsDs  = "http://www.w3.org/2000/09/xmldsig#"

	idPrefix   = "CTe"
	verProc    = "cte-api 1.0"
	tpImpRetr  = "1" // DACTE retrato
	procEmiApp = "0" // emissão com aplicativo do contribuinte
	freightTag = "FRETE"
)

// BuildResult saída da montagem: XML sem assinatura mais a chave gerada.
type BuildResult struct {
	XML        []byte
	AccessKey  cte.AccessKey
	CheckDigit int
	Code       string // cCT
	Key        *cte.GeneratedKey
}

// XMLBuilderService monta o XML do CT-e (sem assinatura).
type XMLBuilderService struct {
	keys      *cte.AccessKeyGenerator
	endpoints *EndpointTable
	log       *logger.Logger
}

// BuilderOption configura o XMLBuilderService.
type BuilderOption func(*XMLBuilderService)

// WithQRCode inclui <infCTeSupl><qrCodCTe> usando a URL de consulta da tabela.
func WithQRCode(t *EndpointTable) BuilderOption {
	return func(s *XMLBuilderService) { s.endpoints = t }
}

// WithLogger injeta o logger.
func WithLogger(l *logger.Logger) BuilderOption {
	return func(s *XMLBuilderService) { s.log = l }
}

// NewXMLBuilderService cria o serviço. keys nil usa um gerador com CryptoRandom.
func NewXMLBuilderService(keys *cte.AccessKeyGenerator, opts ...BuilderOption) *XMLBuilderService {
	if keys == nil {
		keys = cte.NewAccessKeyGenerator(nil)
	}
	s := &XMLBuilderService{keys: keys, log: logger.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log).Component("cte.builder")
	return s
}

// Build valida a entrada, gera a chave de acesso e monta o XML.
func (s *XMLBuilderService) Build(in cte.DocumentInput) (*BuildResult, error) {
	in = in.Normalized()
	if err := cte.Validate(in); err != nil {
		return nil, err
	}
	id := in.Identification
	key, err := s.keys.Generate(cte.KeyParams{
		UF:           in.Issuer.Address.UF,
		EmittedAt:    id.EmittedAt,
		IssuerCNPJ:   in.Issuer.TaxID,
		Model:        sefaz.ModelCTe,
		Series:       id.Series,
		Number:       id.Number,
		EmissionType: emissionType(id.EmissionType),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstruction) {
			s.log.Error().Err(err).Int("nCT", id.Number).Msg("falha interna ao gerar chave de acesso")
		}
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "CTe"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: NsCTe}},
	}
	infCte := xml.StartElement{
		Name: xml.Name{Local: "infCte"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: idPrefix + key.Key.String()},
			{Name: xml.Name{Local: "versao"}, Value: sefaz.LayoutVersion},
		},
	}

	w := &xmlWriter{enc: enc}
	w.start(root)
	w.start(infCte)
	s.writeIde(w, in, key)
	writeCompl(w, in.AdditionalInfo)
	writeIssuer(w, in.Issuer)
	writeParty(w, "rem", "enderReme", in.Sender)
	writeParty(w, "dest", "enderDest", in.Recipient)
	writeValues(w, in.Values)
	s.writeTax(w, in.Tax)
	writeNormal(w, in)
	w.end("infCte")
	if s.endpoints != nil {
		w.start(xml.StartElement{Name: xml.Name{Local: "infCTeSupl"}})
		w.leaf("qrCodCTe", s.endpoints.QRCodeURL(id.Environment, in.Issuer.Address.UF, key.Key))
		w.end("infCTeSupl")
	}
	w.end("CTe")
	if w.err == nil {
		w.err = enc.Flush()
	}
	if w.err != nil {
		return nil, fmt.Errorf("sefaz: codificar XML do CT-e: %w", w.err)
	}

	s.log.Debug().Str("chave", key.Key.String()).Int("bytes", buf.Len()).Msg("CT-e montado")
	return &BuildResult{
		XML:        buf.Bytes(),
		AccessKey:  key.Key,
		CheckDigit: key.CheckDigit,
		Code:       key.Code,
		Key:        key,
	}, nil
}

// Issue monta e devolve o documento no estado BUILT.
func (s *XMLBuilderService) Issue(in cte.DocumentInput) (cte.IssuedDocument, error) {
	in = in.Normalized()
	res, err := s.Build(in)
	if err != nil {
		return cte.IssuedDocument{}, err
	}
	return cte.NewIssuedDocument(in, res.Key, res.XML), nil
}

// ── ide ────────────────────────────────────────────────────────────────────

func (s *XMLBuilderService) writeIde(w *xmlWriter, in cte.DocumentInput, key *cte.GeneratedKey) {
	id := in.Identification
	cUF, _ := cte.ResolveRegion(in.Issuer.Address.UF)

	w.open("ide")
	w.leaf("cUF", cUF)
	w.leaf("cCT", key.Code)
	w.leaf("CFOP", id.CFOP)
	w.leaf("natOp", id.NatureOfOperation)
	w.leaf("mod", sefaz.ModelCTe)
	w.leaf("serie", strconv.Itoa(id.Series))
	w.leaf("nCT", strconv.Itoa(id.Number))
	w.leaf("dhEmi", id.EmittedAt.Format("2006-01-02T15:04:05-07:00"))
	w.leaf("tpImp", tpImpRetr)
	w.leaf("tpEmis", strconv.Itoa(emissionType(id.EmissionType)))
	w.leaf("cDV", strconv.Itoa(key.CheckDigit))
	w.leaf("tpAmb", strconv.Itoa(environment(id.Environment)))
	w.leaf("tpCTe", strconv.Itoa(id.CTeType))
	w.leaf("procEmi", procEmiApp)
	w.leaf("verProc", verProc)
	w.leaf("cMunEnv", firstNonEmpty(id.IssuerCityCode, in.Issuer.Address.CityCode))
	w.leaf("xMunEnv", firstNonEmpty(id.IssuerCity, in.Issuer.Address.City))
	w.leaf("UFEnv", in.Issuer.Address.UF)
	w.leaf("modal", firstNonEmpty(id.Modal, sefaz.ModalRoad))
	w.leaf("tpServ", strconv.Itoa(id.ServiceType))
	w.leaf("cMunIni", firstNonEmpty(id.OriginCityCode, in.Sender.Address.CityCode))
	w.leaf("xMunIni", firstNonEmpty(id.OriginCity, in.Sender.Address.City))
	w.leaf("UFIni", firstNonEmpty(id.OriginUF, in.Sender.Address.UF))
	w.leaf("cMunFim", firstNonEmpty(id.DestinationCode, in.Recipient.Address.CityCode))
	w.leaf("xMunFim", firstNonEmpty(id.DestinationCity, in.Recipient.Address.City))
	w.leaf("UFFim", firstNonEmpty(id.DestinationUF, in.Recipient.Address.UF))
	w.leaf("retira", "1")
	w.leaf("indIEToma", indIEToma(payerParty(in)))
	w.open("toma3")
	w.leaf("toma", strconv.Itoa(in.Payer))
	w.close("toma3")
	w.close("ide")
}

func writeCompl(w *xmlWriter, obs string) {
	if obs == "" {
		return
	}
	w.open("compl")
	w.leaf("xObs", obs)
	w.close("compl")
}

// ── Partes ─────────────────────────────────────────────────────────────────

func writeIssuer(w *xmlWriter, p cte.Party) {
	w.open("emit")
	w.leaf("CNPJ", p.TaxID)
	w.leaf("IE", p.IE)
	w.leaf("xNome", p.LegalName)
	w.optional("xFant", p.TradeName)
	writeAddress(w, "enderEmit", p.Address, p.Phone)
	w.leaf("CRT", "3")
	w.close("emit")
}

func writeParty(w *xmlWriter, tag, addrTag string, p cte.Party) {
	w.open(tag)
	if sefaz.IsCPF(p.TaxID) {
		w.leaf("CPF", p.TaxID)
	} else {
		w.leaf("CNPJ", p.TaxID)
	}
	w.optional("IE", p.IE)
	w.leaf("xNome", p.LegalName)
	if tag == "rem" {
		w.optional("xFant", p.TradeName)
	}
	w.optional("fone", p.Phone)
	writeAddress(w, addrTag, p.Address, "")
	w.close(tag)
}

func writeAddress(w *xmlWriter, tag string, a cte.Address, phone string) {
	w.open(tag)
	w.leaf("xLgr", a.Street)
	w.leaf("nro", firstNonEmpty(a.Number, "S/N"))
	w.optional("xCpl", a.Complement)
	w.leaf("xBairro", a.District)
	w.leaf("cMun", a.CityCode)
	w.leaf("xMun", a.City)
	w.optional("CEP", a.ZipCode)
	w.leaf("UF", a.UF)
	w.optional("fone", phone)
	w.close(tag)
}

// ── vPrest ─────────────────────────────────────────────────────────────────

func writeValues(w *xmlWriter, v cte.Values) {
	w.open("vPrest")
	w.leaf("vTPrest", formatDecimal(v.ServiceValue))
	w.leaf("vRec", formatDecimal(v.ToCollect()))
	for _, c := range ComponentsOrDefault(v) {
		w.open("Comp")
		w.leaf("xNome", c.Name)
		w.leaf("vComp", formatDecimal(c.Value))
		w.close("Comp")
	}
	w.close("vPrest")
}

// ComponentsOrDefault devolve os componentes informados ou um único FRETE igual ao valor da prestação.
func ComponentsOrDefault(v cte.Values) []cte.Component {
	if len(v.Components) > 0 {
		return v.Components
	}
	return []cte.Component{{Name: freightTag, Value: v.ServiceValue}}
}

// ── imp/ICMS ───────────────────────────────────────────────────────────────

// ICMSGroup nome do grupo de ICMS para o CST. CST fora da tabela cai no formato
// do ICMS00 (known=false) em vez de ser rejeitado.
func ICMSGroup(cst string) (group string, known bool) {
	switch cst {
	case sefaz.CSTNormal:
		return "ICMS00", true
	case sefaz.CSTReducedBase:
		return "ICMS20", true
	case sefaz.CSTExempt, sefaz.CSTNotTaxed, sefaz.CSTDeferred:
		return "ICMS45", true
	case sefaz.CSTPriorST:
		return "ICMS60", true
	case sefaz.CSTOther:
		return "ICMS90", true
	default:
		return "ICMS00", false
	}
}

func (s *XMLBuilderService) writeTax(w *xmlWriter, t cte.Tax) {
	group, known := ICMSGroup(t.CST)
	if !known {
		s.log.Warn().Str("CST", t.CST).Msg("CST não catalogado; usando grupo ICMS00")
	}

	w.open("imp")
	w.open("ICMS")
	w.open(group)
	w.leaf("CST", t.CST)
	switch group {
	case "ICMS00":
		w.leaf("vBC", formatDecimal(t.Base))
		w.leaf("pICMS", formatDecimal(t.Rate))
		w.leaf("vICMS", formatDecimal(t.Value))
	case "ICMS20":
		w.leaf("pRedBC", formatDecimal(t.BaseReduction))
		w.leaf("vBC", formatDecimal(t.Base))
		w.leaf("pICMS", formatDecimal(t.Rate))
		w.leaf("vICMS", formatDecimal(t.Value))
	case "ICMS45":
		// isenção, não tributado ou diferido: somente o CST
	case "ICMS60":
		w.leaf("vBCSTRet", formatDecimal(t.Base))
		w.leaf("vICMSSTRet", formatDecimal(t.Value))
		w.leaf("pICMSSTRet", formatDecimal(t.Rate))
	case "ICMS90":
		if t.BaseReduction.IsPositive() {
			w.leaf("pRedBC", formatDecimal(t.BaseReduction))
		}
		w.leaf("vBC", formatDecimal(t.Base))
		w.leaf("pICMS", formatDecimal(t.Rate))
		w.leaf("vICMS", formatDecimal(t.Value))
	}
	w.close(group)
	w.close("ICMS")
	w.close("imp")
}

// ── infCTeNorm ─────────────────────────────────────────────────────────────

func writeNormal(w *xmlWriter, in cte.DocumentInput) {
	w.open("infCTeNorm")

	c := in.Cargo
	w.open("infCarga")
	w.leaf("vCarga", formatDecimal(c.Value))
	w.leaf("proPred", c.PredominantProduct)
	w.optional("xOutCat", c.OtherFeatures)
	unit := firstNonEmpty(c.UnitCode, sefaz.UnitKG)
	qty := c.Quantity
	if qty.IsZero() && unit == sefaz.UnitKG {
		qty = c.Weight
	}
	writeQuantity(w, unit, firstNonEmpty(c.MeasureType, "PESO BRUTO"), qty)
	if unit != sefaz.UnitKG && c.Weight.IsPositive() {
		writeQuantity(w, sefaz.UnitKG, "PESO BRUTO", c.Weight)
	}
	if c.Volumes > 0 {
		writeQuantity(w, sefaz.UnitUnit, "VOLUMES", decimal.NewFromInt(int64(c.Volumes)))
	}
	w.close("infCarga")

	if len(in.LinkedDocuments) > 0 {
		w.open("infDoc")
		for _, d := range in.LinkedDocuments {
			w.open("infNFe")
			w.leaf("chave", d.AccessKey)
			w.optional("PIN", d.PIN)
			w.close("infNFe")
		}
		w.close("infDoc")
	}

	if ins := in.Insurance; ins != nil {
		w.open("seg")
		w.leaf("respSeg", strconv.Itoa(ins.ResponsibleParty))
		w.optional("xSeg", ins.Insurer)
		w.optional("nApol", ins.Policy)
		w.optional("nAver", ins.Endorsement)
		w.close("seg")
	}

	w.close("infCTeNorm")
}

func writeQuantity(w *xmlWriter, unit, measure string, q decimal.Decimal) {
	w.open("infQ")
	w.leaf("cUnid", unit)
	w.leaf("tpMed", measure)
	w.leaf("qCarga", q.Round(4).StringFixed(4))
	w.close("infQ")
}

// ── helpers ────────────────────────────────────────────────────────────────

// xmlWriter guarda o primeiro erro do encoder para não checar token a token.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *xmlWriter) start(se xml.StartElement) { w.token(se) }

func (w *xmlWriter) end(local string) {
	w.token(xml.EndElement{Name: xml.Name{Local: local}})
}

func (w *xmlWriter) open(local string) {
	w.token(xml.StartElement{Name: xml.Name{Local: local}})
}

func (w *xmlWriter) close(local string) { w.end(local) }

// leaf escreve <local>value</local>; o encoder escapa & < > " '.
func (w *xmlWriter) leaf(local, value string) {
	w.open(local)
	w.token(xml.CharData(value))
	w.close(local)
}

func (w *xmlWriter) optional(local, value string) {
	if value != "" {
		w.leaf(local, value)
	}
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}

func emissionType(t int) int {
	if t == 0 {
		return sefaz.EmissionNormal
	}
	return t
}

func environment(env int) int {
	if env == sefaz.EnvironmentProduction {
		return env
	}
	return sefaz.EnvironmentHomologation
}

func payerParty(in cte.DocumentInput) cte.Party {
	if in.Payer == sefaz.PayerRecipient {
		return in.Recipient
	}
	return in.Sender
}

// indIEToma 1 contribuinte, 2 isento, 9 não contribuinte.
func indIEToma(p cte.Party) string {
	switch {
	case p.IE == "":
		return "9"
	case p.IE == "ISENTO":
		return "2"
	default:
		return "1"
	}
}
