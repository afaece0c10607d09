// Package dacte monta a estrutura de dados do DACTE (Documento Auxiliar do CT-e)
// a partir de um CT-e autorizado. Não conhece PDF nem layout; o renderizador
// recebe PrintableDocument já formatado.
package dacte

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// LayoutVersion versão do leiaute impressa no rodapé.
const LayoutVersion = "4.00"

const (
	dateTimeLayout = "02/01/2006 15:04:05"
	disclaimer     = "DOCUMENTO AUXILIAR DO CONHECIMENTO DE TRANSPORTE ELETRÔNICO. " +
		"Consulte a autenticidade em https://www.cte.fazenda.gov.br/portal"
	homologationNote = "EMITIDO EM AMBIENTE DE HOMOLOGAÇÃO - SEM VALOR FISCAL"
)

// ErrNotAuthorized o documento não está autorizado (sem protocolo ou data).
var ErrNotAuthorized = errors.New("dacte: documento não autorizado")

// AuthorizedInput CT-e autorizado: entrada original, chave e protocolo.
type AuthorizedInput struct {
	Document     cte.DocumentInput
	AccessKey    string
	Protocol     string
	AuthorizedAt time.Time
}

// FromIssued extrai AuthorizedInput de um documento em AUTHORIZED.
func FromIssued(doc cte.IssuedDocument) (AuthorizedInput, error) {
	if doc.Status != cte.StatusAuthorized || doc.Authorization == nil {
		return AuthorizedInput{}, fmt.Errorf("%w: estado %s", ErrNotAuthorized, doc.Status)
	}
	return AuthorizedInput{
		Document:     doc.Input,
		AccessKey:    doc.AccessKey.String(),
		Protocol:     doc.Authorization.Protocol,
		AuthorizedAt: doc.Authorization.AuthorizedAt,
	}, nil
}

// ── Estrutura de saída ─────────────────────────────────────────────────────

// PrintableDocument projeção somente leitura usada pelo renderizador.
type PrintableDocument struct {
	Header          Header
	Barcode         Barcode
	Issuer          PartyBlock
	Sender          PartyBlock
	Recipient       PartyBlock
	Components      ComponentsSection
	Tax             TaxSection
	Cargo           CargoSection
	LinkedDocuments LinkedSection
	AdditionalInfo  string
	Footer          Footer
}

// Header cabeçalho.
type Header struct {
	Model             string
	Series            string // 3 dígitos
	Number            string // 9 dígitos
	EmittedAt         string
	ServiceType       string
	CTeType           string
	Modal             string
	CFOP              string
	NatureOfOperation string
	Origin            string // cidade/UF
	Destination       string
	Homologation      bool
}

// Barcode dados do código de barras e protocolo.
type Barcode struct {
	AccessKey    string // 44 dígitos, para o CODE-128
	Formatted    string // 11 grupos de 4
	Protocol     string
	AuthorizedAt string
}

// PartyBlock emitente, remetente ou destinatário formatado.
type PartyBlock struct {
	Role      string
	Name      string
	TradeName string
	TaxID     string // com máscara
	IE        string
	Address   string
	CityUF    string
	ZipCode   string
	Phone     string
	IsPayer   bool
}

// ComponentLine linha de componente do valor da prestação.
type ComponentLine struct {
	Name  string
	Value string
}

// ComponentsSection componentes e totais.
type ComponentsSection struct {
	Items           []ComponentLine
	TotalService    string
	AmountToCollect string
}

// TaxSection ICMS.
type TaxSection struct {
	CST           string
	Label         string
	Base          string
	Rate          string
	Value         string
	BaseReduction string // vazio quando não há redução
}

// CargoSection carga.
type CargoSection struct {
	Product  string
	Value    string
	Weight   string
	Quantity string
	Unit     string
	Volumes  string // vazio quando não informado
}

// LinkedLine documento originário.
type LinkedLine struct {
	Type   string
	Key    string
	Number string
	Value  string
}

// LinkedSection documentos originários e contagem.
type LinkedSection struct {
	Items []LinkedLine
	Count int
}

// Footer rodapé fixo.
type Footer struct {
	Disclaimer    string
	Note          string
	LayoutVersion string
}

// ── Composer ───────────────────────────────────────────────────────────────

// Composer monta o PrintableDocument. Não tem estado.
type Composer struct{}

// NewComposer cria o composer.
func NewComposer() *Composer { return &Composer{} }

// Generate revalida o documento (independente do montador de XML) e monta as seções.
func (c *Composer) Generate(in AuthorizedInput) (*PrintableDocument, error) {
	in.Document = in.Document.Normalized()
	if err := validate(in); err != nil {
		return nil, err
	}
	d := in.Document
	formatted, _ := FormatAccessKey(in.AccessKey)

	payer, err := payerRole(d.Payer)
	if err != nil {
		return nil, err
	}

	out := &PrintableDocument{
		Header: header(d),
		Barcode: Barcode{
			AccessKey:    in.AccessKey,
			Formatted:    formatted,
			Protocol:     in.Protocol,
			AuthorizedAt: in.AuthorizedAt.Format(dateTimeLayout),
		},
		Issuer:          partyBlock("EMITENTE", d.Issuer, false),
		Sender:          partyBlock("REMETENTE", d.Sender, payer == sefaz.PayerSender),
		Recipient:       partyBlock("DESTINATÁRIO", d.Recipient, payer == sefaz.PayerRecipient),
		Components:      components(d.Values),
		Tax:             taxSection(d.Tax),
		Cargo:           cargoSection(d.Cargo),
		LinkedDocuments: linkedSection(d.LinkedDocuments),
		AdditionalInfo:  strings.TrimSpace(d.AdditionalInfo),
		Footer:          Footer{Disclaimer: disclaimer, LayoutVersion: LayoutVersion},
	}
	if out.Header.Homologation {
		out.Footer.Note = homologationNote
	}
	return out, nil
}

// validate repete, de forma independente, os invariantes estruturais.
func validate(in AuthorizedInput) error {
	d := in.Document
	key := in.AccessKey
	if len(key) != keyLength || strings.Trim(key, "0123456789") != "" {
		return domain.NewValidationError("chave", "deve ter 44 dígitos numéricos")
	}
	dv, err := CalculateCheckDigit(key[:keyLength-1])
	if err != nil || int(key[keyLength-1]-'0') != dv {
		return domain.NewValidationError("chave", "dígito verificador não confere")
	}
	if strings.TrimSpace(in.Protocol) == "" || in.AuthorizedAt.IsZero() {
		return fmt.Errorf("%w: protocolo e data de autorização são obrigatórios", ErrNotAuthorized)
	}
	if d.Identification.Number <= 0 {
		return domain.NewValidationError("nCT", "número deve ser maior que zero")
	}
	if d.Identification.Series < 0 {
		return domain.NewValidationError("serie", "série não pode ser negativa")
	}
	if err := sefaz.ValidateCNPJ(d.Issuer.TaxID); err != nil {
		return domain.NewValidationError("emit.CNPJ", err.Error())
	}
	if err := sefaz.ValidateTaxID(d.Sender.TaxID); err != nil {
		return domain.NewValidationError("rem.CNPJCPF", err.Error())
	}
	if err := sefaz.ValidateTaxID(d.Recipient.TaxID); err != nil {
		return domain.NewValidationError("dest.CNPJCPF", err.Error())
	}
	if d.Values.ServiceValue.IsNegative() {
		return domain.NewValidationError("vPrest.vTPrest", "valor não pode ser negativo")
	}
	if d.Cargo.Value.IsNegative() {
		return domain.NewValidationError("infCarga.vCarga", "valor não pode ser negativo")
	}
	if !d.Cargo.Weight.IsPositive() {
		return domain.NewValidationError("infCarga.peso", "peso deve ser maior que zero")
	}
	if uf := originUF(d); !sefaz.IsKnownUF(uf) {
		return domain.NewValidationError("UFIni", "UF desconhecida: "+uf)
	}
	if uf := destinationUF(d); !sefaz.IsKnownUF(uf) {
		return domain.NewValidationError("UFFim", "UF desconhecida: "+uf)
	}
	if d.Tax.Rate.IsNegative() || d.Tax.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return domain.NewValidationError("imp.ICMS.pICMS", "alíquota deve estar entre 0 e 100")
	}
	return nil
}

// payerRole só remetente e destinatário têm bloco próprio no DACTE.
func payerRole(toma int) (int, error) {
	switch toma {
	case sefaz.PayerSender, sefaz.PayerRecipient:
		return toma, nil
	default:
		return 0, domain.NewValidationError("toma3", fmt.Sprintf("tomador %d sem bloco correspondente no DACTE", toma))
	}
}

func header(d cte.DocumentInput) Header {
	id := d.Identification
	return Header{
		Model:             sefaz.ModelCTe,
		Series:            fmt.Sprintf("%03d", id.Series),
		Number:            fmt.Sprintf("%09d", id.Number),
		EmittedAt:         id.EmittedAt.Format(dateTimeLayout),
		ServiceType:       sefaz.ServiceTypeLabel(id.ServiceType),
		CTeType:           sefaz.CTeTypeLabel(id.CTeType),
		Modal:             sefaz.ModalLabel(orDefault(id.Modal, sefaz.ModalRoad)),
		CFOP:              id.CFOP,
		NatureOfOperation: id.NatureOfOperation,
		Origin:            cityUF(orDefault(id.OriginCity, d.Sender.Address.City), originUF(d)),
		Destination:       cityUF(orDefault(id.DestinationCity, d.Recipient.Address.City), destinationUF(d)),
		Homologation:      id.Environment != sefaz.EnvironmentProduction,
	}
}

func partyBlock(role string, p cte.Party, payer bool) PartyBlock {
	a := p.Address
	parts := []string{a.Street}
	if a.Number != "" {
		parts = append(parts, a.Number)
	}
	if a.Complement != "" {
		parts = append(parts, a.Complement)
	}
	if a.District != "" {
		parts = append(parts, a.District)
	}
	zip := a.ZipCode
	if len(zip) == 8 {
		zip = zip[:5] + "-" + zip[5:]
	}
	return PartyBlock{
		Role:      role,
		Name:      p.LegalName,
		TradeName: p.TradeName,
		TaxID:     sefaz.FormatTaxID(p.TaxID),
		IE:        p.IE,
		Address:   strings.Join(parts, ", "),
		CityUF:    cityUF(a.City, a.UF),
		ZipCode:   zip,
		Phone:     p.Phone,
		IsPayer:   payer,
	}
}

func components(v cte.Values) ComponentsSection {
	items := v.Components
	if len(items) == 0 {
		items = []cte.Component{{Name: "FRETE", Value: v.ServiceValue}}
	}
	lines := make([]ComponentLine, 0, len(items))
	for _, c := range items {
		lines = append(lines, ComponentLine{Name: c.Name, Value: formatMoney(c.Value)})
	}
	return ComponentsSection{
		Items:           lines,
		TotalService:    formatMoney(v.ServiceValue),
		AmountToCollect: formatMoney(v.ToCollect()),
	}
}

func taxSection(t cte.Tax) TaxSection {
	s := TaxSection{
		CST:   t.CST,
		Label: sefaz.CSTLabel(t.CST),
		Base:  formatMoney(t.Base),
		Rate:  formatPercent(t.Rate),
		Value: formatMoney(t.Value),
	}
	if t.BaseReduction.IsPositive() {
		s.BaseReduction = formatPercent(t.BaseReduction)
	}
	return s
}

func cargoSection(c cte.Cargo) CargoSection {
	unit := orDefault(c.UnitCode, sefaz.UnitKG)
	s := CargoSection{
		Product:  c.PredominantProduct,
		Value:    formatMoney(c.Value),
		Weight:   formatWeight(c.Weight),
		Quantity: formatNumber(c.Quantity, 4),
		Unit:     sefaz.UnitLabel(unit),
	}
	if c.Volumes > 0 {
		s.Volumes = fmt.Sprintf("%d", c.Volumes)
	}
	return s
}

func linkedSection(docs []cte.LinkedDocument) LinkedSection {
	s := LinkedSection{Count: len(docs)}
	for _, d := range docs {
		s.Items = append(s.Items, LinkedLine{
			Type:   linkedType(d.AccessKey),
			Key:    d.AccessKey,
			Number: d.Number,
			Value:  formatMoney(d.Value),
		})
	}
	return s
}

// linkedType pelo modelo na chave (posições 21-22).
func linkedType(key string) string {
	if len(key) != keyLength {
		return "OUTROS"
	}
	switch key[20:22] {
	case "55":
		return "NF-e"
	case "57":
		return "CT-e"
	case "65":
		return "NFC-e"
	default:
		return "OUTROS"
	}
}

func originUF(d cte.DocumentInput) string {
	return orDefault(d.Identification.OriginUF, d.Sender.Address.UF)
}

func destinationUF(d cte.DocumentInput) string {
	return orDefault(d.Identification.DestinationUF, d.Recipient.Address.UF)
}

func cityUF(city, uf string) string {
	if city == "" {
		return uf
	}
	return city + "/" + uf
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
