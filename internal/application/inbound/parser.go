package inbound

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// parsedDocument campos extraídos do XML recebido.
type parsedDocument struct {
	Kind       string
	AccessKey  string
	Model      string
	Series     string
	Number     string
	IssuedAt   time.Time
	CFOP       string
	TotalValue decimal.Decimal
	Issuer     entity.BusinessPartner
	IssuerRole string
	Items      []entity.InboundItem
}

// extractKey lê a chave do XML sem validar o restante: infCte/infNFe@Id ou chCTe/chNFe.
func extractKey(doc *etree.Document) string {
	for _, path := range []string{"//infCte", "//infNFe"} {
		if el := doc.FindElement(path); el != nil {
			id := el.SelectAttrValue("Id", "")
			if len(id) > cte.AccessKeyLength {
				return id[len(id)-cte.AccessKeyLength:]
			}
		}
	}
	for _, path := range []string{"//chCTe", "//chNFe"} {
		if el := doc.FindElement(path); el != nil {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

// parseDocument reconhece cteProc/CTe e nfeProc/NFe.
func parseDocument(doc *etree.Document) (*parsedDocument, error) {
	root := doc.Root()
	if root == nil {
		return nil, errors.New("XML sem raiz")
	}
	switch {
	case doc.FindElement("//infCte") != nil:
		return parseCTe(doc.FindElement("//infCte"))
	case doc.FindElement("//infNFe") != nil:
		return parseNFe(doc.FindElement("//infNFe"))
	default:
		return nil, fmt.Errorf("tipo de documento não suportado: %s", root.Tag)
	}
}

func parseCTe(inf *etree.Element) (*parsedDocument, error) {
	p := &parsedDocument{
		Kind:       entity.InboundKindCTe,
		Model:      text(inf, "ide/mod"),
		Series:     text(inf, "ide/serie"),
		Number:     text(inf, "ide/nCT"),
		CFOP:       text(inf, "ide/CFOP"),
		IssuerRole: entity.PartnerRoleCarrier,
	}
	var err error
	if p.IssuedAt, err = parseTime(text(inf, "ide/dhEmi")); err != nil {
		return nil, err
	}
	if p.TotalValue, err = parseDecimal(inf, "vPrest/vTPrest"); err != nil {
		return nil, err
	}
	if p.Issuer, err = parseIssuer(inf, "emit", "enderEmit"); err != nil {
		return nil, err
	}
	return p, nil
}

func parseNFe(inf *etree.Element) (*parsedDocument, error) {
	p := &parsedDocument{
		Kind:       entity.InboundKindNFe,
		Model:      text(inf, "ide/mod"),
		Series:     text(inf, "ide/serie"),
		Number:     text(inf, "ide/nNF"),
		IssuerRole: entity.PartnerRoleSupplier,
	}
	var err error
	if p.IssuedAt, err = parseTime(text(inf, "ide/dhEmi")); err != nil {
		return nil, err
	}
	if p.TotalValue, err = parseDecimal(inf, "total/ICMSTot/vNF"); err != nil {
		return nil, err
	}
	if p.Issuer, err = parseIssuer(inf, "emit", "enderEmit"); err != nil {
		return nil, err
	}

	for i, det := range inf.SelectElements("det") {
		prod := det.SelectElement("prod")
		if prod == nil {
			return nil, fmt.Errorf("det %d sem prod", i+1)
		}
		item := entity.InboundItem{
			Code:        text(prod, "cProd"),
			Description: text(prod, "xProd"),
			NCM:         text(prod, "NCM"),
			CFOP:        text(prod, "CFOP"),
			Unit:        text(prod, "uCom"),
			CST:         icmsCST(det),
		}
		if item.Code == "" {
			return nil, fmt.Errorf("det %d sem cProd", i+1)
		}
		if item.Quantity, err = parseDecimal(prod, "qCom"); err != nil {
			return nil, fmt.Errorf("det %d: %w", i+1, err)
		}
		if item.UnitValue, err = parseDecimal(prod, "vUnCom"); err != nil {
			return nil, fmt.Errorf("det %d: %w", i+1, err)
		}
		if item.TotalValue, err = parseDecimal(prod, "vProd"); err != nil {
			return nil, fmt.Errorf("det %d: %w", i+1, err)
		}
		if p.CFOP == "" {
			p.CFOP = item.CFOP
		}
		p.Items = append(p.Items, item)
	}
	return p, nil
}

func parseIssuer(inf *etree.Element, tag, addrTag string) (entity.BusinessPartner, error) {
	emit := inf.SelectElement(tag)
	if emit == nil {
		return entity.BusinessPartner{}, fmt.Errorf("%s ausente", tag)
	}
	taxID := text(emit, "CNPJ")
	if taxID == "" {
		taxID = text(emit, "CPF")
	}
	if taxID == "" {
		return entity.BusinessPartner{}, fmt.Errorf("%s sem CNPJ/CPF", tag)
	}
	return entity.BusinessPartner{
		TaxID:     taxID,
		IE:        text(emit, "IE"),
		LegalName: text(emit, "xNome"),
		TradeName: text(emit, "xFant"),
		City:      text(emit, addrTag+"/xMun"),
		UF:        text(emit, addrTag+"/UF"),
	}, nil
}

// icmsCST CST (regime normal) ou CSOSN (Simples Nacional) do primeiro grupo ICMS do item.
func icmsCST(det *etree.Element) string {
	icms := det.FindElement("imposto/ICMS")
	if icms == nil {
		return ""
	}
	for _, group := range icms.ChildElements() {
		if v := text(group, "CST"); v != "" {
			return v
		}
		if v := text(group, "CSOSN"); v != "" {
			return v
		}
	}
	return ""
}

func text(e *etree.Element, path string) string {
	if el := e.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func parseDecimal(e *etree.Element, path string) (decimal.Decimal, error) {
	raw := text(e, path)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s inválido: %q", path, raw)
	}
	return d, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("dhEmi ausente")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("dhEmi inválido: %q", raw)
	}
	return t, nil
}
