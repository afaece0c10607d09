package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento recebido.
const (
	InboundKindCTe   = "CTe"
	InboundKindNFe   = "NFe"
	InboundKindEvent = "EVENTO"
)

// InboundDocument documento fiscal de terceiros importado (XML recebido ou baixado da SEFAZ).
// AccessKey é única: a constraint do banco decide duplicidades.
type InboundDocument struct {
	ID          string
	CompanyID   string
	BranchID    string // vazio para importação manual
	AccessKey   string
	Kind        string // ver constantes InboundKind*
	Model       string
	Series      string
	Number      string
	IssuerTaxID string
	IssuerName  string
	PartnerID   string
	IssuedAt    time.Time
	CFOP        string
	TotalValue  decimal.Decimal
	NSU         string
	Schema      string
	XML         string
	Items       []InboundItem
	CreatedAt   time.Time
}

// InboundItem item de NF-e recebida, vinculado ao produto do fornecedor.
type InboundItem struct {
	ProductID   string
	Code        string
	Description string
	NCM         string
	CFOP        string
	CST         string
	Unit        string
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal
	TotalValue  decimal.Decimal
}
