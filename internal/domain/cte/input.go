package cte

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentInput dados estruturados de um CT-e a emitir. Tratado como valor imutável:
// o montador nunca altera o que recebe.
type DocumentInput struct {
	Identification  Identification
	Issuer          Party
	Sender          Party
	Recipient       Party
	Payer           int // toma3: 0 remetente, 1 expedidor, 2 recebedor, 3 destinatário
	Values          Values
	Tax             Tax
	Cargo           Cargo
	LinkedDocuments []LinkedDocument
	Insurance       *Insurance
	AdditionalInfo  string
}

// Identification bloco <ide>.
type Identification struct {
	Series            int
	Number            int
	EmittedAt         time.Time
	CFOP              string
	NatureOfOperation string
	ServiceType       int    // tpServ
	CTeType           int    // tpCTe
	Modal             string // "01" rodoviário ...
	Environment       int    // tpAmb: 1 produção, 2 homologação
	EmissionType      int    // tpEmis
	IssuerCityCode    string // cMunEnv
	IssuerCity        string
	OriginCityCode    string // cMunIni
	OriginCity        string
	OriginUF          string
	DestinationCode   string // cMunFim
	DestinationCity   string
	DestinationUF     string
}

// Party emitente, remetente ou destinatário.
type Party struct {
	TaxID     string // CPF (11) ou CNPJ (14), somente dígitos
	IE        string
	LegalName string
	TradeName string
	Phone     string
	Address   Address
}

// Address endereço no formato dos grupos ender*.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string // código IBGE do município (7 dígitos)
	City       string
	ZipCode    string
	UF         string
}

// Values bloco <vPrest>.
type Values struct {
	ServiceValue    decimal.Decimal  // vTPrest
	AmountToCollect *decimal.Decimal // vRec; nil usa vTPrest, zero é válido
	Components      []Component
}

// ToCollect valor a receber (vRec).
func (v Values) ToCollect() decimal.Decimal {
	if v.AmountToCollect == nil {
		return v.ServiceValue
	}
	return *v.AmountToCollect
}

// Component item de <Comp>.
type Component struct {
	Name  string
	Value decimal.Decimal
}

// Tax ICMS da prestação. Rate em percentual (12 = 12%).
type Tax struct {
	CST           string
	Base          decimal.Decimal
	Rate          decimal.Decimal
	Value         decimal.Decimal
	BaseReduction decimal.Decimal // pRedBC, CST 20 e 90
}

// Cargo grupo <infCarga>.
type Cargo struct {
	Value              decimal.Decimal
	PredominantProduct string
	OtherFeatures      string // xOutCat
	Quantity           decimal.Decimal
	UnitCode           string          // cUnid
	MeasureType        string          // tpMed
	Weight             decimal.Decimal // kg
	Volumes            int
}

// LinkedDocument NF-e transportada.
type LinkedDocument struct {
	AccessKey string
	PIN       string
	Number    string
	Value     decimal.Decimal
}

// Insurance grupo <seg>.
type Insurance struct {
	ResponsibleParty int // respSeg
	Insurer          string
	Policy           string
	Endorsement      string
}

// Normalized devolve uma cópia com as siglas de UF em caixa alta e sem espaços,
// como exige o tipo TUf do leiaute.
func (in DocumentInput) Normalized() DocumentInput {
	out := in
	out.Identification.OriginUF = normalizeUF(in.Identification.OriginUF)
	out.Identification.DestinationUF = normalizeUF(in.Identification.DestinationUF)
	out.Issuer.Address.UF = normalizeUF(in.Issuer.Address.UF)
	out.Sender.Address.UF = normalizeUF(in.Sender.Address.UF)
	out.Recipient.Address.UF = normalizeUF(in.Recipient.Address.UF)
	return out
}

func normalizeUF(uf string) string {
	return strings.ToUpper(strings.TrimSpace(uf))
}
