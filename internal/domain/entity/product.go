package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product item de fornecedor conhecido pela empresa. Criado ou vinculado na importação
// de documentos recebidos; Code é o cProd do emitente, único por empresa e parceiro.
type Product struct {
	ID          string
	CompanyID   string
	PartnerID   string // fornecedor que usa este código
	Code        string // cProd
	Description string
	NCM         string
	CEST        string
	Unit        string // uCom
	LastPrice   decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
