package entity

import "time"

// Papéis de parceiro; um mesmo CNPJ pode acumular papéis em documentos diferentes.
const (
	PartnerRoleSupplier = "supplier"
	PartnerRoleCarrier  = "carrier"
	PartnerRoleCustomer = "customer"
)

// BusinessPartner contraparte fiscal (emitente de documento recebido, transportadora, tomador).
// Único por (CompanyID, TaxID).
type BusinessPartner struct {
	ID        string
	CompanyID string
	TaxID     string // CNPJ ou CPF, só dígitos
	IE        string
	LegalName string
	TradeName string
	Role      string // ver constantes PartnerRole*
	City      string
	UF        string
	CreatedAt time.Time
	UpdatedAt time.Time
}
