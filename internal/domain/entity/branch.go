package entity

import "time"

// Branch filial emissora: CNPJ próprio, certificado A1 e ponto de controle da distribuição DF-e.
type Branch struct {
	ID                  string
	CompanyID           string
	Name                string
	CNPJ                string
	IE                  string
	UF                  string
	Environment         int    // tpAmb: 1 produção, 2 homologação
	CertificatePath     string // .pfx/.p12 ou PEM
	CertificatePassword string
	LastNSU             string     // último NSU processado (15 dígitos)
	LastSyncAt          *time.Time // nil = nunca sincronizada
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
