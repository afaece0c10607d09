package entity

import (
	"encoding/json"
	"time"
)

// CTeRecord linha persistida do ciclo de vida de um CT-e emitido.
// Status segue cte.Status (BUILT, TRANSMITTED, AUTHORIZED, REJECTED, CANCELLED).
type CTeRecord struct {
	ID                   string
	CompanyID            string
	BranchID             string
	AccessKey            string
	Code                 string // cCT
	Series               int
	Number               int
	Status               string
	Input                json.RawMessage // cte.DocumentInput serializado
	XML                  string          // XML assinado
	TransmissionProtocol string
	TransmittedAt        *time.Time
	Protocol             string // nProt da autorização
	AuthorizedAt         *time.Time
	StatusCode           int
	StatusMessage        string
	CancelProtocol       string
	CancelReason         string
	CancelledAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
