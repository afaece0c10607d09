package cte

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhoicas/cte-api/internal/domain"
)

// Status estado do CT-e no ciclo de autorização.
type Status string

const (
	StatusBuilt       Status = "BUILT"
	StatusTransmitted Status = "TRANSMITTED"
	StatusAuthorized  Status = "AUTHORIZED"
	StatusRejected    Status = "REJECTED"
	StatusCancelled   Status = "CANCELLED"
)

// MinCancelReasonLength tamanho mínimo da justificativa (xJust) exigido pela SEFAZ.
const MinCancelReasonLength = 15

// transitions BUILT → TRANSMITTED → {AUTHORIZED | REJECTED}; AUTHORIZED → CANCELLED.
// REJECTED e CANCELLED são terminais.
var transitions = map[Status][]Status{
	StatusBuilt:       {StatusTransmitted},
	StatusTransmitted: {StatusAuthorized, StatusRejected},
	StatusAuthorized:  {StatusCancelled},
}

// CanTransition indica se from → to é permitido.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authorization dados do protocolo de autorização.
type Authorization struct {
	Protocol      string
	AuthorizedAt  time.Time
	StatusCode    int
	StatusMessage string
}

// Rejection retorno da SEFAZ que recusou o documento (sem protocolo).
type Rejection struct {
	StatusCode    int
	StatusMessage string
}

// Cancellation dados do evento de cancelamento homologado.
type Cancellation struct {
	Protocol    string
	Reason      string
	CancelledAt time.Time
	StatusCode  int
}

// IssuedDocument CT-e montado. Cada transição devolve uma cópia nova; o valor
// original não muda. Os grupos Authorization/Rejection/Cancellation só existem
// nos estados correspondentes.
type IssuedDocument struct {
	Input                DocumentInput
	AccessKey            AccessKey
	Code                 string // cCT
	CheckDigit           int
	XML                  []byte
	Status               Status
	TransmissionProtocol string
	TransmittedAt        time.Time
	Receipt              *Receipt // resposta síncrona da recepção, quando houver
	Authorization        *Authorization
	Rejection            *Rejection
	Cancellation         *Cancellation
}

// Receipt retorno da recepção síncrona (protCTe já pode vir nele).
type Receipt struct {
	StatusCode    int
	StatusMessage string
	Protocol      string
	ReceivedAt    time.Time
}

// NewIssuedDocument documento recém-montado, em BUILT.
func NewIssuedDocument(in DocumentInput, key *GeneratedKey, xml []byte) IssuedDocument {
	return IssuedDocument{
		Input:      in,
		AccessKey:  key.Key,
		Code:       key.Code,
		CheckDigit: key.CheckDigit,
		XML:        xml,
		Status:     StatusBuilt,
	}
}

func (d IssuedDocument) to(next Status) error {
	if !CanTransition(d.Status, next) {
		return fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, d.Status, next)
	}
	return nil
}

// MarkTransmitted BUILT → TRANSMITTED.
func (d IssuedDocument) MarkTransmitted(protocol string, at time.Time) (IssuedDocument, error) {
	if err := d.to(StatusTransmitted); err != nil {
		return d, err
	}
	d.Status = StatusTransmitted
	d.TransmissionProtocol = protocol
	d.TransmittedAt = at
	return d, nil
}

// Authorize TRANSMITTED → AUTHORIZED (AuthorizedDocument).
func (d IssuedDocument) Authorize(a Authorization) (IssuedDocument, error) {
	if err := d.to(StatusAuthorized); err != nil {
		return d, err
	}
	if a.Protocol == "" || a.AuthorizedAt.IsZero() {
		return d, domain.NewValidationError("protCTe", "autorização exige protocolo e data")
	}
	d.Status = StatusAuthorized
	d.Authorization = &a
	return d, nil
}

// Reject TRANSMITTED → REJECTED (RejectedDocument).
func (d IssuedDocument) Reject(r Rejection) (IssuedDocument, error) {
	if err := d.to(StatusRejected); err != nil {
		return d, err
	}
	d.Status = StatusRejected
	d.Rejection = &r
	return d, nil
}

// Cancel AUTHORIZED → CANCELLED (CancelledDocument).
func (d IssuedDocument) Cancel(c Cancellation) (IssuedDocument, error) {
	if err := d.to(StatusCancelled); err != nil {
		return d, err
	}
	if err := ValidateCancelReason(c.Reason); err != nil {
		return d, err
	}
	d.Status = StatusCancelled
	d.Cancellation = &c
	return d, nil
}

// ValidateCancelReason exige ao menos 15 caracteres (runas), descontados espaços nas pontas.
func ValidateCancelReason(reason string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(reason)); n < MinCancelReasonLength {
		return domain.NewValidationError("xJust", fmt.Sprintf("justificativa deve ter ao menos %d caracteres, recebidos %d", MinCancelReasonLength, n))
	}
	return nil
}
