package emission

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

func newRecord(companyID, branchID string, doc cte.IssuedDocument, now time.Time) (*entity.CTeRecord, error) {
	input, err := json.Marshal(doc.Input)
	if err != nil {
		return nil, fmt.Errorf("emissão: serializar entrada: %w", err)
	}
	rec := &entity.CTeRecord{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		BranchID:  branchID,
		AccessKey: doc.AccessKey.String(),
		Code:      doc.Code,
		Series:    doc.Input.Identification.Series,
		Number:    doc.Input.Identification.Number,
		Input:     input,
		CreatedAt: now,
	}
	applyDocument(rec, doc, now)
	return rec, nil
}

// applyDocument copia estado e protocolos do documento para a linha persistida.
func applyDocument(rec *entity.CTeRecord, doc cte.IssuedDocument, now time.Time) {
	rec.Status = string(doc.Status)
	rec.XML = string(doc.XML)
	rec.TransmissionProtocol = doc.TransmissionProtocol
	if !doc.TransmittedAt.IsZero() {
		at := doc.TransmittedAt
		rec.TransmittedAt = &at
	}
	if a := doc.Authorization; a != nil {
		at := a.AuthorizedAt
		rec.Protocol = a.Protocol
		rec.AuthorizedAt = &at
		rec.StatusCode, rec.StatusMessage = a.StatusCode, a.StatusMessage
	}
	if r := doc.Rejection; r != nil {
		rec.StatusCode, rec.StatusMessage = r.StatusCode, r.StatusMessage
	}
	if c := doc.Cancellation; c != nil {
		at := c.CancelledAt
		rec.CancelProtocol = c.Protocol
		rec.CancelReason = c.Reason
		rec.CancelledAt = &at
		rec.StatusCode = c.StatusCode
	}
	rec.UpdatedAt = now
}

// documentFromRecord reconstrói o documento a partir da linha gravada.
func documentFromRecord(rec *entity.CTeRecord) (cte.IssuedDocument, error) {
	var in cte.DocumentInput
	if err := json.Unmarshal(rec.Input, &in); err != nil {
		return cte.IssuedDocument{}, fmt.Errorf("emissão: ler entrada do CT-e %s: %w", rec.AccessKey, err)
	}
	key := cte.AccessKey(rec.AccessKey)
	doc := cte.IssuedDocument{
		Input:                in,
		AccessKey:            key,
		Code:                 rec.Code,
		CheckDigit:           key.CheckDigit(),
		XML:                  []byte(rec.XML),
		Status:               cte.Status(rec.Status),
		TransmissionProtocol: rec.TransmissionProtocol,
	}
	if rec.TransmittedAt != nil {
		doc.TransmittedAt = *rec.TransmittedAt
	}
	if rec.Protocol != "" && rec.AuthorizedAt != nil {
		auth := &cte.Authorization{
			Protocol:      rec.Protocol,
			AuthorizedAt:  *rec.AuthorizedAt,
			StatusCode:    sefaz.StatusAuthorized,
			StatusMessage: rec.StatusMessage,
		}
		if doc.Status == cte.StatusAuthorized {
			auth.StatusCode = rec.StatusCode
		}
		doc.Authorization = auth
	}
	switch doc.Status {
	case cte.StatusRejected:
		doc.Rejection = &cte.Rejection{StatusCode: rec.StatusCode, StatusMessage: rec.StatusMessage}
	case cte.StatusCancelled:
		c := &cte.Cancellation{Protocol: rec.CancelProtocol, Reason: rec.CancelReason, StatusCode: rec.StatusCode}
		if rec.CancelledAt != nil {
			c.CancelledAt = *rec.CancelledAt
		}
		doc.Cancellation = c
	}
	return doc, nil
}
