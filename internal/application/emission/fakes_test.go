package emission_test

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/jhoicas/cte-api/internal/application/emission"
	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/cte/ctetest"
	"github.com/jhoicas/cte-api/internal/domain/dacte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

const (
	companyID = "company-1"
	branchID  = "branch-1"
)

type memRecords struct {
	mu      sync.Mutex
	byKey   map[string]*entity.CTeRecord
	updates int
	next    int
}

func newMemRecords() *memRecords {
	return &memRecords{byKey: map[string]*entity.CTeRecord{}, next: 42}
}

func (r *memRecords) Create(_ context.Context, rec *entity.CTeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[rec.AccessKey]; ok {
		return domain.ErrDuplicate
	}
	cp := *rec
	r.byKey[rec.AccessKey] = &cp
	return nil
}

func (r *memRecords) Update(_ context.Context, rec *entity.CTeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[rec.AccessKey]; !ok {
		return domain.ErrNotFound
	}
	cp := *rec
	r.byKey[rec.AccessKey] = &cp
	r.updates++
	return nil
}

func (r *memRecords) GetByAccessKey(_ context.Context, company, key string) (*entity.CTeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byKey[key]
	if !ok || rec.CompanyID != company {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memRecords) NextNumber(context.Context, string, int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	r.next++
	return n, nil
}

type memBranches map[string]*entity.Branch

func (b memBranches) GetByID(_ context.Context, id string) (*entity.Branch, error) {
	br, ok := b[id]
	if !ok {
		return nil, nil
	}
	cp := *br
	return &cp, nil
}

func (b memBranches) UpdateLastNSU(context.Context, string, string, time.Time) error { return nil }

func branches(certPath string) memBranches {
	return memBranches{
		branchID:  {ID: branchID, CompanyID: companyID, CNPJ: ctetest.IssuerCNPJ, UF: "SP", Environment: 2, CertificatePath: certPath, CertificatePassword: "1234"},
		"other-1": {ID: "other-1", CompanyID: "company-2", CNPJ: ctetest.IssuerCNPJ, UF: "SP"},
	}
}

// markingSigner acrescenta um marcador no lugar da assinatura real.
type markingSigner struct {
	calls []string
}

func (s *markingSigner) SignFile(xml []byte, path, _ string) ([]byte, error) {
	s.calls = append(s.calls, path)
	return bytes.Replace(xml, []byte("</CTe>"), []byte("<Signature/></CTe>"), 1), nil
}

// flakyGateway gateway simulado com falhas programadas.
type flakyGateway struct {
	*sefaz.Gateway
	transmitErr error
	rejectCode  int
	refuseEvent bool
}

func (g *flakyGateway) Transmit(ctx context.Context, doc cte.IssuedDocument) (*sefaz.TransmitResult, error) {
	if g.transmitErr != nil {
		return nil, g.transmitErr
	}
	return g.Gateway.Transmit(ctx, doc)
}

func (g *flakyGateway) Authorize(ctx context.Context, doc cte.IssuedDocument) (*sefaz.AuthorizeResult, error) {
	if g.rejectCode != 0 {
		next, err := doc.Reject(cte.Rejection{StatusCode: g.rejectCode, StatusMessage: "Rejeição: CFOP inválido"})
		if err != nil {
			return nil, err
		}
		return &sefaz.AuthorizeResult{Document: next, StatusCode: g.rejectCode, Message: "Rejeição: CFOP inválido"}, nil
	}
	return g.Gateway.Authorize(ctx, doc)
}

func (g *flakyGateway) Cancel(ctx context.Context, doc cte.IssuedDocument, reason string) (*sefaz.CancelResult, error) {
	if g.refuseEvent {
		return &sefaz.CancelResult{Document: doc, StatusCode: 220, Message: "Rejeição: prazo de cancelamento superior ao previsto"}, nil
	}
	return g.Gateway.Cancel(ctx, doc, reason)
}

type fakeRenderer struct {
	got *dacte.PrintableDocument
}

func (r *fakeRenderer) Render(doc *dacte.PrintableDocument) ([]byte, error) {
	r.got = doc
	return []byte("%PDF-1.4 fake"), nil
}

type fixture struct {
	svc      *emission.Service
	records  *memRecords
	signer   *markingSigner
	gw       *flakyGateway
	renderer *fakeRenderer
}

func newFixture(certPath string) *fixture {
	f := &fixture{
		records:  newMemRecords(),
		signer:   &markingSigner{},
		gw:       &flakyGateway{Gateway: sefaz.NewGateway(sefaz.GatewayConfig{Mode: sefaz.ModeSimulated}, nil)},
		renderer: &fakeRenderer{},
	}
	builder := sefaz.NewXMLBuilderService(cte.NewAccessKeyGenerator(cte.NewSeededRandom(7)))
	provider := emission.GatewayProviderFunc(func(context.Context, *entity.Branch) (emission.FiscalGateway, error) {
		return f.gw, nil
	})
	f.svc = emission.NewService(branches(certPath), f.records, builder, f.signer, provider, f.renderer, nil)
	return f
}
