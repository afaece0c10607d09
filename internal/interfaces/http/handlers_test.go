package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cte-api/internal/application/emission"
	"github.com/jhoicas/cte-api/internal/application/inbound"
	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz/signer"
	apphttp "github.com/jhoicas/cte-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/cte-api/pkg/jwt"
)

const validKey = "35241011222333000181570010000001231123456787"

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeCTe struct {
	issued   cte.DocumentInput
	branchID string
	rec      *entity.CTeRecord
	remote   *sefaz.StatusResult
	err      error
	reason   string
	pdf      []byte
}

func (f *fakeCTe) Issue(_ context.Context, _, branchID string, in cte.DocumentInput) (*entity.CTeRecord, error) {
	f.issued, f.branchID = in, branchID
	return f.rec, f.err
}

func (f *fakeCTe) Cancel(_ context.Context, _, _, reason string) (*entity.CTeRecord, error) {
	f.reason = reason
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeCTe) Status(context.Context, string, string) (*entity.CTeRecord, *sefaz.StatusResult, error) {
	return f.rec, f.remote, f.err
}

func (f *fakeCTe) DACTE(_ context.Context, _, key string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.pdf, "DACTE-" + key + ".pdf", nil
}

type fakeBranches map[string]*entity.Branch

func (f fakeBranches) GetByID(_ context.Context, id string) (*entity.Branch, error) {
	return f[id], nil
}

func (f fakeBranches) UpdateLastNSU(context.Context, string, string, time.Time) error { return nil }

type fakeInbound struct {
	batch *inbound.ImportBatch
	err   error
	raws  []inbound.RawDocument
}

func (f *fakeInbound) Download(context.Context, string) (*inbound.ImportBatch, error) {
	return f.batch, f.err
}

func (f *fakeInbound) Process(_ context.Context, _, _ string, raws []inbound.RawDocument) (*inbound.ImportBatch, error) {
	f.raws = raws
	return f.batch, f.err
}

type fakeValidator struct{ info *signer.CertificateInfo }

func (f fakeValidator) Validate(string, string) (*signer.CertificateInfo, error) { return f.info, nil }

type fixture struct {
	app   *fiber.App
	cte   *fakeCTe
	inb   *fakeInbound
	certs *fakeValidator
}

func newFixture() *fixture {
	f := &fixture{cte: &fakeCTe{}, inb: &fakeInbound{}, certs: &fakeValidator{}}
	branches := fakeBranches{
		"branch-1": {ID: "branch-1", CompanyID: testCompanyID, CNPJ: "11222333000181", CertificatePath: "/certs/a1.pfx"},
		"other-1":  {ID: "other-1", CompanyID: "company-2", CNPJ: "99888777000166"},
	}
	f.app = fiber.New()
	apphttp.Router(f.app, apphttp.RouterDeps{
		CTe:          f.cte,
		Branches:     branches,
		Downloader:   f.inb,
		Importer:     f.inb,
		Certificates: f.certs,
		JWTSecret:    testJWTSecret,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, role string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, role))
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func authorizedRecord() *entity.CTeRecord {
	at := time.Date(2024, 10, 15, 14, 35, 0, 0, time.UTC)
	return &entity.CTeRecord{
		ID: "rec-1", BranchID: "branch-1", AccessKey: validKey, Series: 1, Number: 123,
		Status: string(cte.StatusAuthorized), StatusCode: 100, Protocol: "135240000012345", AuthorizedAt: &at,
	}
}

// ── CT-e ─────────────────────────────────────────────────────────────────────

func TestIssue_AutorizadoRetorna201(t *testing.T) {
	f := newFixture()
	f.cte.rec = authorizedRecord()

	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleEmitter, map[string]any{
		"branch_id":      "branch-1",
		"identification": map[string]any{"series": 1, "cfop": "5353", "modal": "01"},
		"sender":         map[string]any{"tax_id": "33000167000101", "legal_name": "Remetente"},
		"recipient":      map[string]any{"tax_id": "12345678909", "legal_name": "Destinatário"},
		"values":         map[string]any{"service_value": "1500.00", "amount_to_collect": "1500.00"},
		"tax":            map[string]any{"cst": "00", "base": "1500", "rate": "12", "value": "180"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, validKey, body["access_key"])
	assert.Equal(t, "AUTHORIZED", body["status"])

	assert.Equal(t, "branch-1", f.cte.branchID)
	assert.Equal(t, "33000167000101", f.cte.issued.Sender.TaxID)
	assert.Equal(t, "5353", f.cte.issued.Identification.CFOP)
	assert.Equal(t, "180", f.cte.issued.Tax.Value.String())
	assert.Empty(t, f.cte.issued.Issuer.TaxID, "emitente omitido fica para a filial")
}

func TestIssue_RejeitadoRetorna200(t *testing.T) {
	f := newFixture()
	rec := authorizedRecord()
	rec.Status, rec.StatusCode, rec.Protocol = string(cte.StatusRejected), 539, ""
	f.cte.rec = rec

	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleAdmin, map[string]any{"branch_id": "branch-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(539), decode(t, resp)["status_code"])
}

func TestIssue_SemFilial(t *testing.T) {
	f := newFixture()
	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleEmitter, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "branch_id", decode(t, resp)["field"])
}

func TestIssue_ErroDeValidacaoTrazCampo(t *testing.T) {
	f := newFixture()
	f.cte.err = domain.NewValidationError("rem.CNPJ", "dígito verificador inválido")

	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleEmitter, map[string]any{"branch_id": "branch-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "rem.CNPJ", body["field"])
}

func TestIssue_SefazIndisponivelDevolveChave(t *testing.T) {
	f := newFixture()
	rec := authorizedRecord()
	rec.Status = string(cte.StatusBuilt)
	f.cte.rec = rec
	f.cte.err = &domain.GatewayError{Op: "recepção", Transient: true, Err: errors.New("timeout")}

	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleEmitter, map[string]any{"branch_id": "branch-1"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, validKey, resp.Header.Get("X-CTe-Access-Key"))
	assert.Equal(t, "SEFAZ_UNAVAILABLE", decode(t, resp)["code"])
}

func TestIssue_PerfilFiscalNaoEmite(t *testing.T) {
	f := newFixture()
	resp := f.do(t, http.MethodPost, "/api/ctes", pkgjwt.RoleFiscal, map[string]any{"branch_id": "branch-1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	t.Run("sucesso", func(t *testing.T) {
		f := newFixture()
		rec := authorizedRecord()
		rec.Status, rec.CancelProtocol = string(cte.StatusCancelled), "135240000099999"
		f.cte.rec = rec

		resp := f.do(t, http.MethodPost, "/api/ctes/"+validKey+"/cancel", pkgjwt.RoleEmitter,
			map[string]string{"reason": "Erro na emissão do documento fiscal"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "CANCELLED", decode(t, resp)["status"])
		assert.Equal(t, "Erro na emissão do documento fiscal", f.cte.reason)
	})

	t.Run("estado inválido", func(t *testing.T) {
		f := newFixture()
		f.cte.err = fmt.Errorf("%w: REJECTED -> CANCELLED", domain.ErrInvalidTransition)
		resp := f.do(t, http.MethodPost, "/api/ctes/"+validKey+"/cancel", pkgjwt.RoleEmitter, map[string]string{"reason": "x"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "INVALID_TRANSITION", decode(t, resp)["code"])
	})

	t.Run("recusado pela SEFAZ", func(t *testing.T) {
		f := newFixture()
		f.cte.err = fmt.Errorf("%w: cStat 220", emission.ErrEventRefused)
		resp := f.do(t, http.MethodPost, "/api/ctes/"+validKey+"/cancel", pkgjwt.RoleEmitter, map[string]string{"reason": "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "EVENT_REFUSED", decode(t, resp)["code"])
	})

	t.Run("não encontrado", func(t *testing.T) {
		f := newFixture()
		f.cte.err = fmt.Errorf("%w: CT-e", domain.ErrNotFound)
		resp := f.do(t, http.MethodPost, "/api/ctes/"+validKey+"/cancel", pkgjwt.RoleEmitter, map[string]string{"reason": "x"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStatus_IncluiConsultaSefaz(t *testing.T) {
	f := newFixture()
	f.cte.rec = authorizedRecord()
	f.cte.remote = &sefaz.StatusResult{AccessKey: validKey, StatusCode: 100, Message: "Autorizado o uso do CT-e", Protocol: "135240000012345", Status: cte.StatusAuthorized}

	resp := f.do(t, http.MethodGet, "/api/ctes/"+validKey+"/status", pkgjwt.RoleFiscal, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, validKey, body["access_key"])
	remote, ok := body["sefaz"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(100), remote["status_code"])
	assert.Equal(t, "AUTHORIZED", remote["status"])
}

func TestDACTE(t *testing.T) {
	f := newFixture()
	f.cte.pdf = []byte("%PDF-1.3 teste")

	resp := f.do(t, http.MethodGet, "/api/ctes/"+validKey+"/dacte?download=true", pkgjwt.RoleFiscal, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="DACTE-`+validKey+`.pdf"`, resp.Header.Get("Content-Disposition"))
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "%PDF-1.3 teste", string(b))
}

func TestDACTE_NaoAutorizado(t *testing.T) {
	f := newFixture()
	f.cte.err = fmt.Errorf("%w: CT-e em estado REJECTED", domain.ErrInvalidInput)

	resp := f.do(t, http.MethodGet, "/api/ctes/"+validKey+"/dacte", pkgjwt.RoleFiscal, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── Documentos recebidos ─────────────────────────────────────────────────────

func TestDownload(t *testing.T) {
	t.Run("lote completo", func(t *testing.T) {
		f := newFixture()
		f.inb.batch = &inbound.ImportBatch{Total: 2, Imported: 2, LastNSU: "000000000000012"}
		resp := f.do(t, http.MethodPost, "/api/branches/branch-1/dfe/download", pkgjwt.RoleFiscal, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "000000000000012", decode(t, resp)["last_nsu"])
	})

	t.Run("lote parcial com erro", func(t *testing.T) {
		f := newFixture()
		f.inb.batch = &inbound.ImportBatch{Total: 1, Imported: 1}
		f.inb.err = &domain.GatewayError{Op: "distribuição", Transient: true, Err: errors.New("timeout")}
		resp := f.do(t, http.MethodPost, "/api/branches/branch-1/dfe/download", pkgjwt.RoleFiscal, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode(t, resp)
		assert.Contains(t, body, "batch")
		assert.Contains(t, body, "error")
	})

	t.Run("filial de outra empresa", func(t *testing.T) {
		f := newFixture()
		resp := f.do(t, http.MethodPost, "/api/branches/other-1/dfe/download", pkgjwt.RoleFiscal, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("filial inexistente", func(t *testing.T) {
		f := newFixture()
		resp := f.do(t, http.MethodPost, "/api/branches/nope/dfe/download", pkgjwt.RoleFiscal, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("travado por outra execução", func(t *testing.T) {
		f := newFixture()
		f.inb.err = fmt.Errorf("%w: download em andamento", domain.ErrConflict)
		resp := f.do(t, http.MethodPost, "/api/branches/branch-1/dfe/download", pkgjwt.RoleAdmin, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestImport(t *testing.T) {
	f := newFixture()
	f.inb.batch = &inbound.ImportBatch{Total: 2, Imported: 1, Duplicates: 1}

	resp := f.do(t, http.MethodPost, "/api/inbound/import", pkgjwt.RoleFiscal, map[string]any{
		"branch_id": "branch-1",
		"documents": []map[string]string{{"xml": "<cteProc/>"}, {"xml": "<nfeProc/>", "access_key": validKey}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode(t, resp)["duplicates"])
	require.Len(t, f.inb.raws, 2)
	assert.Equal(t, "<cteProc/>", string(f.inb.raws[0].Content))
	assert.Equal(t, validKey, f.inb.raws[1].AccessKey)
}

func TestImport_SemDocumentos(t *testing.T) {
	f := newFixture()
	resp := f.do(t, http.MethodPost, "/api/inbound/import", pkgjwt.RoleFiscal, map[string]any{"branch_id": "branch-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "documents", decode(t, resp)["field"])
}

func TestImport_PerfilEmissorBloqueado(t *testing.T) {
	f := newFixture()
	resp := f.do(t, http.MethodPost, "/api/inbound/import", pkgjwt.RoleEmitter, map[string]any{"branch_id": "branch-1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// ── Certificado ──────────────────────────────────────────────────────────────

func TestCertificate(t *testing.T) {
	t.Run("válido", func(t *testing.T) {
		f := newFixture()
		f.certs.info = &signer.CertificateInfo{Subject: "EMPRESA LTDA:11222333000181", TaxID: "11222333000181", IsValid: true, DaysToExpire: 200}
		resp := f.do(t, http.MethodGet, "/api/branches/branch-1/certificate", pkgjwt.RoleAdmin, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decode(t, resp)["is_valid"])
	})

	t.Run("CNPJ divergente", func(t *testing.T) {
		f := newFixture()
		f.certs.info = &signer.CertificateInfo{TaxID: "99888777000166", IsValid: true}
		resp := f.do(t, http.MethodGet, "/api/branches/branch-1/certificate", pkgjwt.RoleAdmin, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "CERTIFICATE_MISMATCH", decode(t, resp)["code"])
	})

	t.Run("apenas admin", func(t *testing.T) {
		f := newFixture()
		resp := f.do(t, http.MethodGet, "/api/branches/branch-1/certificate", pkgjwt.RoleFiscal, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
