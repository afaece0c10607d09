package sefaz

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/cte-api/internal/domain"
)

// ── Constantes SOAP 1.2 ───────────────────────────────────────────────────────

const (
	soap12NS = "http://www.w3.org/2003/05/soap-envelope"

	wsdlBase        = "http://www.portalfiscal.inf.br/cte/wsdl/"
	wsdlNFeDistDFe  = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeDistribuicaoDFe"
	wsdlMDFeDistDFe = "http://www.portalfiscal.inf.br/mdfe/wsdl/MDFeDistribuicaoDFe"

	maxResponseSize = 8 << 20
)

var wsdlByOperation = map[Operation]string{
	OpSubmit:       wsdlBase + "CTeRecepcaoSincV4",
	OpQuery:        wsdlBase + "CTeConsultaV4",
	OpEvent:        wsdlBase + "CTeRecepcaoEventoV4",
	OpDistribution: wsdlBase + "CTeDistribuicaoDFe",
}

// ── Estruturas SOAP ───────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap12:Envelope"`
	Xmlns   string   `xml:"xmlns:soap12,attr"`
	Body    soapBody `xml:"soap12:Body"`
}

type soapBody struct {
	Content any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soap12:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// dadosMsg <cteDadosMsg> com o XML da mensagem embutido sem escape.
type dadosMsg struct {
	XMLName xml.Name
	Xmlns   string `xml:"xmlns,attr,omitempty"`
	Inner   string `xml:",innerxml"`
}

// distInteresse wrapper da operação de distribuição.
type distInteresse struct {
	XMLName xml.Name
	Xmlns   string   `xml:"xmlns,attr"`
	Dados   dadosMsg `xml:"-"`
}

func (d distInteresse) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start = xml.StartElement{Name: d.XMLName, Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: d.Xmlns}}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(d.Dados); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// ── Implementação ─────────────────────────────────────────────────────────────

// SOAPTransport implementa Transport com SOAP 1.2 sobre mTLS usando o certificado A1 da filial.
type SOAPTransport struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewSOAPTransport monta o cliente mTLS. A SEFAZ exige TLS 1.2 e renegociação.
func NewSOAPTransport(cert tls.Certificate, timeout time.Duration) *SOAPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	tlsConfig := &tls.Config{
		Certificates:  []tls.Certificate{cert},
		RootCAs:       pool,
		Renegotiation: tls.RenegotiateFreelyAsClient,
		MinVersion:    tls.VersionTLS12,
	}
	return NewSOAPTransportWithClient(&http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			Proxy:           http.ProxyFromEnvironment,
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	})
}

// NewSOAPTransportWithClient usa um http.Client pronto (testes com httptest).
func NewSOAPTransportWithClient(c *http.Client) *SOAPTransport {
	return &SOAPTransport{httpClient: c, now: time.Now}
}

var _ Transport = (*SOAPTransport)(nil)

// Call envia a mensagem e interpreta o retorno.
func (t *SOAPTransport) Call(ctx context.Context, req Request) (*Response, error) {
	op := string(req.Operation)
	envelope, action, err := buildEnvelope(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(envelope))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("criar request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Transient: isTransientNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Transient: true, Err: fmt.Errorf("ler resposta: %w", err)}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.GatewayError{Op: op, Transient: true, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(raw, 300))}
	}

	out, err := parseResponse(raw, req.Operation)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err}
	}
	if out.ReceivedAt.IsZero() {
		out.ReceivedAt = t.now()
	}
	return out, nil
}

func buildEnvelope(req Request) ([]byte, string, error) {
	action, ok := wsdlByOperation[req.Operation]
	if !ok {
		return nil, "", fmt.Errorf("operação desconhecida %q", req.Operation)
	}

	var content any
	switch req.Operation {
	case OpSubmit:
		// recepção síncrona: CT-e compactado (gzip + base64)
		zipped, err := EncodeDocZip(req.Payload)
		if err != nil {
			return nil, "", fmt.Errorf("compactar CT-e: %w", err)
		}
		content = dadosMsg{XMLName: xml.Name{Local: "cteDadosMsg"}, Xmlns: action, Inner: zipped}
	case OpDistribution:
		ns, wrapper, dados := action, "cteDistDFeInteresse", "cteDadosMsg"
		switch req.Kind {
		case KindNFe:
			ns, wrapper, dados = wsdlNFeDistDFe, "nfeDistDFeInteresse", "nfeDadosMsg"
		case KindMDFe:
			ns, wrapper, dados = wsdlMDFeDistDFe, "mdfeDistDFeInteresse", "mdfeDadosMsg"
		}
		action = ns + "/" + wrapper
		content = distInteresse{
			XMLName: xml.Name{Local: wrapper},
			Xmlns:   ns,
			Dados:   dadosMsg{XMLName: xml.Name{Local: dados}, Inner: string(req.Payload)},
		}
	default:
		content = dadosMsg{XMLName: xml.Name{Local: "cteDadosMsg"}, Xmlns: action, Inner: string(req.Payload)}
	}

	body, err := xml.Marshal(soapEnvelope{Xmlns: soap12NS, Body: soapBody{Content: content}})
	if err != nil {
		return nil, "", fmt.Errorf("serializar envelope: %w", err)
	}
	return append([]byte(xml.Header), body...), action, nil
}

// parseResponse extrai cStat/xMotivo/nProt/dhRecbto; para distribuição também ultNSU, maxNSU e docZip.
func parseResponse(raw []byte, op Operation) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("resposta SOAP ilegível: %w", err)
	}
	if fault := doc.FindElement("//Fault"); fault != nil {
		reason := "SOAP Fault"
		if txt := fault.FindElement(".//Text"); txt != nil {
			reason = txt.Text()
		}
		return nil, fmt.Errorf("SOAP Fault: %s", reason)
	}

	// protCTe/infProt tem precedência sobre o cStat do lote
	scope := doc.FindElement("//infProt")
	if scope == nil {
		scope = doc.FindElement("//infEvento")
		if scope == nil || scope.FindElement("cStat") == nil {
			scope = &doc.Element
		}
	}
	cStatEl := scope.FindElement(".//cStat")
	if cStatEl == nil {
		return nil, errors.New("resposta sem cStat")
	}
	code, err := strconv.Atoi(cStatEl.Text())
	if err != nil {
		return nil, fmt.Errorf("cStat inválido %q", cStatEl.Text())
	}

	out := &Response{StatusCode: code, Raw: raw}
	out.Message = text(scope, ".//xMotivo")
	out.Protocol = text(scope, ".//nProt")
	for _, path := range []string{".//dhRecbto", ".//dhRegEvento", ".//dhResp"} {
		if ts := text(scope, path); ts != "" {
			if at, err := time.Parse(time.RFC3339, ts); err == nil {
				out.ReceivedAt = at
				break
			}
		}
	}

	if op == OpDistribution {
		out.LastNSU = text(&doc.Element, "//ultNSU")
		out.MaxNSU = text(&doc.Element, "//maxNSU")
		for _, z := range doc.FindElements("//docZip") {
			content, err := DecodeDocZip(z.Text())
			out.Documents = append(out.Documents, DistributedDocument{
				NSU:     z.SelectAttrValue("NSU", ""),
				Schema:  z.SelectAttrValue("schema", ""),
				Content: content,
				Err:     err,
			})
		}
	}
	return out, nil
}

func text(e *etree.Element, path string) string {
	if el := e.FindElement(path); el != nil {
		return el.Text()
	}
	return ""
}

// isTransientNetErr timeout e falhas de conexão são transitórios; erros de certificado não.
func isTransientNetErr(err error) bool {
	var certErr *tls.CertificateVerificationError
	var unknownCA x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownCA) || errors.As(err, &hostErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
