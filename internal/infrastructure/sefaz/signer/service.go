// Serviço de certificado digital: carga do A1, assinatura XMLDSig enveloped do CT-e
// e dos eventos, e verificação de validade.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/pkg/logger"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// CertificateService carrega, valida e assina com o certificado A1. Não guarda chaves
// entre chamadas.
type CertificateService struct {
	now func() time.Time
	log *logger.Logger
}

// Option configura o serviço.
type Option func(*CertificateService)

// WithClock substitui o relógio (testes de expiração).
func WithClock(now func() time.Time) Option { return func(s *CertificateService) { s.now = now } }

// WithLogger injeta o logger.
func WithLogger(l *logger.Logger) Option { return func(s *CertificateService) { s.log = l } }

// NewCertificateService cria o serviço.
func NewCertificateService(opts ...Option) *CertificateService {
	s := &CertificateService{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log).Component("signer")
	return s
}

var _ sefaz.Signer = (*CertificateService)(nil)

// Load lê .pfx/.p12 (com senha) ou PEM combinado (certificado + chave).
func (s *CertificateService) Load(path, password string) (*KeyMaterial, error) {
	km, err := loadFile(path, password)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "signer: carregar certificado", Err: err}
	}
	return km, nil
}

// Validate devolve emissor, titular e período de validade do certificado.
func (s *CertificateService) Validate(path, password string) (*CertificateInfo, error) {
	km, err := s.Load(path, password)
	if err != nil {
		return nil, err
	}
	defer km.Release()
	info := describe(km.Certificate, s.now())
	if !info.IsValid {
		s.log.Warn().Str("titular", info.Subject).Time("validade", info.ValidTo).Msg("certificado fora do período de validade")
	}
	return info, nil
}

// SignFile carrega o certificado do disco, assina e descarta a chave ao final.
func (s *CertificateService) SignFile(xmlBytes []byte, path, password string) ([]byte, error) {
	km, err := s.Load(path, password)
	if err != nil {
		return nil, err
	}
	defer km.Release()
	return s.sign(xmlBytes, km)
}

// Sign implementa pkg/sefaz.Signer com um certificado já carregado.
func (s *CertificateService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(cert.Certificate) == 0 {
		return nil, &domain.InfrastructureError{Op: "signer: assinar", Err: errors.New("certificado vazio")}
	}
	km, err := material(cert.PrivateKey, cert.Leaf, cert.Certificate)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "signer: assinar", Err: err}
	}
	if km.Certificate == nil {
		leaf, err := parseLeaf(cert.Certificate[0])
		if err != nil {
			return nil, &domain.InfrastructureError{Op: "signer: assinar", Err: err}
		}
		km.Certificate = leaf
	}
	defer km.Release()
	return s.sign(xmlBytes, km)
}

// EventSigner adapta o serviço para assinar eventos (eventoCTe) com o certificado da filial.
func (s *CertificateService) EventSigner(cert tls.Certificate) func([]byte) ([]byte, error) {
	return func(xmlBytes []byte) ([]byte, error) { return s.Sign(xmlBytes, cert) }
}

func (s *CertificateService) sign(xmlBytes []byte, km *KeyMaterial) ([]byte, error) {
	out, err := signEnveloped(xmlBytes, km)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "signer: assinar", Err: err}
	}
	return out, nil
}

// signEnveloped assina o primeiro elemento com Id (infCte, infEvento...) e anexa
// <Signature> como último filho da raiz.
func signEnveloped(xmlBytes []byte, km *KeyMaterial) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, errors.New("XML vazio")
	}
	if km.PrivateKey == nil {
		return nil, errors.New("chave privada indisponível")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("documento sem raiz")
	}
	if root.FindElement("Signature") != nil {
		return nil, errors.New("documento já assinado")
	}
	target := signTarget(root)
	if target == nil {
		return nil, fmt.Errorf("nenhum elemento assinável (%s) com atributo Id", strings.Join(signableElements, ", "))
	}
	id := target.SelectAttrValue("Id", "")

	// 1) Digest do elemento referenciado (C14N, namespace herdado explícito)
	canonical, err := canonicalElement(target, root.SelectAttrValue("xmlns", ""))
	if err != nil {
		return nil, fmt.Errorf("canonicalizar %s: %w", target.Tag, err)
	}
	digest := sha1.Sum(canonical)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo
	signedInfo := buildSignedInfo("#"+id, digestB64)
	canonicalSI, err := canonicalize([]byte(signedInfo))
	if err != nil {
		return nil, fmt.Errorf("canonicalizar SignedInfo: %w", err)
	}
	siHash := sha1.Sum(canonicalSI)
	sigValue, err := rsa.SignPKCS1v15(rand.Reader, km.PrivateKey, crypto.SHA1, siHash[:])
	if err != nil {
		return nil, fmt.Errorf("assinar SignedInfo: %w", err)
	}

	// 3) Signature completa
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(buildSignature(signedInfo, base64.StdEncoding.EncodeToString(sigValue), base64.StdEncoding.EncodeToString(km.Certificate.Raw))); err != nil {
		return nil, fmt.Errorf("parsear Signature: %w", err)
	}
	root.AddChild(sigDoc.Root())

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("serializar XML assinado: %w", err)
	}
	return out.Bytes(), nil
}

func signTarget(root *etree.Element) *etree.Element {
	for _, tag := range signableElements {
		if root.Tag == tag && root.SelectAttr("Id") != nil {
			return root
		}
		for _, el := range root.FindElements(".//" + tag) {
			if el.SelectAttr("Id") != nil {
				return el
			}
		}
	}
	return nil
}

// canonicalElement serializa o subtree isolado declarando o namespace padrão do pai,
// como o C14N inclusivo faria no documento completo.
func canonicalElement(el *etree.Element, inheritedNS string) ([]byte, error) {
	cp := el.Copy()
	if inheritedNS != "" && cp.SelectAttr("xmlns") == nil {
		cp.CreateAttr("xmlns", inheritedNS)
	}
	sub := etree.NewDocument()
	sub.SetRoot(cp)
	raw, err := sub.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalize(raw)
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(uri, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="` + uri + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"></Transform>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"></Transform></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference></SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfo, sigValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	// SignedInfo herda o namespace de Signature
	sb.WriteString(strings.Replace(signedInfo, ` xmlns="`+NamespaceDS+`"`, "", 1))
	sb.WriteString(`<SignatureValue>` + sigValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}
