package signer_test

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz/signer"
)

const unsignedCTe = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<CTe xmlns="http://www.portalfiscal.inf.br/cte"><infCte Id="CTe35241011222333000181570010000001231123456787" versao="4.00">` +
	`<ide><cUF>35</cUF><xObs>Carga &amp; descarga</xObs></ide></infCte></CTe>`

var (
	notBefore = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

// writePEM gera um certificado autoassinado e grava certificado + chave no mesmo arquivo.
func writePEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: "TRANSPORTES EXEMPLO LTDA:11222333000181", Country: []string{"BR"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))

	path := filepath.Join(t.TempDir(), "a1.pem")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func at(ts time.Time) signer.Option { return signer.WithClock(func() time.Time { return ts }) }

func canonical(t *testing.T, el *etree.Element, ns string) []byte {
	t.Helper()
	cp := el.Copy()
	if cp.SelectAttr("xmlns") == nil {
		cp.CreateAttr("xmlns", ns)
	}
	doc := etree.NewDocument()
	doc.SetRoot(cp)
	raw, err := doc.WriteToBytes()
	require.NoError(t, err)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	out, err := c14n.Canonicalize(dec)
	require.NoError(t, err)
	return out
}

func TestSignFile_AssinaturaVerificavel(t *testing.T) {
	path := writePEM(t)
	svc := signer.NewCertificateService()

	signed, err := svc.SignFile([]byte(unsignedCTe), path, "")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()
	children := root.ChildElements()
	require.Len(t, children, 2)
	sig := children[1]
	assert.Equal(t, "Signature", sig.Tag)
	assert.Equal(t, signer.NamespaceDS, sig.SelectAttrValue("xmlns", ""))

	ref := sig.FindElement("SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#CTe35241011222333000181570010000001231123456787", ref.SelectAttrValue("URI", ""))
	assert.Equal(t, signer.AlgRSASHA1, sig.FindElement("SignedInfo/SignatureMethod").SelectAttrValue("Algorithm", ""))

	// digest do infCte
	inf := root.FindElement("infCte")
	sum := sha1.Sum(canonical(t, inf, "http://www.portalfiscal.inf.br/cte"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), sig.FindElement("SignedInfo/Reference/DigestValue").Text())

	// SignatureValue confere com a chave pública do certificado
	km, err := svc.Load(path, "")
	require.NoError(t, err)
	siHash := sha1.Sum(canonical(t, sig.FindElement("SignedInfo"), signer.NamespaceDS))
	sigValue, err := base64.StdEncoding.DecodeString(sig.FindElement("SignatureValue").Text())
	require.NoError(t, err)
	pub := km.Certificate.PublicKey.(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA1, siHash[:], sigValue))

	certB64 := sig.FindElement("KeyInfo/X509Data/X509Certificate").Text()
	assert.Equal(t, base64.StdEncoding.EncodeToString(km.Certificate.Raw), certB64)
}

func TestSign_EventoCancelamento(t *testing.T) {
	path := writePEM(t)
	pair, err := tls.LoadX509KeyPair(path, path)
	require.NoError(t, err)

	event := `<eventoCTe xmlns="http://www.portalfiscal.inf.br/cte" versao="4.00"><infEvento Id="ID1101113524101122233300018157001000000123112345678701"><tpEvento>110111</tpEvento></infEvento></eventoCTe>`
	signed, err := signer.NewCertificateService().EventSigner(pair)([]byte(event))
	require.NoError(t, err)
	assert.Contains(t, string(signed), `URI="#ID1101113524101122233300018157001000000123112345678701"`)
}

func TestSign_Falhas(t *testing.T) {
	path := writePEM(t)
	svc := signer.NewCertificateService()

	cases := map[string]string{
		"vazio":       "",
		"mal formado": "<CTe><infCte",
		"sem Id":      `<CTe xmlns="http://www.portalfiscal.inf.br/cte"><infCte versao="4.00"/></CTe>`,
		"já assinado": `<CTe><infCte Id="CTe1"/><Signature/></CTe>`,
	}
	for name, x := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SignFile([]byte(x), path, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInfrastructure)
		})
	}
}

func TestSign_CertificadoSemChave(t *testing.T) {
	_, err := signer.NewCertificateService().Sign([]byte(unsignedCTe), tls.Certificate{})
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestLoad_Erros(t *testing.T) {
	svc := signer.NewCertificateService()

	_, err := svc.Load(filepath.Join(t.TempDir(), "inexistente.pfx"), "senha")
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	garbage := filepath.Join(t.TempDir(), "a1.pfx")
	require.NoError(t, os.WriteFile(garbage, []byte("não é pkcs12"), 0o600))
	_, err = svc.Load(garbage, "senha")
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	_, err = svc.Load("", "")
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestLoad_ReleaseDescartaChave(t *testing.T) {
	km, err := signer.NewCertificateService().Load(writePEM(t), "")
	require.NoError(t, err)
	require.NotNil(t, km.PrivateKey)
	assert.NotNil(t, km.TLS().PrivateKey)

	km.Release()
	assert.Nil(t, km.PrivateKey)
}

func TestValidate(t *testing.T) {
	path := writePEM(t)

	info, err := signer.NewCertificateService(at(time.Date(2024, 12, 22, 0, 0, 0, 0, time.UTC))).Validate(path, "")
	require.NoError(t, err)
	assert.True(t, info.IsValid)
	assert.Equal(t, 10, info.DaysToExpire)
	assert.Equal(t, "11222333000181", info.TaxID)
	assert.Equal(t, "1092", info.SerialNumber)
	assert.Equal(t, notAfter, info.ValidTo.UTC())
	assert.Contains(t, info.Subject, "TRANSPORTES EXEMPLO LTDA")

	expired, err := signer.NewCertificateService(at(notAfter.Add(48*time.Hour))).Validate(path, "")
	require.NoError(t, err)
	assert.False(t, expired.IsValid)
	assert.Negative(t, expired.DaysToExpire)
}
