// Carga e inspeção do certificado A1 (.pfx/.p12 ou PEM) da filial.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// KeyMaterial certificado folha e chave privada RSA. Release descarta a referência à chave.
type KeyMaterial struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	chain       [][]byte
}

// TLS devolve o par para o cliente mTLS.
func (k *KeyMaterial) TLS() tls.Certificate {
	return tls.Certificate{Certificate: k.chain, PrivateKey: k.PrivateKey, Leaf: k.Certificate}
}

// Release zera a referência à chave privada.
func (k *KeyMaterial) Release() {
	if k == nil {
		return
	}
	k.PrivateKey = nil
}

// CertificateInfo resumo do certificado para a API de validação.
type CertificateInfo struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	TaxID        string    `json:"tax_id,omitempty"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	IsValid      bool      `json:"is_valid"`
	DaysToExpire int       `json:"days_to_expire"`
}

// ICP-Brasil: o CN do e-CNPJ termina em ":<CNPJ>".
var cnInTaxID = regexp.MustCompile(`:(\d{14}|\d{11})$`)

// loadFile decide o formato pela extensão: .pem/.crt/.key são PEM, o resto é PKCS#12.
func loadFile(path, password string) (*KeyMaterial, error) {
	if path == "" {
		return nil, errors.New("caminho do certificado não informado")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ler certificado: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pem", ".crt", ".key":
		return fromPEM(data)
	default:
		return fromP12(data, password)
	}
}

func fromP12(data []byte, password string) (*KeyMaterial, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err == nil {
		return material(priv, cert, [][]byte{cert.Raw})
	}
	// .pfx da ICP-Brasil costuma trazer a cadeia inteira; Decode só aceita dois safe bags.
	blocks, pemErr := pkcs12.ToPEM(data, password)
	if pemErr != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	var buf []byte
	for _, b := range blocks {
		buf = append(buf, pem.EncodeToMemory(b)...)
	}
	return fromPEM(buf)
}

func fromPEM(data []byte) (*KeyMaterial, error) {
	pair, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("carregar PEM: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = parseLeaf(pair.Certificate[0]); err != nil {
			return nil, err
		}
	}
	return material(pair.PrivateKey, leaf, pair.Certificate)
}

func material(priv any, cert *x509.Certificate, chain [][]byte) (*KeyMaterial, error) {
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("o certificado deve conter chave privada RSA")
	}
	return &KeyMaterial{Certificate: cert, PrivateKey: key, chain: chain}, nil
}

func describe(cert *x509.Certificate, now time.Time) *CertificateInfo {
	info := &CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.Text(16),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
		IsValid:      !now.Before(cert.NotBefore) && now.Before(cert.NotAfter),
		DaysToExpire: int(cert.NotAfter.Sub(now).Hours() / 24),
	}
	if m := cnInTaxID.FindStringSubmatch(cert.Subject.CommonName); m != nil {
		info.TaxID = m[1]
	}
	return info
}

func parseLeaf(der []byte) (*x509.Certificate, error) {
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsear certificado: %w", err)
	}
	return leaf, nil
}
