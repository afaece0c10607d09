package sefaz

import "crypto/tls"

// Signer assina o XML de um CT-e e devolve o documento com ds:Signature
// anexado como último filho da raiz <CTe>.
type Signer interface {
	// Sign recebe o XML sem assinatura e o certificado com chave privada (A1).
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
