// Constantes da assinatura XMLDSig exigida pelo Manual de Orientação do Contribuinte (CT-e 4.00).

package signer

// Namespaces e algoritmos XMLDSig. O MOC exige RSA-SHA1 com C14N inclusivo.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Elementos assináveis: o Id da Reference aponta para um deles.
var signableElements = []string{"infCte", "infEvento", "infMDFe", "infNFe"}
