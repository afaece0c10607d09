package sefaz

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Mensagens (cteDadosMsg) enviadas aos webservices. O envelope SOAP é responsabilidade do Transport.

// ============================================================
// consSitCTe - consulta situação
// ============================================================

type consSitCTe struct {
	XMLName xml.Name `xml:"http://www.portalfiscal.inf.br/cte consSitCTe"`
	Versao  string   `xml:"versao,attr"`
	TpAmb   int      `xml:"tpAmb"`
	XServ   string   `xml:"xServ"`
	ChCTe   string   `xml:"chCTe"`
}

func buildStatusQuery(env int, key string) ([]byte, error) {
	return xml.Marshal(consSitCTe{Versao: sefaz.LayoutVersion, TpAmb: env, XServ: "CONSULTAR", ChCTe: key})
}

// ============================================================
// eventoCTe - cancelamento (110111)
// ============================================================

type eventoCTe struct {
	XMLName   xml.Name  `xml:"http://www.portalfiscal.inf.br/cte eventoCTe"`
	Versao    string    `xml:"versao,attr"`
	InfEvento infEvento `xml:"infEvento"`
}

type infEvento struct {
	ID         string    `xml:"Id,attr"`
	COrgao     string    `xml:"cOrgao"`
	TpAmb      int       `xml:"tpAmb"`
	CNPJ       string    `xml:"CNPJ"`
	ChCTe      string    `xml:"chCTe"`
	DhEvento   string    `xml:"dhEvento"`
	TpEvento   string    `xml:"tpEvento"`
	NSeqEvento int       `xml:"nSeqEvento"`
	DetEvento  detEvento `xml:"detEvento"`
}

type detEvento struct {
	VersaoEvento string    `xml:"versaoEvento,attr"`
	EvCancCTe    evCancCTe `xml:"evCancCTe"`
}

type evCancCTe struct {
	DescEvento string `xml:"descEvento"`
	NProt      string `xml:"nProt"`
	XJust      string `xml:"xJust"`
}

func buildCancelEvent(env int, key cte.AccessKey, protocol, reason string, at time.Time) ([]byte, error) {
	ev := eventoCTe{
		Versao: sefaz.LayoutVersion,
		InfEvento: infEvento{
			ID:         fmt.Sprintf("ID%s%s01", sefaz.EventCancel, key),
			COrgao:     key.Region(),
			TpAmb:      env,
			CNPJ:       key.IssuerTaxID(),
			ChCTe:      key.String(),
			DhEvento:   at.Format("2006-01-02T15:04:05-07:00"),
			TpEvento:   sefaz.EventCancel,
			NSeqEvento: 1,
			DetEvento: detEvento{
				VersaoEvento: sefaz.LayoutVersion,
				EvCancCTe:    evCancCTe{DescEvento: "Cancelamento", NProt: protocol, XJust: reason},
			},
		},
	}
	return xml.Marshal(ev)
}

// ============================================================
// distDFeInt - distribuição por NSU
// ============================================================

type distDFeInt struct {
	XMLName  xml.Name `xml:"distDFeInt"`
	Xmlns    string   `xml:"xmlns,attr"`
	Versao   string   `xml:"versao,attr"`
	TpAmb    int      `xml:"tpAmb"`
	CUFAutor string   `xml:"cUFAutor"`
	CNPJ     string   `xml:"CNPJ,omitempty"`
	CPF      string   `xml:"CPF,omitempty"`
	DistNSU  distNSU  `xml:"distNSU"`
}

type distNSU struct {
	UltNSU string `xml:"ultNSU"`
}

var distNamespace = map[Kind]struct{ ns, versao string }{
	KindCTe:  {"http://www.portalfiscal.inf.br/cte", "1.00"},
	KindNFe:  {"http://www.portalfiscal.inf.br/nfe", "1.01"},
	KindMDFe: {"http://www.portalfiscal.inf.br/mdfe", "3.00"},
}

func buildDistributionQuery(req DistributionRequest) ([]byte, error) {
	ns, ok := distNamespace[req.Kind]
	if !ok {
		return nil, fmt.Errorf("sefaz: tipo de distribuição desconhecido: %q", req.Kind)
	}
	region, err := cte.ResolveRegion(req.UF)
	if err != nil {
		return nil, err
	}
	msg := distDFeInt{
		Xmlns:    ns.ns,
		Versao:   ns.versao,
		TpAmb:    req.Environment,
		CUFAutor: region,
		DistNSU:  distNSU{UltNSU: PadNSU(req.LastNSU)},
	}
	if sefaz.IsCPF(req.TaxID) {
		msg.CPF = req.TaxID
	} else {
		msg.CNPJ = req.TaxID
	}
	return xml.Marshal(msg)
}

// PadNSU completa o NSU com zeros à esquerda até 15 dígitos.
func PadNSU(nsu string) string {
	if nsu == "" {
		nsu = "0"
	}
	for len(nsu) < 15 {
		nsu = "0" + nsu
	}
	return nsu
}
