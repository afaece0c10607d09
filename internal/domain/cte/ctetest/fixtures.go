// Package ctetest reúne dados de exemplo compartilhados pelos testes dos pacotes de CT-e.
package ctetest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain/cte"
)

// CNPJs com dígitos verificadores válidos.
const (
	IssuerCNPJ    = "11222333000181"
	SenderCNPJ    = "33000167000101"
	RecipientCPF  = "12345678909"
	AuthorizedKey = "35241011222333000181570010000001231123456787"
)

// EmittedAt instante fixo de emissão (horário de Brasília).
var EmittedAt = time.Date(2024, 10, 15, 14, 30, 0, 0, time.FixedZone("BRT", -3*3600))

// ValidInput entrada completa e válida: SP → RJ, CST 00, uma NF-e vinculada.
func ValidInput() cte.DocumentInput {
	return cte.DocumentInput{
		Identification: cte.Identification{
			Series:            1,
			Number:            123,
			EmittedAt:         EmittedAt,
			CFOP:              "5353",
			NatureOfOperation: "PRESTACAO DE SERVICO DE TRANSPORTE",
			ServiceType:       0,
			CTeType:           0,
			Modal:             "01",
			Environment:       2,
			EmissionType:      1,
			IssuerCityCode:    "3550308",
			IssuerCity:        "São Paulo",
			OriginCityCode:    "3550308",
			OriginCity:        "São Paulo",
			OriginUF:          "SP",
			DestinationCode:   "3304557",
			DestinationCity:   "Rio de Janeiro",
			DestinationUF:     "RJ",
		},
		Issuer: cte.Party{
			TaxID:     IssuerCNPJ,
			IE:        "111222333444",
			LegalName: "TRANSPORTES EXEMPLO LTDA",
			TradeName: "EXEMPLO LOG",
			Address: cte.Address{
				Street: "Av. Paulista", Number: "1000", District: "Bela Vista",
				CityCode: "3550308", City: "São Paulo", ZipCode: "01310100", UF: "SP",
			},
		},
		Sender: cte.Party{
			TaxID:     SenderCNPJ,
			IE:        "ISENTO",
			LegalName: "INDUSTRIA REMETENTE S/A",
			Address: cte.Address{
				Street: "Rua das Indústrias", Number: "50", District: "Distrito Industrial",
				CityCode: "3550308", City: "São Paulo", ZipCode: "04001000", UF: "SP",
			},
		},
		Recipient: cte.Party{
			TaxID:     RecipientCPF,
			LegalName: "JOÃO DA SILVA",
			Address: cte.Address{
				Street: "Rua do Ouvidor", Number: "10", District: "Centro",
				CityCode: "3304557", City: "Rio de Janeiro", ZipCode: "20040030", UF: "RJ",
			},
		},
		Payer: 0,
		Values: cte.Values{
			ServiceValue:    decimal.RequireFromString("1500.00"),
			AmountToCollect: decimalPtr("1500.00"),
		},
		Tax: cte.Tax{
			CST:   "00",
			Base:  decimal.RequireFromString("1500.00"),
			Rate:  decimal.RequireFromString("12.00"),
			Value: decimal.RequireFromString("180.00"),
		},
		Cargo: cte.Cargo{
			Value:              decimal.RequireFromString("45000.00"),
			PredominantProduct: "PEÇAS AUTOMOTIVAS",
			Quantity:           decimal.RequireFromString("1234.5"),
			UnitCode:           "01",
			MeasureType:        "PESO BRUTO",
			Weight:             decimal.RequireFromString("1234.5"),
			Volumes:            12,
		},
		LinkedDocuments: []cte.LinkedDocument{
			{AccessKey: "35241033000167000101550010000045671000045670", Number: "4567", Value: decimal.RequireFromString("45000.00")},
		},
		AdditionalInfo: "Entrega agendada",
	}
}

func decimalPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}
