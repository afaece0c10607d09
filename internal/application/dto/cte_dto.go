package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
)

// ── Requisições ──────────────────────────────────────────────────────────────

// IssueCTeRequest corpo de POST /api/ctes.
type IssueCTeRequest struct {
	BranchID        string              `json:"branch_id"`
	Identification  IdentificationDTO   `json:"identification"`
	Issuer          *PartyDTO           `json:"issuer,omitempty"` // omitido = dados da filial
	Sender          PartyDTO            `json:"sender"`
	Recipient       PartyDTO            `json:"recipient"`
	Payer           int                 `json:"payer"` // 0 remetente, 3 destinatário
	Values          ValuesDTO           `json:"values"`
	Tax             TaxDTO              `json:"tax"`
	Cargo           CargoDTO            `json:"cargo"`
	LinkedDocuments []LinkedDocumentDTO `json:"linked_documents"`
	Insurance       *InsuranceDTO       `json:"insurance,omitempty"`
	AdditionalInfo  string              `json:"additional_info,omitempty"`
}

// IdentificationDTO bloco ide. Number=0 usa a numeração da filial.
type IdentificationDTO struct {
	Series            int       `json:"series"`
	Number            int       `json:"number,omitempty"`
	EmittedAt         time.Time `json:"emitted_at,omitempty"`
	CFOP              string    `json:"cfop"`
	NatureOfOperation string    `json:"nature_of_operation"`
	ServiceType       int       `json:"service_type"`
	CTeType           int       `json:"cte_type"`
	Modal             string    `json:"modal"`
	Environment       int       `json:"environment,omitempty"`
	EmissionType      int       `json:"emission_type"`
	IssuerCityCode    string    `json:"issuer_city_code"`
	IssuerCity        string    `json:"issuer_city"`
	OriginCityCode    string    `json:"origin_city_code"`
	OriginCity        string    `json:"origin_city"`
	OriginUF          string    `json:"origin_uf"`
	DestinationCode   string    `json:"destination_city_code"`
	DestinationCity   string    `json:"destination_city"`
	DestinationUF     string    `json:"destination_uf"`
}

// PartyDTO emitente, remetente ou destinatário.
type PartyDTO struct {
	TaxID     string     `json:"tax_id"`
	IE        string     `json:"ie,omitempty"`
	LegalName string     `json:"legal_name"`
	TradeName string     `json:"trade_name,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   AddressDTO `json:"address"`
}

// AddressDTO endereço.
type AddressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	CityCode   string `json:"city_code"`
	City       string `json:"city"`
	ZipCode    string `json:"zip_code,omitempty"`
	UF         string `json:"uf"`
}

// ValuesDTO valores da prestação.
type ValuesDTO struct {
	ServiceValue    decimal.Decimal  `json:"service_value"`
	AmountToCollect *decimal.Decimal `json:"amount_to_collect,omitempty"`
	Components      []ComponentDTO   `json:"components"`
}

// ComponentDTO componente do valor.
type ComponentDTO struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// TaxDTO ICMS; rate em percentual.
type TaxDTO struct {
	CST           string          `json:"cst"`
	Base          decimal.Decimal `json:"base"`
	Rate          decimal.Decimal `json:"rate"`
	Value         decimal.Decimal `json:"value"`
	BaseReduction decimal.Decimal `json:"base_reduction"`
}

// CargoDTO informações da carga.
type CargoDTO struct {
	Value              decimal.Decimal `json:"value"`
	PredominantProduct string          `json:"predominant_product"`
	OtherFeatures      string          `json:"other_features,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitCode           string          `json:"unit_code"`
	MeasureType        string          `json:"measure_type"`
	Weight             decimal.Decimal `json:"weight"`
	Volumes            int             `json:"volumes"`
}

// LinkedDocumentDTO NF-e transportada.
type LinkedDocumentDTO struct {
	AccessKey string          `json:"access_key"`
	PIN       string          `json:"pin,omitempty"`
	Number    string          `json:"number,omitempty"`
	Value     decimal.Decimal `json:"value"`
}

// InsuranceDTO seguro da carga.
type InsuranceDTO struct {
	ResponsibleParty int    `json:"responsible_party"`
	Insurer          string `json:"insurer,omitempty"`
	Policy           string `json:"policy,omitempty"`
	Endorsement      string `json:"endorsement,omitempty"`
}

// CancelCTeRequest corpo de POST /api/ctes/:key/cancel.
type CancelCTeRequest struct {
	Reason string `json:"reason"`
}

// ToInput converte a requisição no valor de domínio.
func (r IssueCTeRequest) ToInput() cte.DocumentInput {
	in := cte.DocumentInput{
		Identification: cte.Identification{
			Series:            r.Identification.Series,
			Number:            r.Identification.Number,
			EmittedAt:         r.Identification.EmittedAt,
			CFOP:              r.Identification.CFOP,
			NatureOfOperation: r.Identification.NatureOfOperation,
			ServiceType:       r.Identification.ServiceType,
			CTeType:           r.Identification.CTeType,
			Modal:             r.Identification.Modal,
			Environment:       r.Identification.Environment,
			EmissionType:      r.Identification.EmissionType,
			IssuerCityCode:    r.Identification.IssuerCityCode,
			IssuerCity:        r.Identification.IssuerCity,
			OriginCityCode:    r.Identification.OriginCityCode,
			OriginCity:        r.Identification.OriginCity,
			OriginUF:          r.Identification.OriginUF,
			DestinationCode:   r.Identification.DestinationCode,
			DestinationCity:   r.Identification.DestinationCity,
			DestinationUF:     r.Identification.DestinationUF,
		},
		Sender:    r.Sender.toParty(),
		Recipient: r.Recipient.toParty(),
		Payer:     r.Payer,
		Values: cte.Values{
			ServiceValue:    r.Values.ServiceValue,
			AmountToCollect: r.Values.AmountToCollect,
		},
		Tax: cte.Tax{
			CST:           r.Tax.CST,
			Base:          r.Tax.Base,
			Rate:          r.Tax.Rate,
			Value:         r.Tax.Value,
			BaseReduction: r.Tax.BaseReduction,
		},
		Cargo: cte.Cargo{
			Value:              r.Cargo.Value,
			PredominantProduct: r.Cargo.PredominantProduct,
			OtherFeatures:      r.Cargo.OtherFeatures,
			Quantity:           r.Cargo.Quantity,
			UnitCode:           r.Cargo.UnitCode,
			MeasureType:        r.Cargo.MeasureType,
			Weight:             r.Cargo.Weight,
			Volumes:            r.Cargo.Volumes,
		},
		AdditionalInfo: r.AdditionalInfo,
	}
	if r.Issuer != nil {
		in.Issuer = r.Issuer.toParty()
	}
	for _, c := range r.Values.Components {
		in.Values.Components = append(in.Values.Components, cte.Component{Name: c.Name, Value: c.Value})
	}
	for _, d := range r.LinkedDocuments {
		in.LinkedDocuments = append(in.LinkedDocuments, cte.LinkedDocument{
			AccessKey: d.AccessKey, PIN: d.PIN, Number: d.Number, Value: d.Value,
		})
	}
	if r.Insurance != nil {
		in.Insurance = &cte.Insurance{
			ResponsibleParty: r.Insurance.ResponsibleParty,
			Insurer:          r.Insurance.Insurer,
			Policy:           r.Insurance.Policy,
			Endorsement:      r.Insurance.Endorsement,
		}
	}
	return in
}

func (p PartyDTO) toParty() cte.Party {
	return cte.Party{
		TaxID:     p.TaxID,
		IE:        p.IE,
		LegalName: p.LegalName,
		TradeName: p.TradeName,
		Phone:     p.Phone,
		Address: cte.Address{
			Street:     p.Address.Street,
			Number:     p.Address.Number,
			Complement: p.Address.Complement,
			District:   p.Address.District,
			CityCode:   p.Address.CityCode,
			City:       p.Address.City,
			ZipCode:    p.Address.ZipCode,
			UF:         p.Address.UF,
		},
	}
}

// ── Respostas ────────────────────────────────────────────────────────────────

// CTeResponse situação gravada de um CT-e.
type CTeResponse struct {
	ID                   string     `json:"id"`
	BranchID             string     `json:"branch_id"`
	AccessKey            string     `json:"access_key"`
	Series               int        `json:"series"`
	Number               int        `json:"number"`
	Status               string     `json:"status"`
	StatusCode           int        `json:"status_code,omitempty"`
	StatusMessage        string     `json:"status_message,omitempty"`
	TransmissionProtocol string     `json:"transmission_protocol,omitempty"`
	TransmittedAt        *time.Time `json:"transmitted_at,omitempty"`
	Protocol             string     `json:"protocol,omitempty"`
	AuthorizedAt         *time.Time `json:"authorized_at,omitempty"`
	CancelProtocol       string     `json:"cancel_protocol,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// NewCTeResponse projeta o registro persistido.
func NewCTeResponse(r *entity.CTeRecord) CTeResponse {
	return CTeResponse{
		ID:                   r.ID,
		BranchID:             r.BranchID,
		AccessKey:            r.AccessKey,
		Series:               r.Series,
		Number:               r.Number,
		Status:               r.Status,
		StatusCode:           r.StatusCode,
		StatusMessage:        r.StatusMessage,
		TransmissionProtocol: r.TransmissionProtocol,
		TransmittedAt:        r.TransmittedAt,
		Protocol:             r.Protocol,
		AuthorizedAt:         r.AuthorizedAt,
		CancelProtocol:       r.CancelProtocol,
		CancelledAt:          r.CancelledAt,
		CreatedAt:            r.CreatedAt,
	}
}

// CTeStatusResponse situação local e na SEFAZ.
type CTeStatusResponse struct {
	CTeResponse
	Remote *RemoteStatusDTO `json:"sefaz,omitempty"`
}

// RemoteStatusDTO retorno da consulta de situação.
type RemoteStatusDTO struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Protocol   string `json:"protocol,omitempty"`
	Status     string `json:"status,omitempty"`
}
