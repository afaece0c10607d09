package cte

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

var hundred = decimal.NewFromInt(100)

// Validate confere a entrada e devolve apenas o PRIMEIRO problema encontrado.
// A ordem é fixa e faz parte do contrato:
//
//  1. emit.CNPJ presente e válido (14 dígitos + DV)
//  2. emit.IE presente
//  3. rem: CPF/CNPJ presente e bem formado
//  4. dest: CPF/CNPJ presente e bem formado
//  5. vTPrest > 0
//  6. pICMS entre 0 e 100
//  7. infCarga.proPred presente
//  8. infCarga.vCarga >= 0
//  9. UF do emitente, do remetente e do destinatário conhecidas
//
// 10. UFIni e UFFim conhecidas, quando informadas
// 11. toma3: 0 (remetente) ou 3 (destinatário), as únicas partes modeladas
//
// As UFs são comparadas já normalizadas (ver DocumentInput.Normalized).
// O erro é *domain.ValidationError (errors.Is(err, domain.ErrValidation)).
func Validate(in DocumentInput) error {
	if strings.TrimSpace(in.Issuer.TaxID) == "" {
		return domain.NewValidationError("emit.CNPJ", "CNPJ do emitente ausente")
	}
	if err := sefaz.ValidateCNPJ(in.Issuer.TaxID); err != nil {
		return domain.NewValidationError("emit.CNPJ", err.Error())
	}
	if strings.TrimSpace(in.Issuer.IE) == "" {
		return domain.NewValidationError("emit.IE", "inscrição estadual do emitente ausente")
	}
	if err := sefaz.ValidateTaxID(in.Sender.TaxID); err != nil {
		return domain.NewValidationError("rem.CNPJCPF", err.Error())
	}
	if err := sefaz.ValidateTaxID(in.Recipient.TaxID); err != nil {
		return domain.NewValidationError("dest.CNPJCPF", err.Error())
	}
	if !in.Values.ServiceValue.IsPositive() {
		return domain.NewValidationError("vPrest.vTPrest", "valor da prestação deve ser maior que zero")
	}
	if in.Tax.Rate.IsNegative() || in.Tax.Rate.GreaterThan(hundred) {
		return domain.NewValidationError("imp.ICMS.pICMS", "alíquota deve estar entre 0 e 100")
	}
	if strings.TrimSpace(in.Cargo.PredominantProduct) == "" {
		return domain.NewValidationError("infCarga.proPred", "produto predominante ausente")
	}
	if in.Cargo.Value.IsNegative() {
		return domain.NewValidationError("infCarga.vCarga", "valor da carga não pode ser negativo")
	}
	for _, p := range []struct {
		field string
		uf    string
	}{
		{"enderEmit.UF", in.Issuer.Address.UF},
		{"enderReme.UF", in.Sender.Address.UF},
		{"enderDest.UF", in.Recipient.Address.UF},
	} {
		if !sefaz.IsKnownUF(p.uf) {
			return domain.NewValidationError(p.field, "UF desconhecida: "+p.uf)
		}
	}
	for _, p := range []struct {
		field string
		uf    string
	}{
		{"UFIni", in.Identification.OriginUF},
		{"UFFim", in.Identification.DestinationUF},
	} {
		if strings.TrimSpace(p.uf) != "" && !sefaz.IsKnownUF(p.uf) {
			return domain.NewValidationError(p.field, "UF desconhecida: "+p.uf)
		}
	}
	if in.Payer != sefaz.PayerSender && in.Payer != sefaz.PayerRecipient {
		return domain.NewValidationError("toma3", fmt.Sprintf("tomador %d não suportado (0 remetente, 3 destinatário)", in.Payer))
	}
	return nil
}
