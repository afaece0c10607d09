package sefaz

import (
	"fmt"
	"strings"
	"unicode"
)

// pesos do primeiro e segundo dígito verificador do CNPJ (Receita Federal), da esquerda para a direita.
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// OnlyDigits remove pontuação ("11.222.333/0001-81" -> "11222333000181").
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCNPJ exige 14 dígitos com os dois dígitos verificadores corretos.
// CNPJs com todos os dígitos iguais são rejeitados.
func ValidateCNPJ(cnpj string) error {
	d := OnlyDigits(cnpj)
	if d != cnpj {
		return fmt.Errorf("sefaz: CNPJ deve conter apenas dígitos")
	}
	if len(d) != 14 {
		return fmt.Errorf("sefaz: CNPJ deve ter 14 dígitos, recebidos %d", len(d))
	}
	if allEqual(d) {
		return fmt.Errorf("sefaz: CNPJ inválido")
	}
	dv1 := cnpjDigit(d[:12], cnpjWeights1[:])
	dv2 := cnpjDigit(d[:12]+string(rune('0'+dv1)), cnpjWeights2[:])
	if int(d[12]-'0') != dv1 || int(d[13]-'0') != dv2 {
		return fmt.Errorf("sefaz: dígitos verificadores do CNPJ inválidos: esperado %d%d, recebido %s", dv1, dv2, d[12:])
	}
	return nil
}

// ValidateTaxID aceita CPF (11 dígitos) ou CNPJ (14 dígitos com DV).
// Para o CPF apenas o formato é verificado.
func ValidateTaxID(taxID string) error {
	switch {
	case taxID == "":
		return fmt.Errorf("sefaz: documento ausente")
	case OnlyDigits(taxID) != taxID:
		return fmt.Errorf("sefaz: documento deve conter apenas dígitos")
	case len(taxID) == 11:
		return nil
	case len(taxID) == 14:
		return ValidateCNPJ(taxID)
	default:
		return fmt.Errorf("sefaz: documento deve ter 11 (CPF) ou 14 (CNPJ) dígitos, recebidos %d", len(taxID))
	}
}

// IsCPF indica se o documento tem o tamanho de um CPF.
func IsCPF(taxID string) bool { return len(taxID) == 11 }

// FormatTaxID aplica a máscara padrão: 000.000.000-00 ou 00.000.000/0000-00.
// Documentos de outro tamanho voltam sem alteração.
func FormatTaxID(taxID string) string {
	d := OnlyDigits(taxID)
	switch len(d) {
	case 11:
		return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
	case 14:
		return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
	default:
		return taxID
	}
}

func cnpjDigit(base string, weights []int) int {
	var sum int
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allEqual(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
