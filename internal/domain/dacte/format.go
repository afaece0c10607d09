package dacte

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const keyLength = 44

// FormatAccessKey agrupa a chave em 11 blocos de 4 dígitos separados por espaço.
func FormatAccessKey(key string) (string, error) {
	if len(key) != keyLength {
		return "", fmt.Errorf("dacte: chave deve ter %d caracteres, recebidos %d", keyLength, len(key))
	}
	return strings.Join(splitEvery(key, 4), " "), nil
}

// CalculateCheckDigit dígito verificador módulo 11 (pesos 2..9 da direita para a esquerda).
// Mantido aqui para que o DACTE confira chaves vindas de fora sem depender do gerador.
func CalculateCheckDigit(first43 string) (int, error) {
	if len(first43) != keyLength-1 {
		return 0, fmt.Errorf("dacte: base da chave deve ter 43 dígitos, recebidos %d", len(first43))
	}
	sum, weight := 0, 2
	for i := len(first43) - 1; i >= 0; i-- {
		c := first43[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("dacte: caractere não numérico na posição %d", i+1)
		}
		sum += int(c-'0') * weight
		if weight++; weight > 9 {
			weight = 2
		}
	}
	if r := sum % 11; r > 1 {
		return 11 - r, nil
	}
	return 0, nil
}

// formatMoney "R$ 1.234,56".
func formatMoney(d decimal.Decimal) string {
	return "R$ " + formatNumber(d, 2)
}

// formatPercent "12,00%".
func formatPercent(d decimal.Decimal) string {
	return formatNumber(d, 2) + "%"
}

// formatWeight "1.234,500 kg".
func formatWeight(d decimal.Decimal) string {
	return formatNumber(d, 3) + " kg"
}

// formatNumber separador de milhar "." e decimal ",".
func formatNumber(d decimal.Decimal, places int32) string {
	s := d.Abs().StringFixed(places)
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupThousands(intPart)
	if places > 0 {
		out += "," + frac
	}
	if d.Round(places).IsNegative() {
		out = "-" + out
	}
	return out
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// splitEvery divide s em pedaços de no máximo n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
