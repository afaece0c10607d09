// Package cte contém o núcleo de domínio do Conhecimento de Transporte Eletrônico
// (modelo 57): chave de acesso, dados de entrada, validação e ciclo de vida.
package cte

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Tamanhos fixos da chave de acesso.
const (
	AccessKeyLength = 44
	keyBaseLength   = 43
	codeSpace       = 100_000_000 // cCT: 8 dígitos
)

// AccessKey chave de acesso de 44 dígitos:
// cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nCT(9) tpEmis(1) cCT(8) cDV(1).
type AccessKey string

func (k AccessKey) String() string       { return string(k) }
func (k AccessKey) Region() string       { return k.slice(0, 2) }
func (k AccessKey) YearMonth() string    { return k.slice(2, 6) }
func (k AccessKey) IssuerTaxID() string  { return k.slice(6, 20) }
func (k AccessKey) Model() string        { return k.slice(20, 22) }
func (k AccessKey) Series() string       { return k.slice(22, 25) }
func (k AccessKey) Number() string       { return k.slice(25, 34) }
func (k AccessKey) EmissionType() string { return k.slice(34, 35) }
func (k AccessKey) Code() string         { return k.slice(35, 43) }
func (k AccessKey) CheckDigit() int {
	if len(k) != AccessKeyLength {
		return -1
	}
	return int(k[43] - '0')
}

func (k AccessKey) slice(from, to int) string {
	if len(k) != AccessKeyLength {
		return ""
	}
	return string(k[from:to])
}

// ComputeCheckDigit calcula o dígito verificador módulo 11 sobre os 43 primeiros dígitos.
// Pesos 2..9 aplicados da direita para a esquerda, reiniciando em 2; resto 0 ou 1 gera 0.
func ComputeCheckDigit(first43 string) (int, error) {
	if len(first43) != keyBaseLength || !isDigits(first43) {
		return 0, domain.NewValidationError("chave", fmt.Sprintf("base deve ter %d dígitos numéricos, recebido %q", keyBaseLength, first43))
	}
	sum, weight := 0, 2
	for i := len(first43) - 1; i >= 0; i-- {
		sum += int(first43[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r == 0 || r == 1 {
		return 0, nil
	}
	return 11 - r, nil
}

// ValidateAccessKey exige 44 dígitos e dígito verificador coerente.
func ValidateAccessKey(key string) error {
	if err := RequireKeyFormat(key); err != nil {
		return err
	}
	dv, _ := ComputeCheckDigit(key[:keyBaseLength])
	if int(key[keyBaseLength]-'0') != dv {
		return domain.NewValidationError("chave", fmt.Sprintf("dígito verificador inválido: esperado %d", dv))
	}
	return nil
}

// RequireKeyFormat exige exatamente 44 dígitos numéricos (sem conferir o DV).
func RequireKeyFormat(key string) error {
	if len(key) != AccessKeyLength || !isDigits(key) {
		return domain.NewValidationError("chave", fmt.Sprintf("deve ter %d dígitos numéricos", AccessKeyLength))
	}
	return nil
}

// ── Fonte de aleatoriedade ─────────────────────────────────────────────────

// RandomSource fornece o código numérico (cCT) de 8 dígitos, 0..99999999.
type RandomSource interface {
	Code() (int, error)
}

// CryptoRandom usa crypto/rand; é a fonte de produção.
type CryptoRandom struct{}

func (CryptoRandom) Code() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return 0, &domain.InfrastructureError{Op: "cCT: gerar aleatório", Err: err}
	}
	return int(n.Int64()), nil
}

// SeededRandom é determinística (PCG com semente fixa), para testes reprodutíveis.
type SeededRandom struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeededRandom cria a fonte a partir de uma semente.
func NewSeededRandom(seed uint64) *SeededRandom {
	return &SeededRandom{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededRandom) Code() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(codeSpace), nil
}

// ── Gerador ────────────────────────────────────────────────────────────────

// KeyParams campos que compõem a chave. UF aceita a sigla ("SP") ou o código IBGE ("35").
type KeyParams struct {
	UF           string
	EmittedAt    time.Time
	IssuerCNPJ   string
	Model        string
	Series       int
	Number       int
	EmissionType int
}

// GeneratedKey chave gerada mais o código numérico usado (cCT) e o DV.
type GeneratedKey struct {
	Key        AccessKey
	Code       string
	CheckDigit int
}

// AccessKeyGenerator monta chaves de acesso; a aleatoriedade vem da RandomSource injetada.
type AccessKeyGenerator struct {
	random RandomSource
}

// NewAccessKeyGenerator nil usa CryptoRandom.
func NewAccessKeyGenerator(random RandomSource) *AccessKeyGenerator {
	if random == nil {
		random = CryptoRandom{}
	}
	return &AccessKeyGenerator{random: random}
}

// maxCodeAttempts limita as novas sorteadas quando cCT coincide com nCT.
const maxCodeAttempts = 8

// Generate monta a chave de 44 dígitos. Erros de entrada voltam como *domain.ValidationError;
// uma base que não some 43 dígitos é *domain.ConstructionError.
func (g *AccessKeyGenerator) Generate(p KeyParams) (*GeneratedKey, error) {
	region, err := ResolveRegion(p.UF)
	if err != nil {
		return nil, err
	}
	if p.EmittedAt.IsZero() {
		return nil, domain.NewValidationError("dhEmi", "data de emissão ausente")
	}
	if len(p.IssuerCNPJ) != 14 || !isDigits(p.IssuerCNPJ) {
		return nil, domain.NewValidationError("emit.CNPJ", "deve ter 14 dígitos")
	}
	model := p.Model
	if model == "" {
		model = sefaz.ModelCTe
	}
	if p.Series < 0 || p.Series > 999 {
		return nil, domain.NewValidationError("serie", "deve estar entre 0 e 999")
	}
	if p.Number < 1 || p.Number > 999_999_999 {
		return nil, domain.NewValidationError("nCT", "deve estar entre 1 e 999999999")
	}
	if p.EmissionType < 0 || p.EmissionType > 9 {
		return nil, domain.NewValidationError("tpEmis", "deve ter 1 dígito")
	}

	code, err := g.drawCode(p.Number)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(AccessKeyLength)
	b.WriteString(region)
	b.WriteString(p.EmittedAt.Format("0601"))
	b.WriteString(p.IssuerCNPJ)
	b.WriteString(model)
	b.WriteString(fmt.Sprintf("%03d", p.Series))
	b.WriteString(fmt.Sprintf("%09d", p.Number))
	b.WriteString(strconv.Itoa(p.EmissionType))
	b.WriteString(code)
	base := b.String()

	if len(base) != keyBaseLength || !isDigits(base) {
		return nil, &domain.ConstructionError{Detail: fmt.Sprintf("base da chave com %d caracteres (esperado %d): %q", len(base), keyBaseLength, base)}
	}
	dv, err := ComputeCheckDigit(base)
	if err != nil {
		return nil, &domain.ConstructionError{Detail: err.Error()}
	}
	return &GeneratedKey{
		Key:        AccessKey(base + strconv.Itoa(dv)),
		Code:       code,
		CheckDigit: dv,
	}, nil
}

// drawCode sorteia o cCT; a SEFAZ rejeita cCT igual ao nCT, então sorteia de novo nesse caso.
func (g *AccessKeyGenerator) drawCode(number int) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := g.random.Code()
		if err != nil {
			return "", err
		}
		if n < 0 || n >= codeSpace {
			return "", &domain.ConstructionError{Detail: fmt.Sprintf("código aleatório fora da faixa: %d", n)}
		}
		if n != number {
			return fmt.Sprintf("%08d", n), nil
		}
	}
	return "", &domain.ConstructionError{Detail: "fonte aleatória repetiu o número do documento"}
}

// ResolveRegion converte sigla ou código IBGE da UF no código de 2 dígitos.
func ResolveRegion(uf string) (string, error) {
	if code, ok := sefaz.UFCode(uf); ok {
		return code, nil
	}
	if _, ok := sefaz.UFFromCode(uf); ok {
		return strings.TrimSpace(uf), nil
	}
	return "", domain.NewValidationError("cUF", fmt.Sprintf("UF desconhecida: %q", uf))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
