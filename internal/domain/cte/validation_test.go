package cte_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/cte/ctetest"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "esperado *domain.ValidationError, recebido %v", err)
	return ve.Field
}

func TestValidate_EntradaValida(t *testing.T) {
	assert.NoError(t, cte.Validate(ctetest.ValidInput()))
}

func TestValidate_ValorDaPrestacao(t *testing.T) {
	for _, v := range []string{"0", "-1"} {
		in := ctetest.ValidInput()
		in.Values.ServiceValue = decimal.RequireFromString(v)
		err := cte.Validate(in)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, "vPrest.vTPrest", fieldOf(t, err))
	}

	in := ctetest.ValidInput()
	in.Values.ServiceValue = decimal.RequireFromString("0.01")
	assert.NoError(t, cte.Validate(in))
}

func TestValidate_AliquotaICMS(t *testing.T) {
	for _, v := range []string{"-1", "100.01"} {
		in := ctetest.ValidInput()
		in.Tax.Rate = decimal.RequireFromString(v)
		assert.Equal(t, "imp.ICMS.pICMS", fieldOf(t, cte.Validate(in)), "alíquota %s", v)
	}
	for _, v := range []string{"0", "100"} {
		in := ctetest.ValidInput()
		in.Tax.Rate = decimal.RequireFromString(v)
		assert.NoError(t, cte.Validate(in), "alíquota %s", v)
	}
}

// A ordem das verificações é contrato: com vários problemas, o primeiro da lista vence.
func TestValidate_OrdemDasVerificacoes(t *testing.T) {
	in := ctetest.ValidInput()
	in.Payer = 7
	in.Identification.DestinationUF = "ZZ"
	in.Identification.OriginUF = "XX"
	in.Issuer.Address.UF = "XX"
	in.Cargo.Value = decimal.NewFromInt(-1)
	in.Cargo.PredominantProduct = ""
	in.Tax.Rate = decimal.NewFromInt(101)
	in.Values.ServiceValue = decimal.Zero
	in.Recipient.TaxID = "1"
	in.Sender.TaxID = ""
	in.Issuer.IE = ""
	in.Issuer.TaxID = ""

	expected := []struct {
		field string
		fix   func(*cte.DocumentInput)
	}{
		{"emit.CNPJ", func(i *cte.DocumentInput) { i.Issuer.TaxID = ctetest.IssuerCNPJ }},
		{"emit.IE", func(i *cte.DocumentInput) { i.Issuer.IE = "123" }},
		{"rem.CNPJCPF", func(i *cte.DocumentInput) { i.Sender.TaxID = ctetest.SenderCNPJ }},
		{"dest.CNPJCPF", func(i *cte.DocumentInput) { i.Recipient.TaxID = ctetest.RecipientCPF }},
		{"vPrest.vTPrest", func(i *cte.DocumentInput) { i.Values.ServiceValue = decimal.NewFromInt(10) }},
		{"imp.ICMS.pICMS", func(i *cte.DocumentInput) { i.Tax.Rate = decimal.NewFromInt(12) }},
		{"infCarga.proPred", func(i *cte.DocumentInput) { i.Cargo.PredominantProduct = "GRÃOS" }},
		{"infCarga.vCarga", func(i *cte.DocumentInput) { i.Cargo.Value = decimal.Zero }},
		{"enderEmit.UF", func(i *cte.DocumentInput) { i.Issuer.Address.UF = "SP" }},
		{"UFIni", func(i *cte.DocumentInput) { i.Identification.OriginUF = "SP" }},
		{"UFFim", func(i *cte.DocumentInput) { i.Identification.DestinationUF = "RJ" }},
		{"toma3", func(i *cte.DocumentInput) { i.Payer = 3 }},
	}
	for _, step := range expected {
		assert.Equal(t, step.field, fieldOf(t, cte.Validate(in)))
		step.fix(&in)
	}
	assert.NoError(t, cte.Validate(in))
}

func TestValidate_CNPJDoEmitenteComDVErrado(t *testing.T) {
	in := ctetest.ValidInput()
	in.Issuer.TaxID = "11222333000182"
	assert.Equal(t, "emit.CNPJ", fieldOf(t, cte.Validate(in)))
}

func TestValidate_EmitenteNaoPodeSerCPF(t *testing.T) {
	in := ctetest.ValidInput()
	in.Issuer.TaxID = ctetest.RecipientCPF
	assert.Equal(t, "emit.CNPJ", fieldOf(t, cte.Validate(in)))
}

func TestValidate_UFDoDestinatario(t *testing.T) {
	in := ctetest.ValidInput()
	in.Recipient.Address.UF = "ZZ"
	assert.Equal(t, "enderDest.UF", fieldOf(t, cte.Validate(in)))
}

func TestValidate_Tomador(t *testing.T) {
	for _, toma := range []int{1, 2, 4, 7, -1} {
		in := ctetest.ValidInput()
		in.Payer = toma
		assert.Equal(t, "toma3", fieldOf(t, cte.Validate(in)), "toma %d", toma)
	}
	for _, toma := range []int{0, 3} {
		in := ctetest.ValidInput()
		in.Payer = toma
		assert.NoError(t, cte.Validate(in), "toma %d", toma)
	}
}

func TestValidate_UFInicioEFimOpcionais(t *testing.T) {
	in := ctetest.ValidInput()
	in.Identification.OriginUF = ""
	in.Identification.DestinationUF = ""
	assert.NoError(t, cte.Validate(in))

	in.Identification.DestinationUF = "XX"
	assert.Equal(t, "UFFim", fieldOf(t, cte.Validate(in)))
}

func TestNormalized_UFEmCaixaAlta(t *testing.T) {
	in := ctetest.ValidInput()
	in.Issuer.Address.UF = "sp"
	in.Sender.Address.UF = " sp"
	in.Recipient.Address.UF = "rj "
	in.Identification.OriginUF = " Sp "
	in.Identification.DestinationUF = "rJ"

	out := in.Normalized()
	assert.Equal(t, "SP", out.Issuer.Address.UF)
	assert.Equal(t, "SP", out.Sender.Address.UF)
	assert.Equal(t, "RJ", out.Recipient.Address.UF)
	assert.Equal(t, "SP", out.Identification.OriginUF)
	assert.Equal(t, "RJ", out.Identification.DestinationUF)
	assert.Equal(t, "sp", in.Issuer.Address.UF, "entrada original não muda")
}

func TestValues_ToCollect(t *testing.T) {
	v := cte.Values{ServiceValue: decimal.NewFromInt(100)}
	assert.True(t, v.ToCollect().Equal(decimal.NewFromInt(100)))

	zero := decimal.Zero
	v.AmountToCollect = &zero
	assert.True(t, v.ToCollect().IsZero())
}
