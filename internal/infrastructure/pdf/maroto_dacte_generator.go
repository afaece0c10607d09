// Package pdf gera o DACTE (Documento Auxiliar do CT-e) em A4 retrato.
//
// Layout:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  EMITENTE (razão social, CNPJ, IE)  │  DACTE modelo/série/nº │
//	│  CÓDIGO DE BARRAS (CODE-128 da chave) + chave formatada     │
//	│  PROTOCOLO DE AUTORIZAÇÃO                                   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  REMETENTE                │  DESTINATÁRIO                   │
//	│  COMPONENTES DO VALOR     │  ICMS                           │
//	│  CARGA                                                      │
//	│  DOCUMENTOS ORIGINÁRIOS                                     │
//	│  OBSERVAÇÕES + RODAPÉ                                       │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/cte-api/internal/domain/dacte"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 180, Green: 0, Blue: 0}
)

// MarotoDACTEGenerator renderiza dacte.PrintableDocument com Maroto v2.
type MarotoDACTEGenerator struct{}

// NewMarotoDACTEGenerator constrói o gerador.
func NewMarotoDACTEGenerator() *MarotoDACTEGenerator { return &MarotoDACTEGenerator{} }

// Render gera o PDF e devolve seus bytes.
func (g *MarotoDACTEGenerator) Render(doc *dacte.PrintableDocument) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("pdf: documento vazio")
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(8).WithRightMargin(8).
		WithTopMargin(8).WithBottomMargin(8).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 8}).
		WithTitle("DACTE "+doc.Header.Number, true).
		WithAuthor(doc.Issuer.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc))
	m.AddRows(barcodeRows(doc.Barcode)...)
	if doc.Header.Homologation {
		m.AddRows(row.New(7).Add(col.New(12).Add(text.New(doc.Footer.Note, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Center, Color: colorAlert, Top: 1,
		}))))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(routeRow(doc.Header))
	m.AddRows(partiesRow(doc.Sender, doc.Recipient))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(sectionTitle("COMPONENTES DO VALOR DA PRESTAÇÃO"))
	m.AddRows(componentRows(doc.Components)...)
	m.AddRows(taxRow(doc.Tax))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(cargoRow(doc.Cargo))
	m.AddRows(linkedRows(doc.LinkedDocuments)...)
	if doc.AdditionalInfo != "" {
		m.AddRows(sectionTitle("OBSERVAÇÕES"))
		m.AddRows(row.New(10).Add(col.New(12).Add(text.New(doc.AdditionalInfo, props.Text{Size: 7, Top: 1}))))
	}
	m.AddRows(line.NewRow(3))
	m.AddRows(footerRow(doc.Footer))

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: gerar DACTE: %w", err)
	}
	return out.GetBytes(), nil
}

// headerRow emitente (esq.) e identificação do documento (dir.).
func headerRow(doc *dacte.PrintableDocument) core.Row {
	h := doc.Header
	return row.New(22).Add(
		col.New(7).Add(
			text.New(doc.Issuer.Name, props.Text{Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1}),
			text.New("CNPJ: "+doc.Issuer.TaxID+"   IE: "+doc.Issuer.IE, props.Text{Size: 8, Top: 8, Color: colorGray}),
			text.New(doc.Issuer.Address, props.Text{Size: 7, Top: 12, Color: colorGray}),
			text.New(doc.Issuer.CityUF+"   CEP "+doc.Issuer.ZipCode, props.Text{Size: 7, Top: 16, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("DACTE", props.Text{Style: fontstyle.Bold, Size: 14, Align: align.Right, Color: colorPrimary, Top: 1}),
			text.New(fmt.Sprintf("Modelo %s  Série %s  Nº %s", h.Model, h.Series, h.Number), props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 9,
			}),
			text.New("Emissão: "+h.EmittedAt, props.Text{Size: 8, Align: align.Right, Top: 14, Color: colorGray}),
			text.New(h.Modal+" | "+h.CTeType+" | "+h.ServiceType, props.Text{Size: 7, Align: align.Right, Top: 18, Color: colorGray}),
		),
	)
}

// barcodeRows CODE-128 da chave, chave formatada e protocolo.
func barcodeRows(b dacte.Barcode) []core.Row {
	return []core.Row{
		row.New(14).Add(col.New(12).Add(code.NewBar(b.AccessKey, props.Barcode{Percent: 90, Center: true}))),
		row.New(5).Add(col.New(12).Add(text.New("CHAVE DE ACESSO  "+b.Formatted, props.Text{
			Size: 8, Align: align.Center, Top: 1,
		}))),
		row.New(5).Add(col.New(12).Add(text.New("PROTOCOLO DE AUTORIZAÇÃO  "+b.Protocol+"  "+b.AuthorizedAt, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: align.Center, Top: 1,
		}))),
	}
}

func routeRow(h dacte.Header) core.Row {
	return row.New(10).Add(
		col.New(4).Add(
			text.New("CFOP - NATUREZA DA PRESTAÇÃO", props.Text{Style: fontstyle.Bold, Size: 7, Color: colorPrimary, Top: 1}),
			text.New(h.CFOP+" - "+h.NatureOfOperation, props.Text{Size: 7, Top: 5}),
		),
		col.New(4).Add(
			text.New("INÍCIO DA PRESTAÇÃO", props.Text{Style: fontstyle.Bold, Size: 7, Color: colorPrimary, Top: 1}),
			text.New(h.Origin, props.Text{Size: 7, Top: 5}),
		),
		col.New(4).Add(
			text.New("TÉRMINO DA PRESTAÇÃO", props.Text{Style: fontstyle.Bold, Size: 7, Color: colorPrimary, Top: 1}),
			text.New(h.Destination, props.Text{Size: 7, Top: 5}),
		),
	)
}

func partiesRow(sender, recipient dacte.PartyBlock) core.Row {
	return row.New(24).Add(partyCol(sender), partyCol(recipient))
}

func partyCol(p dacte.PartyBlock) core.Col {
	title := p.Role
	if p.IsPayer {
		title += " (TOMADOR)"
	}
	return col.New(6).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 7, Color: colorPrimary, Top: 1}),
		text.New(p.Name, props.Text{Style: fontstyle.Bold, Size: 8, Top: 5}),
		text.New("CNPJ/CPF: "+p.TaxID+"   IE: "+p.IE, props.Text{Size: 7, Top: 10}),
		text.New(p.Address, props.Text{Size: 7, Top: 14, Color: colorGray}),
		text.New(p.CityUF+"   CEP "+p.ZipCode, props.Text{Size: 7, Top: 18, Color: colorGray}),
	)
}

func sectionTitle(label string) core.Row {
	return row.New(6).Add(col.New(12).Add(text.New(label, props.Text{
		Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
	})))
}

func componentRows(c dacte.ComponentsSection) []core.Row {
	rows := make([]core.Row, 0, len(c.Items)+1)
	for _, it := range c.Items {
		rows = append(rows, row.New(5).Add(
			col.New(8).Add(text.New(it.Name, props.Text{Size: 8, Left: 2})),
			col.New(4).Add(text.New(it.Value, props.Text{Size: 8, Align: align.Right, Right: 2})),
		))
	}
	rows = append(rows, row.New(6).Add(
		col.New(4).Add(text.New("VALOR TOTAL DO SERVIÇO", props.Text{Style: fontstyle.Bold, Size: 8, Left: 2, Top: 1})),
		col.New(2).Add(text.New(c.TotalService, props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Top: 1})),
		col.New(4).Add(text.New("VALOR A RECEBER", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Top: 1})),
		col.New(2).Add(text.New(c.AmountToCollect, props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Right: 2, Top: 1})),
	))
	return rows
}

func taxRow(t dacte.TaxSection) core.Row {
	cell := func(label, value string, size int) core.Col {
		return col.New(size).Add(
			text.New(label, props.Text{Style: fontstyle.Bold, Size: 6.5, Color: colorPrimary, Top: 1}),
			text.New(value, props.Text{Size: 7.5, Top: 5}),
		)
	}
	return row.New(11).Add(
		cell("SITUAÇÃO TRIBUTÁRIA", t.CST+" - "+t.Label, 4),
		cell("BASE DE CÁLCULO", t.Base, 2),
		cell("ALÍQ. ICMS", t.Rate, 2),
		cell("VALOR ICMS", t.Value, 2),
		cell("% RED. BC", nonEmpty(t.BaseReduction, "-"), 2),
	)
}

func cargoRow(c dacte.CargoSection) core.Row {
	return row.New(11).Add(
		col.New(4).Add(
			text.New("PRODUTO PREDOMINANTE", props.Text{Style: fontstyle.Bold, Size: 6.5, Color: colorPrimary, Top: 1}),
			text.New(c.Product, props.Text{Size: 7.5, Top: 5}),
		),
		col.New(3).Add(
			text.New("VALOR DA CARGA", props.Text{Style: fontstyle.Bold, Size: 6.5, Color: colorPrimary, Top: 1}),
			text.New(c.Value, props.Text{Size: 7.5, Top: 5}),
		),
		col.New(3).Add(
			text.New("PESO / QUANTIDADE", props.Text{Style: fontstyle.Bold, Size: 6.5, Color: colorPrimary, Top: 1}),
			text.New(c.Weight+"  "+c.Quantity+" "+c.Unit, props.Text{Size: 7.5, Top: 5}),
		),
		col.New(2).Add(
			text.New("VOLUMES", props.Text{Style: fontstyle.Bold, Size: 6.5, Color: colorPrimary, Top: 1}),
			text.New(nonEmpty(c.Volumes, "-"), props.Text{Size: 7.5, Top: 5}),
		),
	)
}

func linkedRows(l dacte.LinkedSection) []core.Row {
	if l.Count == 0 {
		return nil
	}
	rows := []core.Row{sectionTitle(fmt.Sprintf("DOCUMENTOS ORIGINÁRIOS (%d)", l.Count))}
	for _, it := range l.Items {
		rows = append(rows, row.New(5).Add(
			col.New(2).Add(text.New(it.Type, props.Text{Size: 7, Left: 2})),
			col.New(7).Add(text.New(it.Key, props.Text{Size: 7})),
			col.New(3).Add(text.New(nonEmpty(it.Number, it.Value), props.Text{Size: 7, Align: align.Right, Right: 2})),
		))
	}
	return rows
}

func footerRow(f dacte.Footer) core.Row {
	return row.New(10).Add(col.New(12).Add(
		text.New(f.Disclaimer, props.Text{Size: 6.5, Color: colorGray, Top: 1}),
		text.New("Leiaute CT-e "+f.LayoutVersion, props.Text{Size: 6.5, Color: colorGray, Top: 5, Align: align.Right}),
	))
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
