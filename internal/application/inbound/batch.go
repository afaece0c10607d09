package inbound

import (
	"fmt"
	"time"
)

// RawDocument documento como chega da distribuição DF-e ou de upload.
type RawDocument struct {
	NSU       string
	Schema    string
	AccessKey string // metadado opcional; vazio = extrair do XML
	Content   []byte
	Err       error // falha anterior ao processamento (docZip corrompido)
}

// ImportFailure falha de um documento do lote.
type ImportFailure struct {
	Index     int    `json:"index"`
	NSU       string `json:"nsu,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	Reason    string `json:"reason"`
}

// ImportBatch resumo de um ciclo de importação. Não é persistido.
type ImportBatch struct {
	Total           int             `json:"total"`
	Imported        int             `json:"imported"`
	Duplicates      int             `json:"duplicates"`
	Errors          int             `json:"errors"`
	Skipped         int             `json:"skipped"` // eventos e resumos sem documento fiscal
	Failures        []ImportFailure `json:"failures,omitempty"`
	PartnerIDs      []string        `json:"partner_ids,omitempty"`
	ProductIDs      []string        `json:"product_ids,omitempty"`
	PartnersCreated int             `json:"partners_created"`
	PartnersLinked  int             `json:"partners_linked"`
	ProductsCreated int             `json:"products_created"`
	ProductsLinked  int             `json:"products_linked"`
	LastNSU         string          `json:"last_nsu,omitempty"`
	Pages           int             `json:"pages,omitempty"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Summary "N importados, M duplicados, K erros".
func (b *ImportBatch) Summary() string {
	return fmt.Sprintf("%d importados, %d duplicados, %d erros", b.Imported, b.Duplicates, b.Errors)
}

// Merge acumula outro lote (páginas da distribuição).
func (b *ImportBatch) Merge(o *ImportBatch) {
	if o == nil {
		return
	}
	offset := b.Total
	b.Total += o.Total
	b.Imported += o.Imported
	b.Duplicates += o.Duplicates
	b.Errors += o.Errors
	b.Skipped += o.Skipped
	for _, f := range o.Failures {
		f.Index += offset
		b.Failures = append(b.Failures, f)
	}
	b.PartnerIDs = appendUnique(b.PartnerIDs, o.PartnerIDs...)
	b.ProductIDs = appendUnique(b.ProductIDs, o.ProductIDs...)
	b.PartnersCreated += o.PartnersCreated
	b.PartnersLinked += o.PartnersLinked
	b.ProductsCreated += o.ProductsCreated
	b.ProductsLinked += o.ProductsLinked
	if o.LastNSU != "" {
		b.LastNSU = o.LastNSU
	}
	if o.FinishedAt.After(b.FinishedAt) {
		b.FinishedAt = o.FinishedAt
	}
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		found := false
		for _, d := range dst {
			if d == id {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, id)
		}
	}
	return dst
}
