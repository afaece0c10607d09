// seed_ibge gera o script SQL da tabela municipalities (código IBGE de 7 dígitos)
// a partir da planilha DTB do IBGE exportada em CSV (separador ';', ISO-8859-1).
//
// Uso: go run ./cmd/seed_ibge [caminho/RELATORIO_DTB_BRASIL_MUNICIPIO.csv]
// Escreve: migrations/002_seed_municipalities.sql
package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/cte-api/pkg/logger"
	"github.com/jhoicas/cte-api/pkg/sefaz"
)

// Colunas da DTB usadas na carga.
const (
	colUF       = "UF"
	colCityCode = "Código Município Completo"
	colCityName = "Nome_Município"
)

type municipality struct {
	code, name, uf string
}

func main() {
	log := logger.New(logger.Config{Env: "development", Level: "info"})

	csvPath := "RELATORIO_DTB_BRASIL_MUNICIPIO.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("arquivo", csvPath).Msg("abrir CSV")
	}
	defer f.Close()

	cities, err := parseDTB(f)
	if err != nil {
		log.Fatal().Err(err).Msg("ler DTB")
	}

	outPath := filepath.Join(findModuleRoot(), "migrations", "002_seed_municipalities.sql")
	out, err := os.Create(outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("criar script")
	}
	defer out.Close()

	if err := writeSQL(out, cities); err != nil {
		log.Fatal().Err(err).Msg("gravar script")
	}
	log.Info().Str("arquivo", outPath).Int("municipios", len(cities)).Msg("script gerado")
}

// parseDTB lê o CSV em ISO-8859-1 localizando as colunas pelo cabeçalho.
func parseDTB(r io.Reader) ([]municipality, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cabeçalho: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range []string{colUF, colCityCode, colCityName} {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("coluna %q ausente", c)
		}
	}

	var cities []municipality
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		code := strings.TrimSpace(rec[idx[colCityCode]])
		name := strings.TrimSpace(rec[idx[colCityName]])
		uf, ok := sefaz.UFFromCode(strings.TrimSpace(rec[idx[colUF]]))
		if len(code) != 7 || name == "" || !ok {
			continue
		}
		cities = append(cities, municipality{code: code, name: name, uf: uf})
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].code < cities[j].code })
	return cities, nil
}

func writeSQL(w io.Writer, cities []municipality) error {
	var b strings.Builder
	b.WriteString("-- Municípios brasileiros (código IBGE)\n")
	b.WriteString("-- Gerado a partir da DTB/IBGE por cmd/seed_ibge\n\n")
	b.WriteString("INSERT INTO municipalities (code, name, uf) VALUES\n")
	for i, c := range cities {
		sep := ","
		if i == len(cities)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  ('%s', '%s', '%s')%s\n", c.code, escapeSQL(c.name), c.uf, sep)
	}
	b.WriteString("ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, uf = EXCLUDED.uf;\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
