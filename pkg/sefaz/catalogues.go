// Package sefaz contém catálogos e validações alinhados ao Manual de Orientação
// do Contribuinte do CT-e (leiaute 4.00) e às tabelas do IBGE usadas pela SEFAZ.
package sefaz

import "strings"

// ModelCTe é o modelo do documento fiscal CT-e (posições 21-22 da chave de acesso).
const ModelCTe = "57"

// LayoutVersion versão do leiaute CT-e implementada.
const LayoutVersion = "4.00"

// =============================================================================
// Tabela de UF (IBGE) - códigos usados em cUF e nas duas primeiras posições da chave.
// 26 estados + Distrito Federal.
// =============================================================================

var ufCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29",
	"MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43",
	"MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

var ufByCode = func() map[string]string {
	m := make(map[string]string, len(ufCodes))
	for uf, code := range ufCodes {
		m[code] = uf
	}
	return m
}()

// UFCode devolve o código IBGE de 2 dígitos da UF (aceita sigla em qualquer caixa).
func UFCode(uf string) (string, bool) {
	code, ok := ufCodes[strings.ToUpper(strings.TrimSpace(uf))]
	return code, ok
}

// UFFromCode devolve a sigla da UF a partir do código IBGE.
func UFFromCode(code string) (string, bool) {
	uf, ok := ufByCode[strings.TrimSpace(code)]
	return uf, ok
}

// IsKnownUF indica se a sigla pertence à tabela de UFs.
func IsKnownUF(uf string) bool {
	_, ok := UFCode(uf)
	return ok
}

// UFCount número de entradas da tabela (27).
func UFCount() int { return len(ufCodes) }

// =============================================================================
// tpAmb - Ambiente
// =============================================================================

const (
	EnvironmentProduction   = 1 // Produção
	EnvironmentHomologation = 2 // Homologação
)

// =============================================================================
// tpEmis - Forma de emissão
// =============================================================================

const (
	EmissionNormal = 1 // Normal
	EmissionEPEC   = 4 // EPEC pela SVC
	EmissionFSDA   = 5 // Contingência FS-DA
	EmissionSVCRS  = 7 // Autorização pela SVC-RS
	EmissionSVCSP  = 8 // Autorização pela SVC-SP
)

// =============================================================================
// tpServ - Tipo de serviço
// =============================================================================

var serviceTypeLabels = map[int]string{
	0: "NORMAL",
	1: "SUBCONTRATAÇÃO",
	2: "REDESPACHO",
	3: "REDESPACHO INTERMEDIÁRIO",
	4: "SERVIÇO VINCULADO A MULTIMODAL",
}

// ServiceTypeLabel rótulo do tipo de serviço para o DACTE.
func ServiceTypeLabel(code int) string {
	if l, ok := serviceTypeLabels[code]; ok {
		return l
	}
	return "DESCONHECIDO"
}

// =============================================================================
// tpCTe - Tipo do CT-e
// =============================================================================

var cteTypeLabels = map[int]string{
	0: "NORMAL",
	1: "COMPLEMENTO DE VALORES",
	3: "SUBSTITUTO",
}

// CTeTypeLabel rótulo do tipo de CT-e.
func CTeTypeLabel(code int) string {
	if l, ok := cteTypeLabels[code]; ok {
		return l
	}
	return "DESCONHECIDO"
}

// =============================================================================
// modal
// =============================================================================

const (
	ModalRoad       = "01"
	ModalAir        = "02"
	ModalWater      = "03"
	ModalRail       = "04"
	ModalPipeline   = "05"
	ModalMultimodal = "06"
)

var modalLabels = map[string]string{
	ModalRoad:       "RODOVIÁRIO",
	ModalAir:        "AÉREO",
	ModalWater:      "AQUAVIÁRIO",
	ModalRail:       "FERROVIÁRIO",
	ModalPipeline:   "DUTOVIÁRIO",
	ModalMultimodal: "MULTIMODAL",
}

// ModalLabel rótulo do modal.
func ModalLabel(code string) string {
	if l, ok := modalLabels[code]; ok {
		return l
	}
	return "DESCONHECIDO"
}

// =============================================================================
// toma3 - Tomador do serviço
// =============================================================================

const (
	PayerSender     = 0 // Remetente
	PayerDispatcher = 1 // Expedidor
	PayerReceiver   = 2 // Recebedor
	PayerRecipient  = 3 // Destinatário
)

// =============================================================================
// CST do ICMS aplicáveis ao CT-e
// =============================================================================

const (
	CSTNormal      = "00"
	CSTReducedBase = "20"
	CSTExempt      = "40"
	CSTNotTaxed    = "41"
	CSTDeferred    = "51"
	CSTPriorST     = "60"
	CSTOther       = "90"
)

var cstLabels = map[string]string{
	CSTNormal:      "00 - Tributação normal do ICMS",
	CSTReducedBase: "20 - Tributação com BC reduzida do ICMS",
	CSTExempt:      "40 - ICMS isenção",
	CSTNotTaxed:    "41 - ICMS não tributada",
	CSTDeferred:    "51 - ICMS diferido",
	CSTPriorST:     "60 - ICMS cobrado anteriormente por substituição tributária",
	CSTOther:       "90 - ICMS outros",
}

// CSTLabel rótulo legível do CST; códigos fora da tabela voltam como "<cst> - Não catalogado".
func CSTLabel(cst string) string {
	if l, ok := cstLabels[cst]; ok {
		return l
	}
	return cst + " - Não catalogado"
}

// =============================================================================
// cUnid - Unidade de medida da carga
// =============================================================================

const (
	UnitM3    = "00"
	UnitKG    = "01"
	UnitTON   = "02"
	UnitUnit  = "03"
	UnitLitre = "04"
	UnitMMBTU = "05"
)

var unitLabels = map[string]string{
	UnitM3: "M3", UnitKG: "KG", UnitTON: "TON", UnitUnit: "UNIDADE", UnitLitre: "LITROS", UnitMMBTU: "MMBTU",
}

// UnitLabel rótulo da unidade de medida.
func UnitLabel(code string) string {
	if l, ok := unitLabels[code]; ok {
		return l
	}
	return code
}

// =============================================================================
// Códigos de status (cStat) relevantes ao ciclo de vida
// =============================================================================

const (
	StatusAuthorized      = 100 // Autorizado o uso do CT-e
	StatusCancelled       = 101 // Cancelamento de CT-e homologado
	StatusBatchReceived   = 103 // Lote recebido com sucesso
	StatusBatchProcessing = 105 // Lote em processamento
	StatusDenied          = 110 // Uso denegado
	StatusEventRegistered = 135 // Evento registrado e vinculado a CT-e
	StatusAuthorizedLate  = 150 // Autorizado o uso do CT-e, autorização fora de prazo
	StatusNoDocuments     = 137 // Nenhum documento localizado (distribuição)
	StatusDocumentsFound  = 138 // Documento localizado (distribuição)
	StatusNotInDatabase   = 217 // CT-e não consta na base de dados da SEFAZ
	StatusOverConsumption = 656 // Consumo indevido
)

// IsAuthorizedStatus 100 ou 150.
func IsAuthorizedStatus(code int) bool {
	return code == StatusAuthorized || code == StatusAuthorizedLate
}

// IsPendingStatus respostas que ainda não decidem a autorização: lote recebido ou em
// processamento, ou CT-e ainda não replicado na base de consulta.
func IsPendingStatus(code int) bool {
	switch code {
	case StatusBatchReceived, StatusBatchProcessing, StatusNotInDatabase:
		return true
	}
	return false
}

// IsRejectionStatus denegação (110) ou rejeição (faixa 200-999, exceto 217 e 656).
func IsRejectionStatus(code int) bool {
	if code == StatusDenied {
		return true
	}
	return code >= 200 && code <= 999 && !IsPendingStatus(code) && code != StatusOverConsumption
}

// EventCancel código do evento de cancelamento.
const EventCancel = "110111"
