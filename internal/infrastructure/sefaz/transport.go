package sefaz

import (
	"context"
	"strings"
	"time"
)

// Operation operação SOAP solicitada ao Transport.
type Operation string

const (
	OpSubmit       Operation = "cteRecepcaoSinc"
	OpQuery        Operation = "cteConsultaCT"
	OpEvent        Operation = "cteRecepcaoEvento"
	OpDistribution Operation = "cteDistDFeInteresse"
)

// Request chamada a um webservice já resolvido na tabela de endpoints.
type Request struct {
	Operation   Operation
	Kind        Kind
	URL         string
	UF          string
	Environment int
	Payload     []byte // mensagem (cteDadosMsg) sem envelope
}

// Response retorno estruturado da SEFAZ. Uma rejeição (cStat fora do sucesso) é
// um Response válido, não um erro.
type Response struct {
	StatusCode int
	Message    string
	Protocol   string
	ReceivedAt time.Time

	// distribuição
	LastNSU   string
	MaxNSU    string
	Documents []DistributedDocument

	Raw []byte
}

// DistributedDocument docZip já descompactado. Err preenchido quando o docZip
// não pôde ser decodificado; o NSU continua valendo para o ponto de controle.
type DistributedDocument struct {
	NSU     string
	Schema  string // ex.: procCTe_v4.00.xsd, resNFe_v1.01.xsd
	Content []byte
	Err     error
}

// Transport envia mensagens à SEFAZ. Falhas de rede devem voltar como
// *domain.GatewayError indicando se são transitórias.
type Transport interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// TransmissionMode separa o modo simulado (sem rede, determinístico) do real.
type TransmissionMode int

const (
	ModeSimulated TransmissionMode = iota
	ModeLive
)

func (m TransmissionMode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "simulated"
}

// ParseMode aceita "live"/"production"; qualquer outro valor é simulado.
func ParseMode(s string) TransmissionMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "production", "prod":
		return ModeLive
	default:
		return ModeSimulated
	}
}
