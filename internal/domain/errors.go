package domain

import (
	"errors"
	"fmt"
)

// Erros de domínio (sem dependências externas).
var (
	ErrNotFound     = errors.New("recurso não encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("não autorizado")
	ErrForbidden    = errors.New("acesso negado")
	ErrConflict     = errors.New("conflito com o estado atual")
)

// Taxonomia fiscal. Cada categoria é um sentinel para errors.Is; os tipos abaixo
// carregam o detalhe e fazem Unwrap para o sentinel correspondente.
var (
	// ErrValidation entrada malformada; o chamador corrige e tenta de novo. Nunca é reenviada automaticamente.
	ErrValidation = errors.New("validação fiscal falhou")
	// ErrConstruction violação de invariante interno do montador (defeito, não erro do usuário).
	ErrConstruction = errors.New("erro de construção do documento")
	// ErrGateway falha ao falar com a SEFAZ.
	ErrGateway = errors.New("erro de comunicação com a SEFAZ")
	// ErrInvalidTransition transição proibida na máquina de estados do CT-e.
	ErrInvalidTransition = errors.New("transição de estado inválida")
	// ErrNotImplemented operação sem implementação no modo configurado.
	ErrNotImplemented = errors.New("operação não implementada")
	// ErrInfrastructure falha opaca de infraestrutura (certificado ilegível, arquivo ausente).
	ErrInfrastructure = errors.New("falha de infraestrutura")
)

// ValidationError indica o primeiro campo inválido encontrado.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError atalho para &ValidationError{...}.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConstructionError invariante interno violado durante a montagem.
type ConstructionError struct {
	Detail string
}

func (e *ConstructionError) Error() string {
	return "construção: " + e.Detail
}

func (e *ConstructionError) Unwrap() error { return ErrConstruction }

// GatewayError falha de transporte ou protocolo com a SEFAZ. Somente Transient=true
// é elegível para nova tentativa; rejeições estruturadas nunca chegam aqui.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanente"
	if e.Transient {
		kind = "transitória"
	}
	return fmt.Sprintf("sefaz %s (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrGateway, e.Err} }

// IsTransient informa se err é um GatewayError transitório.
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}

// InfrastructureError embrulha falhas de bibliotecas externas (pkcs12, sistema de arquivos).
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() []error { return []error{ErrInfrastructure, e.Err} }
