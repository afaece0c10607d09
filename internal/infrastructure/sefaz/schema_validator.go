package sefaz

import (
	"errors"
	"fmt"
	"os"
	"sync"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"

	"github.com/jhoicas/cte-api/internal/domain"
)

// SchemaValidator valida o XML montado contra o XSD oficial (cte_v4.00.xsd) via libxml2.
// O XSD é carregado uma vez; Validate pode ser chamado concorrentemente.
type SchemaValidator struct {
	mu      sync.Mutex
	handler *xsdvalidate.XsdHandler
}

var (
	xsdInit    sync.Once
	xsdInitErr error
)

// NewSchemaValidator carrega o XSD do caminho informado.
func NewSchemaValidator(schemaPath string) (*SchemaValidator, error) {
	if _, err := os.Stat(schemaPath); err != nil {
		return nil, &domain.InfrastructureError{Op: "xsd: localizar " + schemaPath, Err: err}
	}
	xsdInit.Do(func() { xsdInitErr = xsdvalidate.Init() })
	if xsdInitErr != nil {
		return nil, &domain.InfrastructureError{Op: "xsd: inicializar libxml2", Err: xsdInitErr}
	}
	h, err := xsdvalidate.NewXsdHandlerUrl(schemaPath, xsdvalidate.ParsErrDefault)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "xsd: carregar " + schemaPath, Err: err}
	}
	return &SchemaValidator{handler: h}, nil
}

// Validate devolve *domain.ValidationError com a primeira violação encontrada.
func (v *SchemaValidator) Validate(xmlBytes []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.handler.ValidateMem(xmlBytes, xsdvalidate.ValidErrDefault)
	if err == nil {
		return nil
	}
	var ve xsdvalidate.ValidationError
	if errors.As(err, &ve) && len(ve.Errors) > 0 {
		first := ve.Errors[0]
		return domain.NewValidationError("xsd", fmt.Sprintf("linha %d: %s", first.Line, first.Message))
	}
	return domain.NewValidationError("xsd", err.Error())
}

// Close libera o handler do XSD.
func (v *SchemaValidator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handler != nil {
		v.handler.Free()
		v.handler = nil
	}
}
