package docs_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"

	"github.com/jhoicas/cte-api/docs"
)

func TestSwaggerRegistrado(t *testing.T) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	assert.Equal(t, "2.0", parsed["swagger"])
	paths, ok := parsed["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/api/ctes", "/api/ctes/{key}/cancel", "/api/ctes/{key}/dacte", "/api/branches/{id}/dfe/download"} {
		assert.Contains(t, paths, p)
	}
}
