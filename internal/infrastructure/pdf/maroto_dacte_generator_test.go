package pdf_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cte-api/internal/domain/cte/ctetest"
	"github.com/jhoicas/cte-api/internal/domain/dacte"
	"github.com/jhoicas/cte-api/internal/infrastructure/pdf"
)

func TestRender_GeraPDF(t *testing.T) {
	printable, err := dacte.NewComposer().Generate(dacte.AuthorizedInput{
		Document:     ctetest.ValidInput(),
		AccessKey:    ctetest.AuthorizedKey,
		Protocol:     "135240000012345",
		AuthorizedAt: time.Date(2024, 10, 15, 14, 35, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out, err := pdf.NewMarotoDACTEGenerator().Render(printable)
	require.NoError(t, err)
	require.Greater(t, len(out), 4)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestRender_Nil(t *testing.T) {
	_, err := pdf.NewMarotoDACTEGenerator().Render(nil)
	assert.Error(t, err)
}
