package docai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenleaf/compliance-engine/internal/docai/docaitest"
)

var coaLines = []string{
	"Certificate of Analysis",
	"Batch #: GL-2024-118",
	"Lab: Pinnacle Labs",
	"THCA: 24.7 %",
}

func TestPDFTextReadsTextLayer(t *testing.T) {
	for name, compress := range map[string]bool{"plain": false, "flate": true} {
		t.Run(name, func(t *testing.T) {
			text, err := PDFText{}.ExtractText(context.Background(), docaitest.PDF(coaLines, compress), "application/pdf")
			require.NoError(t, err)
			assert.Contains(t, text, "Batch #: GL-2024-118\n")
			assert.Contains(t, text, "Lab: Pinnacle Labs\n")
			assert.Contains(t, text, "THCA: 24.7 %")
		})
	}
}

func TestPDFTextIgnoresOtherFormats(t *testing.T) {
	text, err := PDFText{}.ExtractText(context.Background(), []byte("Batch #: GL-1"), "text/plain")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPDFTextRejectsTruncatedDocument(t *testing.T) {
	doc := docaitest.PDF(coaLines, true)
	_, err := PDFText{}.ExtractText(context.Background(), doc[:len(doc)/2], "application/pdf")
	assert.Error(t, err)
}

type staticExtractor struct {
	text  string
	err   error
	calls int
}

func (s *staticExtractor) ExtractText(context.Context, []byte, string) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	remote := &staticExtractor{err: errors.New("processor unavailable")}
	local := &staticExtractor{text: "Batch #: GL-9"}
	text, err := Chain{remote, nil, local}.ExtractText(ctx, []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "Batch #: GL-9", text)
	assert.Equal(t, 1, remote.calls)

	first := &staticExtractor{text: "from processor"}
	second := &staticExtractor{text: "unused"}
	text, err = Chain{first, second}.ExtractText(ctx, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from processor", text)
	assert.Zero(t, second.calls)

	empty := &staticExtractor{text: " "}
	text, err = Chain{empty, remote}.ExtractText(ctx, nil, "")
	assert.Empty(t, text)
	assert.ErrorContains(t, err, "processor unavailable")

	text, err = Chain{empty}.ExtractText(ctx, nil, "")
	assert.NoError(t, err)
	assert.Empty(t, text)
}
