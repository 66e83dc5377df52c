package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractURLs(t *testing.T) {
	text := "Mira https://Example.com/Page#section y también http://example.com/other. " +
		"Repetido: https://example.com/Page"

	urls := Extract(text, true, true)
	assert.Equal(t, []string{"https://example.com/Page", "http://example.com/other"}, urls)
}

func TestExtractURLsIdempotent(t *testing.T) {
	text := "enlaces: https://a.example/x, https://b.example/y?q=1 y https://a.example/x"
	first := Extract(text, true, true)
	second := Extract(strings.Join(first, " "), true, true)
	assert.Equal(t, first, second)
}

func TestExtractURLsTool(t *testing.T) {
	tool := &ExtractURLs{}
	args, _ := json.Marshal(map[string]any{"text": "nada por aquí"})
	out, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)

	result := out.Result.(map[string]any)
	assert.Equal(t, 0, result["count"])
}
