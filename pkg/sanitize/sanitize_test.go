package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	in := "Excelente! Liguem para +258 84 123 4567 ou escrevam para ana.silva@adv.mz"
	out := RedactPII(in)

	assert.NotContains(t, out, "84 123 4567")
	assert.NotContains(t, out, "ana.silva@adv.mz")
	assert.Contains(t, out, "[redacted phone]")
	assert.Contains(t, out, "[redacted email]")
	assert.Equal(t, "Muito bom, 5 estrelas", RedactPII("Muito bom, 5 estrelas"))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "curto", Summary("curto", 10))
	assert.Equal(t, "Consulta sobre…", Summary("Consulta sobre herança familiar", 16))
	assert.Equal(t, "abcdefghij…", Summary("abcdefghijklmnop", 10))
}
