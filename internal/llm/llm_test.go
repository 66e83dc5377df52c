package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<think>plan</think>Hola", "Hola"},
		{"<THINK>mayúsculas</THINK> Hola", "Hola"},
		{"antes <think>uno</think> medio <think>dos</think> después", "antes  medio  después"},
		{"sin marcadores", "sin marcadores"},
		{"<think>sin cierre y todo lo demás", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StripReasoning(tc.in), tc.in)
	}
}
