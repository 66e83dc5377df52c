package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyTool struct{ name string }

func (d *dummyTool) Name() string            { return d.name }
func (d *dummyTool) Description() string     { return "dummy" }
func (d *dummyTool) Schema() map[string]any  { return objectSchema(map[string]any{}) }
func (d *dummyTool) Execute(context.Context, json.RawMessage) (Output, error) {
	return Output{Result: "ok"}, nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&dummyTool{name: "x"}))
	err := reg.Register(&dummyTool{name: "x"})
	assert.Error(t, err)
}

func TestRegistrySchemasFilter(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&dummyTool{name: "a"}, &dummyTool{name: "b"}, &dummyTool{name: "c"})

	all := reg.Schemas(nil)
	assert.Len(t, all, 3)

	subset := reg.Schemas([]string{"b", "missing"})
	require.Len(t, subset, 1)
	assert.Equal(t, "b", subset[0].Name)
}
