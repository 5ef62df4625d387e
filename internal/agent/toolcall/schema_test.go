package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema_FieldTypesAndTags(t *testing.T) {
	type args struct {
		Task    string   `json:"task" jsonschema:"description=What to do,required"`
		Count   int      `json:"count"`
		Ratio   float64  `json:"ratio"`
		Submit  bool     `json:"submit"`
		Targets []string `json:"targets"`
		Mode    string   `json:"mode" jsonschema:"enum=fast|careful"`
		Skipped string   `json:"-"`
		hidden  string
	}
	_ = args{hidden: ""}

	schema := BuildSchema(args{})
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Len(t, props, 6)

	task := props["task"].(map[string]any)
	assert.Equal(t, "string", task["type"])
	assert.Equal(t, "What to do", task["description"])

	assert.Equal(t, "integer", props["count"].(map[string]any)["type"])
	assert.Equal(t, "number", props["ratio"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["submit"].(map[string]any)["type"])

	targets := props["targets"].(map[string]any)
	assert.Equal(t, "array", targets["type"])
	assert.Equal(t, map[string]any{"type": "string"}, targets["items"])

	assert.Equal(t, []any{"fast", "careful"}, props["mode"].(map[string]any)["enum"])

	assert.Equal(t, []string{"task"}, schema["required"])
}

func TestBuildSchema_UntaggedFieldUsesGoName(t *testing.T) {
	type args struct {
		Plain string
	}
	props := BuildSchema(args{})["properties"].(map[string]any)
	require.Contains(t, props, "Plain")
}

func TestBuildSchema_NonStructYieldsEmptyObject(t *testing.T) {
	schema := BuildSchema("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
	assert.NotContains(t, schema, "required")
}

func TestBuildSchema_PointerIndirection(t *testing.T) {
	type args struct {
		Task string `json:"task" jsonschema:"required"`
	}
	schema := BuildSchema(&args{})
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "task")
	assert.Equal(t, []string{"task"}, schema["required"])
}
