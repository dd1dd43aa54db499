package main

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"welfare-recommender/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStructFields(t *testing.T) {
	fields := generateStructFields(map[string]interface{}{
		"userId":      map[string]interface{}{"type": "string"},
		"limit":       map[string]interface{}{"type": "integer"},
		"refreshedAt": map[string]interface{}{"type": "string", "format": "date-time"},
	})
	assert.Equal(t,
		"\tLimit int `json:\"limit,omitempty\"`\n"+
			"\tRefreshedAt time.Time `json:\"refreshedAt,omitempty\"`\n"+
			"\tUserID string `json:\"userId,omitempty\"`",
		fields)
}

func TestDurationExpr(t *testing.T) {
	assert.Equal(t, "15 * time.Second", durationExpr(15e9))
	assert.Equal(t, "1500 * time.Millisecond", durationExpr(1.5e9))
}

func TestGenerate(t *testing.T) {
	act, ok := registry.Default().Find(registry.TaskExplainRecommendation)
	require.True(t, ok)

	out := t.TempDir()
	dir, err := generate(*act, out, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "recommendation", registry.TaskExplainRecommendation), dir)

	fset := token.NewFileSet()
	for _, name := range []string{"config.go", "models.go", "handler.go", "handler_test.go"} {
		_, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.AllErrors)
		assert.NoError(t, err, name)
	}

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "SCHEME_NOT_FOUND")

	_, err = generate(*act, out, false)
	assert.Error(t, err, "existing directory needs -force")
	_, err = generate(*act, out, true)
	assert.NoError(t, err)
}
