package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	defs "github.com/jonathan/lpg-agent/schemas"
)

func TestValidateBytes_Identities(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		wantError bool
	}{
		{"valid list", `[{"NIK": "1", "KATEGORI": "Rumah Tangga", "NAMA": "Budi"}]`, false},
		{"numeric id", `[{"NIK": 3171, "KATEGORI": "Rumah Tangga"}]`, false},
		{"missing category allowed", `[{"NIK": "1"}]`, false},
		{"empty list", `[]`, false},
		{"object instead of list", `{"NIK": "1"}`, true},
		{"item not object", `["1"]`, true},
		{"category wrong type", `[{"NIK": "1", "KATEGORI": 7}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBytes(defs.Identities, []byte(tt.document))
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBytes_ProcessedRequiresCategory(t *testing.T) {
	err := ValidateBytes(defs.Processed, []byte(`[{"NIK": "1"}]`))
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
	assert.Contains(t, err.Error(), defs.Processed)
}

func TestValidateBytes_Invalid(t *testing.T) {
	assert.NoError(t, ValidateBytes(defs.Invalid, []byte(`["1", "2"]`)))
	assert.Error(t, ValidateBytes(defs.Invalid, []byte(`[1, 2]`)))
}

func TestValidateBytes_MalformedDocument(t *testing.T) {
	err := ValidateBytes(defs.Invalid, []byte(`{ invalid json }`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidateBytes_UnknownSchema(t *testing.T) {
	err := ValidateBytes("nope.schema.json", []byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not embedded")
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid-niks.json")
	require.NoError(t, os.WriteFile(path, []byte(`["1"]`), 0644))
	assert.NoError(t, ValidateFile(defs.Invalid, path))

	err := ValidateFile(defs.Invalid, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
