package scriptx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseBundle_Simple(t *testing.T) {
	input := `---- 202501010000 creating table config
CREATE TABLE config
(
    id    bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    key   VARCHAR(255),
    value VARCHAR(255)
);
`
	content := `CREATE TABLE config
(
    id    bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    key   VARCHAR(255),
    value VARCHAR(255)
);`
	expected := []Script{NewScript("202501010000", "creating table config", content)}

	actual, err := ParseBundle(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func Test_ParseBundle_Trim(t *testing.T) {
	input := `
---- 202501010000 creating table config

CREATE TABLE config
(
    id    bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY
);

`
	actual, err := ParseBundle(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, actual, 1)
	assert.Equal(t, `CREATE TABLE config
(
    id    bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY
);`, actual[0].Content)
}

func Test_ParseBundle_Multi(t *testing.T) {
	input := `
---- 0001 desc1
CREATE TABLE config1 (id int PRIMARY KEY);
---- 0002 desc2
CREATE TABLE config2 (id int PRIMARY KEY);
---- 0003 desc3
CREATE TABLE config3 (id int PRIMARY KEY);
`
	actual, err := ParseBundle(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, actual, 3)
	for i, s := range actual {
		assert.Equal(t, []string{"0001", "0002", "0003"}[i], s.Version)
		assert.Equal(t, []string{"desc1", "desc2", "desc3"}[i], s.Description)
		assert.Equal(t, Checksum(s.Content), s.Checksum)
	}
}

func Test_ParseBundle_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"content before header", "SELECT 1;\n---- 0001 a\nSELECT 2;", ErrInvalidSegment},
		{"header without version", "----   \nSELECT 1;", ErrInvalidHeader},
		{"header without description", "---- 0001\nSELECT 1;", ErrEmptyDescription},
		{"empty script", "---- 0001 a\n\n---- 0002 b\nSELECT 1;", ErrEmptyScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBundle(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func Test_Bundle_SortsAndRejectsDuplicates(t *testing.T) {
	scripts, err := Bundle("---- 0002 b\nSELECT 2;\n---- 0001 a\nSELECT 1;").Load()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "0001", scripts[0].Version)

	_, err = Bundle("---- 0001 a\nSELECT 1;\n---- 0001 b\nSELECT 2;").Load()
	assert.Equal(t, DuplicateVersionError{Version: "0001"}, err)
}
