package scriptx

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestDirCatalog_Load(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"202501020000__add_col.sql": "ALTER TABLE t ADD c INT;",
		"202501010000__init.sql":    "CREATE TABLE t (id INT);\n",
		"README.md":                 "not a script",
		"notes.txt":                 "ignored",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old.sql"), 0o755))

	scripts, err := Dir(dir).Load()
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	assert.Equal(t, "202501010000", scripts[0].Version)
	assert.Equal(t, "init", scripts[0].Description)
	assert.Equal(t, "CREATE TABLE t (id INT);\n", scripts[0].Content)
	assert.Equal(t, Checksum("CREATE TABLE t (id INT);\n"), scripts[0].Checksum)

	assert.Equal(t, "202501020000", scripts[1].Version)
	assert.Equal(t, "add_col", scripts[1].Description)
}

func TestDirCatalog_LoadIsIdempotent(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"0003__c.sql": "SELECT 3;",
		"0001__a.sql": "SELECT 1;",
		"0002__b.sql": "SELECT 2;",
	})
	first, err := Dir(dir).Load()
	require.NoError(t, err)
	second, err := Dir(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDirCatalog_SortsLexicographically(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/10__ten.sql": {Data: []byte("SELECT 10;")},
		"migrations/9__nine.sql": {Data: []byte("SELECT 9;")},
		"migrations/02__two.sql": {Data: []byte("SELECT 2;")},
	}
	scripts, err := FS(fsys, "migrations").Load()
	require.NoError(t, err)

	var versions []string
	for _, s := range scripts {
		versions = append(versions, s.Version)
	}
	assert.Equal(t, []string{"02", "10", "9"}, versions)
}

func TestDirCatalog_MalformedName(t *testing.T) {
	for _, name := range []string{
		"202501010000_init.sql",
		"202501010000__init__again.sql",
		"__init.sql",
		"202501010000__.sql",
	} {
		t.Run(name, func(t *testing.T) {
			dir := writeScripts(t, map[string]string{
				"202501010000__ok.sql": "SELECT 1;",
				name:                   "SELECT 2;",
			})
			scripts, err := Dir(dir).Load()
			assert.Nil(t, scripts)

			var malformed MalformedNameError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, name, malformed.Name)
		})
	}
}

func TestDirCatalog_MissingDirectory(t *testing.T) {
	_, err := Dir(filepath.Join(t.TempDir(), "missing")).Load()

	var discovery DiscoveryError
	require.True(t, errors.As(err, &discovery))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFileName(t *testing.T) {
	version, description, err := ParseFileName("202501010000__create_users.sql")
	require.NoError(t, err)
	assert.Equal(t, "202501010000", version)
	assert.Equal(t, "create_users", description)

	_, _, err = ParseFileName("202501010000__create_users.txt")
	assert.Error(t, err)
}

func TestScripts_Duplicates(t *testing.T) {
	_, err := Scripts(NewScript("1", "a", "SELECT 1;"), NewScript("1", "b", "SELECT 2;")).Load()
	assert.Equal(t, DuplicateVersionError{Version: "1"}, err)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Checksum(""))
	assert.Len(t, Checksum("SELECT 1;"), 64)
	assert.NotEqual(t, Checksum("SELECT 1;"), Checksum("SELECT 1; "))
}
