package scriptx

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	scriptExt     = ".sql"
	nameDelimiter = "__"
)

// Catalog produces the full, version ordered sequence of scripts.
//
// Versions are compared as plain strings, so a version scheme must sort
// lexicographically in apply order (fixed-width timestamps such as
// 202501010000 do, unpadded integers such as 9 and 10 do not).
type Catalog interface {
	Load() ([]Script, error)
}

// DirCatalog loads <version>__<description>.sql files from a directory.
type DirCatalog struct {
	fsys fs.FS
	dir  string
	name string
}

// Dir returns a catalog reading scripts from the directory at path
func Dir(path string) *DirCatalog {
	return &DirCatalog{fsys: os.DirFS(path), dir: ".", name: path}
}

// FS returns a catalog reading scripts from dir inside fsys, e.g. an embed.FS
func FS(fsys fs.FS, dir string) *DirCatalog {
	return &DirCatalog{fsys: fsys, dir: dir, name: dir}
}

// Load reads every script file in the directory. Entries without the .sql
// extension are ignored; a single malformed name fails the whole load.
func (c *DirCatalog) Load() ([]Script, error) {
	entries, err := fs.ReadDir(c.fsys, c.dir)
	if err != nil {
		return nil, DiscoveryError{Path: c.name, Err: errors.WithStack(err)}
	}

	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), scriptExt) {
			continue
		}
		version, description, err := ParseFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := fs.ReadFile(c.fsys, path.Join(c.dir, entry.Name()))
		if err != nil {
			return nil, DiscoveryError{Path: path.Join(c.name, entry.Name()), Err: errors.WithStack(err)}
		}
		scripts = append(scripts, NewScript(version, description, string(content)))
	}
	return sortScripts(scripts)
}

// ParseFileName splits a <version>__<description>.sql file name
func ParseFileName(name string) (version, description string, err error) {
	if !strings.HasSuffix(name, scriptExt) {
		return "", "", MalformedNameError{Name: name}
	}
	parts := strings.Split(strings.TrimSuffix(name, scriptExt), nameDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", MalformedNameError{Name: name}
	}
	return parts[0], parts[1], nil
}

type scriptList []Script

// Scripts returns a catalog over an in-memory list of scripts
func Scripts(scripts ...Script) Catalog {
	return scriptList(scripts)
}

func (l scriptList) Load() ([]Script, error) {
	scripts := make([]Script, len(l))
	copy(scripts, l)
	return sortScripts(scripts)
}

func sortScripts(scripts []Script) ([]Script, error) {
	sort.Stable(byScriptVersion(scripts))
	if err := validateDuplicates(scripts); err != nil {
		return nil, err
	}
	return scripts, nil
}
