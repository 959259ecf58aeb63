package scriptx

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const bundleHeader = "---- "

var (
	ErrInvalidSegment   = errors.New("content outside of a script segment")
	ErrInvalidHeader    = errors.New("invalid header (expected: '---- <version> <description>')")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyScript      = errors.New("empty script")
)

type bundle string

// Bundle returns a catalog over a single text holding several scripts, each
// introduced by a header line of the form
//
//	---- 202501010000 create table posts
func Bundle(content string) Catalog {
	return bundle(content)
}

func (b bundle) Load() ([]Script, error) {
	scripts, err := ParseBundle(strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	return sortScripts(scripts)
}

// ParseBundle splits r into scripts at header lines. Scripts keep file order;
// leading and trailing blank lines of each script are trimmed.
func ParseBundle(r io.Reader) ([]Script, error) {
	sc := bufio.NewScanner(r)

	const maxLine = 2 * 1024 * 1024
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		scripts     []Script
		version     string
		description string
		lines       []string
		inSegment   bool
		lineNo      int
		headerLine  int
	)

	flush := func() error {
		if !inSegment {
			return nil
		}
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		if content == "" {
			return fmt.Errorf("%w: version %s (line %d)", ErrEmptyScript, version, headerLine)
		}
		scripts = append(scripts, NewScript(version, description, content))
		lines = lines[:0]
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimLeft(line, " \t")

		if strings.HasPrefix(trimmed, bundleHeader) {
			if err := flush(); err != nil {
				return nil, err
			}
			fields := strings.Fields(strings.TrimPrefix(trimmed, bundleHeader))
			if len(fields) == 0 {
				return nil, fmt.Errorf("%w: got %q (line %d)", ErrInvalidHeader, trimmed, lineNo)
			}
			version = fields[0]
			description = strings.Join(fields[1:], " ")
			if description == "" {
				return nil, fmt.Errorf("%w: version %s (line %d)", ErrEmptyDescription, version, lineNo)
			}
			inSegment = true
			headerLine = lineNo
			continue
		}

		if !inSegment {
			if strings.TrimSpace(line) != "" {
				return nil, fmt.Errorf("%w (line %d)", ErrInvalidSegment, lineNo)
			}
			continue
		}
		lines = append(lines, line)
	}

	if err := sc.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return scripts, nil
}
