package scriptx

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Savepointer is implemented by executors whose target spells savepoints
// differently from standard SQL. An executor wrapping another one hides it,
// so backends also carry it in Backend.Savepoints.
type Savepointer interface {
	Savepoint(name string) string
	RollbackToSavepoint(name string) string
}

// BatchExecutor splits a script at separator lines and executes the batches in order
type BatchExecutor struct {
	// Separator matches the boundary between batches. Nil executes the script as one batch
	Separator *regexp.Regexp
	// TrimSemicolon drops a trailing ';' from each batch, except after a PL/SQL END
	TrimSemicolon bool
	// SavepointFormat and RollbackFormat take the savepoint name. Empty means standard SQL
	SavepointFormat string
	RollbackFormat  string
}

// Execute runs every batch of script on db. The first rejected batch aborts the script.
func (e BatchExecutor) Execute(ctx context.Context, db Execer, script Script) error {
	for i, batch := range e.Split(script.Content) {
		if _, err := db.ExecContext(ctx, batch); err != nil {
			return ExecutionError{
				Version:     script.Version,
				Description: script.Description,
				Unit:        i,
				Err:         errors.WithStack(err),
			}
		}
	}
	return nil
}

// Split returns the non blank batches of content
func (e BatchExecutor) Split(content string) []string {
	parts := []string{content}
	if e.Separator != nil {
		parts = e.Separator.Split(content, -1)
	}

	var batches []string
	for _, part := range parts {
		batch := strings.TrimSpace(part)
		if e.TrimSemicolon && strings.HasSuffix(batch, ";") && !endsPLSQLBlock(batch) {
			batch = strings.TrimSpace(strings.TrimSuffix(batch, ";"))
		}
		if batch == "" {
			continue
		}
		batches = append(batches, batch)
	}
	return batches
}

func (e BatchExecutor) Savepoint(name string) string {
	if e.SavepointFormat == "" {
		return "SAVEPOINT " + name
	}
	return fmt.Sprintf(e.SavepointFormat, name)
}

func (e BatchExecutor) RollbackToSavepoint(name string) string {
	if e.RollbackFormat == "" {
		return "ROLLBACK TO SAVEPOINT " + name
	}
	return fmt.Sprintf(e.RollbackFormat, name)
}

var plsqlEnd = regexp.MustCompile(`(?i)\bEND(\s+\w+)?\s*;$`)

func endsPLSQLBlock(batch string) bool {
	return plsqlEnd.MatchString(batch)
}
