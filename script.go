package scriptx

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Script represents a single versioned SQL change script.
type Script struct {
	Version     string
	Description string
	Content     string
	Checksum    string
}

// NewScript returns a Script with its checksum computed from content
func NewScript(version, description, content string) Script {
	return Script{
		Version:     version,
		Description: description,
		Content:     content,
		Checksum:    Checksum(content),
	}
}

// String returns the version and description, as used in log and error messages
func (s Script) String() string {
	return fmt.Sprintf("%s (%s)", s.Version, s.Description)
}

// Record is the entry in the ledger table
type Record struct {
	Version     string
	Description string
	Checksum    string
	AppliedAt   time.Time
}

// Result is the outcome of running one script through the Runner.
type Result struct {
	Script   Script
	Status   Status
	Attempts int
	Duration time.Duration
	Err      error
}

// Success reports whether the script's transaction was committed
func (r Result) Success() bool {
	return r.Status == Applied && r.Err == nil
}

// ScriptInfo pairs a catalog script with its ledger state.
type ScriptInfo struct {
	Status Status
	Script Script
	// Record is nil unless Status is Applied
	Record *Record
}

// Checksum calculates the sha256 of content as lowercase hex
func Checksum(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}
