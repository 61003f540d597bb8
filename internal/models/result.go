package models

import (
	"time"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/frontmatter"
)

// MetadataChange records the header before and after processing.
type MetadataChange struct {
	Old frontmatter.Header
	New frontmatter.Header
}

// Changes describes what processing did to a note. The zero value means the
// note was already up to date.
type Changes struct {
	Metadata    *MetadataChange
	Description string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return c.Metadata == nil && c.Description == ""
}

// ProcessingResult is the outcome of one file's pipeline run.
type ProcessingResult struct {
	File    string
	Success bool
	Changes Changes
	Err     error
	Kind    apperr.Kind
	Moved   bool
	DryRun  bool
	Charset string
	Title   string
	Tags    []string
	// Degraded is set when the model gave nothing usable and defaults were kept.
	Degraded bool
	// Checksum is the SHA-256 of the bytes on disk after the write, empty
	// when nothing was written.
	Checksum    string
	ProcessedAt time.Time
}

// Fail marks r as failed with err.
func (r *ProcessingResult) Fail(err error) {
	r.Success = false
	r.Err = err
	r.Kind = apperr.KindOf(err)
}

// ErrorString returns the failure cause or an empty string.
func (r ProcessingResult) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// DirectoryReport aggregates the results for one import directory.
type DirectoryReport struct {
	Dir     string
	Results []ProcessingResult
	// Err is set when the directory itself could not be walked.
	Err error
}

// Succeeded counts successful results.
func (d DirectoryReport) Succeeded() int {
	n := 0
	for _, r := range d.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Moved counts results relocated to the review queue.
func (d DirectoryReport) Moved() int {
	n := 0
	for _, r := range d.Results {
		if r.Moved {
			n++
		}
	}
	return n
}

// Failed counts failed results.
func (d DirectoryReport) Failed() int {
	return len(d.Results) - d.Succeeded()
}
