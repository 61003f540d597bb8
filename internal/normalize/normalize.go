// Package normalize maps arbitrary note headers onto the canonical schema.
package normalize

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/starford/trevanbox/internal/frontmatter"
	"github.com/starford/trevanbox/internal/models"
)

// TimeLayout is the format used for created/updated stamps.
const TimeLayout = time.RFC3339

// Options configures a Normalizer.
type Options struct {
	DefaultStatus models.Status
	DefaultType   models.NoteType
	Directories   []models.DirectoryMapping
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Normalizer cleans headers. It holds no mutable state.
type Normalizer struct {
	defaultStatus models.Status
	defaultType   models.NoteType
	dirs          map[string]models.DirectoryMapping
	now           func() time.Time
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		defaultStatus: opts.DefaultStatus,
		defaultType:   opts.DefaultType,
		dirs:          make(map[string]models.DirectoryMapping, len(opts.Directories)),
		now:           opts.Now,
	}
	if !n.defaultStatus.Valid() {
		n.defaultStatus = models.StatusSprout
	}
	if !n.defaultType.Valid() {
		n.defaultType = models.TypeNote
	}
	if n.now == nil {
		n.now = time.Now
	}
	for _, d := range opts.Directories {
		n.dirs[d.Name] = d
	}
	return n
}

// Mapping returns the directory mapping for sourceDir, matched on its base name.
func (n *Normalizer) Mapping(sourceDir string) (models.DirectoryMapping, bool) {
	m, ok := n.dirs[filepath.Base(sourceDir)]
	return m, ok
}

// Clean normalizes header for a note imported from sourceDir. It accepts any
// header shape and never fails.
func (n *Normalizer) Clean(header frontmatter.Header, sourceDir string) models.Metadata {
	now := n.now().Format(TimeLayout)
	mapping, mapped := n.Mapping(sourceDir)

	m := models.Metadata{
		Created:     now,
		Updated:     now,
		Title:       stringField(header, models.FieldTitle),
		Author:      stringField(header, models.FieldAuthor),
		Source:      stringField(header, models.FieldSource),
		Description: stringField(header, models.FieldDescription),
		Status:      n.defaultStatus,
		Type:        n.defaultType,
	}

	if v, ok := header.Get(models.FieldCreated); ok && v != nil {
		m.Created = stringify(v)
	}

	if v, ok := header.Get(models.FieldStatus); ok {
		if s, isStr := v.(string); isStr && models.Status(s).Valid() {
			m.Status = models.Status(s)
		}
	}

	m.Type = n.resolveType(header, mapping, mapped)
	m.Tags = tagList(header)

	if mapped && mapping.Tag != "" && !containsExact(m.Tags, mapping.Tag) {
		m.Tags = append([]string{mapping.Tag}, m.Tags...)
	}

	if v, ok := header.Get(models.FieldURL); ok && truthy(v) {
		m.URL = stringify(v)
	}
	if v, ok := header.Get(models.FieldArea); ok && truthy(v) {
		m.Area = stringify(v)
	}

	for _, f := range header {
		if !models.IsCanonical(f.Key) {
			m.Extra = append(m.Extra, f)
		}
	}
	return m
}

func (n *Normalizer) resolveType(header frontmatter.Header, mapping models.DirectoryMapping, mapped bool) models.NoteType {
	if v, ok := header.Get(models.FieldType); ok {
		if s, isStr := v.(string); isStr && models.NoteType(s).Valid() {
			return models.NoteType(s)
		}
	}
	if mapped && mapping.Type.Valid() {
		return mapping.Type
	}
	return n.defaultType
}

// tagList coerces the tags field: absent or null is empty, a bare string is a
// single tag, a list passes through with its elements stringified.
func tagList(header frontmatter.Header) []string {
	v, ok := header.Get(models.FieldTags)
	if !ok || v == nil {
		return []string{}
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(t)}
	}
}

func stringField(header frontmatter.Header, key string) string {
	v, ok := header.Get(key)
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func containsExact(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
