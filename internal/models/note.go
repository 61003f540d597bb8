// Package models defines the domain types for the prehandler.
package models

import (
	"slices"

	"github.com/starford/trevanbox/internal/frontmatter"
)

// Status is the maturity of a note.
type Status string

const (
	StatusSprout     Status = "sprout"
	StatusEvergreen  Status = "evergreen"
	StatusDischarged Status = "discharged"
)

// Statuses lists every valid Status.
var Statuses = []Status{StatusSprout, StatusEvergreen, StatusDischarged}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// NoteType classifies what kind of content a note holds.
type NoteType string

const (
	TypeProject   NoteType = "project"
	TypeArea      NoteType = "area"
	TypeResource  NoteType = "resource"
	TypeJournal   NoteType = "journal"
	TypeNote      NoteType = "note"
	TypeArticle   NoteType = "article"
	TypeExcerpt   NoteType = "excerpt"
	TypeReading   NoteType = "reading"
	TypeReference NoteType = "reference"
	TypeSync      NoteType = "sync"
	TypeAI        NoteType = "ai"
)

// NoteTypes lists every valid NoteType.
var NoteTypes = []NoteType{
	TypeProject, TypeArea, TypeResource, TypeJournal, TypeNote,
	TypeArticle, TypeExcerpt, TypeReading, TypeReference, TypeSync, TypeAI,
}

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	return slices.Contains(NoteTypes, t)
}

// Canonical field names, in emission order.
const (
	FieldCreated     = "created"
	FieldUpdated     = "updated"
	FieldTitle       = "title"
	FieldAuthor      = "author"
	FieldStatus      = "status"
	FieldType        = "type"
	FieldTags        = "tags"
	FieldDescription = "description"
	FieldSource      = "source"
	FieldURL         = "url"
	FieldArea        = "area"
)

// CanonicalFields is the fixed header order. url and area are optional and
// only emitted when set.
var CanonicalFields = []string{
	FieldCreated, FieldUpdated, FieldTitle, FieldAuthor, FieldStatus,
	FieldType, FieldTags, FieldDescription, FieldSource, FieldURL, FieldArea,
}

// IsCanonical reports whether key belongs to the canonical schema.
func IsCanonical(key string) bool {
	return slices.Contains(CanonicalFields, key)
}

// Metadata is a note header normalized to the canonical schema.
type Metadata struct {
	Created     string
	Updated     string
	Title       string
	Author      string
	Status      Status
	Type        NoteType
	Tags        []string
	Description string
	Source      string
	URL         string
	Area        string

	// Extra holds non-canonical input fields in their original order.
	Extra frontmatter.Header
}

// Header renders m in canonical order followed by the extra fields.
func (m Metadata) Header() frontmatter.Header {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	h := frontmatter.Header{
		{Key: FieldCreated, Value: m.Created},
		{Key: FieldUpdated, Value: m.Updated},
		{Key: FieldTitle, Value: m.Title},
		{Key: FieldAuthor, Value: m.Author},
		{Key: FieldStatus, Value: string(m.Status)},
		{Key: FieldType, Value: string(m.Type)},
		{Key: FieldTags, Value: tags},
		{Key: FieldDescription, Value: m.Description},
		{Key: FieldSource, Value: m.Source},
	}
	if m.URL != "" {
		h = append(h, frontmatter.Field{Key: FieldURL, Value: m.URL})
	}
	if m.Area != "" {
		h = append(h, frontmatter.Field{Key: FieldArea, Value: m.Area})
	}
	return append(h, m.Extra...)
}

// DirectoryMapping ties an import directory to the provenance tag and the
// default note type applied to everything found under it.
type DirectoryMapping struct {
	Name string   `yaml:"name" toml:"name" json:"name"`
	Tag  string   `yaml:"tag" toml:"tag" json:"tag"`
	Type NoteType `yaml:"type" toml:"type" json:"type"`
}

// Document is a note file as read from disk for one pipeline run.
type Document struct {
	Path    string
	Charset string
	Header  frontmatter.Header
	Body    string
}
