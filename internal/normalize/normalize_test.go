package normalize

import (
	"reflect"
	"testing"
	"time"

	"github.com/starford/trevanbox/internal/frontmatter"
	"github.com/starford/trevanbox/internal/models"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	return New(Options{
		DefaultStatus: models.StatusSprout,
		DefaultType:   models.TypeNote,
		Directories: []models.DirectoryMapping{
			{Name: "readwise", Tag: "readwise", Type: models.TypeReading},
			{Name: "follow", Tag: "follow", Type: models.TypeArticle},
		},
		Now: func() time.Time { return fixedNow },
	})
}

func TestClean_DefaultsOnEmptyHeader(t *testing.T) {
	m := testNormalizer().Clean(nil, "/vault/inbox-drop")

	stamp := fixedNow.Format(TimeLayout)
	if m.Created != stamp || m.Updated != stamp {
		t.Errorf("created/updated = %q/%q, want %q", m.Created, m.Updated, stamp)
	}
	if m.Status != models.StatusSprout {
		t.Errorf("status = %q, want sprout", m.Status)
	}
	if m.Type != models.TypeNote {
		t.Errorf("type = %q, want note", m.Type)
	}
	if m.Tags == nil || len(m.Tags) != 0 {
		t.Errorf("tags = %#v, want empty non-nil", m.Tags)
	}
}

func TestClean_KeepsCreatedRefreshesUpdated(t *testing.T) {
	h := frontmatter.Header{
		{Key: "created", Value: "2020-05-05T08:00:00"},
		{Key: "updated", Value: "2020-05-06T08:00:00"},
	}
	m := testNormalizer().Clean(h, "manual")
	if m.Created != "2020-05-05T08:00:00" {
		t.Errorf("created = %q", m.Created)
	}
	if m.Updated != fixedNow.Format(TimeLayout) {
		t.Errorf("updated = %q, want refreshed", m.Updated)
	}
}

func TestClean_InvalidStatusReplaced(t *testing.T) {
	for _, status := range []any{"draft", "", 3, nil} {
		h := frontmatter.Header{{Key: "status", Value: status}}
		if got := testNormalizer().Clean(h, "x").Status; got != models.StatusSprout {
			t.Errorf("status %v -> %q, want sprout", status, got)
		}
	}
	h := frontmatter.Header{{Key: "status", Value: "evergreen"}}
	if got := testNormalizer().Clean(h, "x").Status; got != models.StatusEvergreen {
		t.Errorf("valid status not kept: %q", got)
	}
}

func TestClean_TypeResolution(t *testing.T) {
	n := testNormalizer()

	kept := n.Clean(frontmatter.Header{{Key: "type", Value: "journal"}}, "readwise")
	if kept.Type != models.TypeJournal {
		t.Errorf("valid type not kept: %q", kept.Type)
	}

	fromDir := n.Clean(frontmatter.Header{{Key: "type", Value: "podcast"}}, "/vault/readwise/")
	if fromDir.Type != models.TypeReading {
		t.Errorf("invalid type should fall back to directory default, got %q", fromDir.Type)
	}

	generic := n.Clean(nil, "unknown")
	if generic.Type != models.TypeNote {
		t.Errorf("unmapped directory should default to note, got %q", generic.Type)
	}
}

func TestClean_TagShapes(t *testing.T) {
	cases := []struct {
		name string
		h    frontmatter.Header
		want []string
	}{
		{"absent", nil, []string{}},
		{"null", frontmatter.Header{{Key: "tags", Value: nil}}, []string{}},
		{"bare string", frontmatter.Header{{Key: "tags", Value: "golang"}}, []string{"golang"}},
		{"list", frontmatter.Header{{Key: "tags", Value: []any{"a", 2, "c"}}}, []string{"a", "2", "c"}},
	}
	for _, c := range cases {
		got := testNormalizer().Clean(c.h, "elsewhere").Tags
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: tags = %#v, want %#v", c.name, got, c.want)
		}
	}
}

func TestClean_ProvenanceTag(t *testing.T) {
	n := testNormalizer()

	m := n.Clean(frontmatter.Header{{Key: "tags", Value: []any{"books"}}}, "readwise")
	if !reflect.DeepEqual(m.Tags, []string{"readwise", "books"}) {
		t.Errorf("tags = %v, want provenance tag first", m.Tags)
	}

	m = n.Clean(frontmatter.Header{{Key: "tags", Value: "readwise"}}, "readwise")
	if !reflect.DeepEqual(m.Tags, []string{"readwise"}) {
		t.Errorf("tags = %v, want [readwise]", m.Tags)
	}

	// Exact, case-sensitive match only.
	m = n.Clean(frontmatter.Header{{Key: "tags", Value: []any{"Readwise"}}}, "readwise")
	if !reflect.DeepEqual(m.Tags, []string{"readwise", "Readwise"}) {
		t.Errorf("tags = %v", m.Tags)
	}
}

func TestClean_CanonicalOrderWithExtrasLast(t *testing.T) {
	h := frontmatter.Header{
		{Key: "rating", Value: 4},
		{Key: "tags", Value: []any{"x"}},
		{Key: "title", Value: "T"},
		{Key: "url", Value: "https://example.com"},
		{Key: "aliases", Value: []any{"t"}},
		{Key: "area", Value: ""},
	}
	got := testNormalizer().Clean(h, "follow").Header().Keys()
	want := []string{
		"created", "updated", "title", "author", "status", "type", "tags",
		"description", "source", "url", "rating", "aliases",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v\nwant %v", got, want)
	}
}

func TestClean_CopiesTextFields(t *testing.T) {
	h := frontmatter.Header{
		{Key: "title", Value: "标题"},
		{Key: "author", Value: "Ann"},
		{Key: "source", Value: "rss"},
		{Key: "description", Value: nil},
	}
	m := testNormalizer().Clean(h, "x")
	if m.Title != "标题" || m.Author != "Ann" || m.Source != "rss" || m.Description != "" {
		t.Errorf("unexpected text fields: %+v", m)
	}
}
