package frontmatter

import (
	"reflect"
	"strings"
	"testing"
)

func TestRead_HeaderAndBody(t *testing.T) {
	input := "---\ntitle: Hello\ntags:\n  - go\n  - notes\nstatus: sprout\n---\n\n# Hello\nBody text."
	h, body := Read(input)

	if got := h.Keys(); !reflect.DeepEqual(got, []string{"title", "tags", "status"}) {
		t.Fatalf("keys = %v", got)
	}
	if v, _ := h.Get("title"); v != "Hello" {
		t.Errorf("title = %v, want Hello", v)
	}
	tags, _ := h.Get("tags")
	if !reflect.DeepEqual(tags, []any{"go", "notes"}) {
		t.Errorf("tags = %#v", tags)
	}
	if body != "# Hello\nBody text." {
		t.Errorf("body = %q", body)
	}
}

func TestRead_NoHeader(t *testing.T) {
	input := "# Just a heading\nSome text.\n"
	h, body := Read(input)
	if len(h) != 0 {
		t.Errorf("expected empty header, got %v", h)
	}
	if body != input {
		t.Errorf("body = %q, want input unchanged", body)
	}
}

func TestRead_InvalidYAMLYieldsEmptyHeader(t *testing.T) {
	h, body := Read("---\n: invalid: yaml: {{{\n---\nBody\n")
	if len(h) != 0 {
		t.Errorf("expected empty header on invalid YAML, got %v", h)
	}
	if body != "Body" {
		t.Errorf("body = %q", body)
	}
}

func TestRead_ScalarHeaderIsNotAMapping(t *testing.T) {
	h, body := Read("---\njust a string\n---\nBody")
	if len(h) != 0 {
		t.Errorf("expected empty header, got %v", h)
	}
	if body != "Body" {
		t.Errorf("body = %q", body)
	}
}

func TestRead_UnterminatedHeader(t *testing.T) {
	input := "---\ntitle: x\nno closing line"
	h, body := Read(input)
	if len(h) != 0 || body != input {
		t.Errorf("Read(%q) = %v, %q", input, h, body)
	}
}

func TestRead_TimestampStaysString(t *testing.T) {
	h, _ := Read("---\ncreated: 2024-01-01T10:00:00\n---\nx")
	v, _ := h.Get("created")
	if _, ok := v.(string); !ok {
		t.Errorf("created decoded as %T, want string", v)
	}
}

func TestWrite_EmptyHeaderReturnsBody(t *testing.T) {
	out, err := Write(nil, "plain body")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out != "plain body" {
		t.Errorf("out = %q", out)
	}
}

func TestWrite_PreservesOrderAndUnicode(t *testing.T) {
	h := Header{
		{Key: "created", Value: "2024-01-01T10:00:00Z"},
		{Key: "title", Value: "读书笔记"},
		{Key: "tags", Value: []string{"readwise", "阅读"}},
	}
	out, err := Write(h, "Body")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "---\ncreated: \"2024-01-01T10:00:00Z\"\ntitle: 读书笔记\ntags:\n  - readwise\n  - 阅读\n---\n\nBody"
	if out != want {
		t.Errorf("Write =\n%s\nwant\n%s", out, want)
	}
	if strings.Index(out, "created") > strings.Index(out, "title") {
		t.Error("field order not preserved")
	}
}

func TestRoundTrip(t *testing.T) {
	h := Header{
		{Key: "created", Value: "2024-01-01T10:00:00Z"},
		{Key: "updated", Value: "2024-02-01T10:00:00Z"},
		{Key: "title", Value: "短标题"},
		{Key: "author", Value: ""},
		{Key: "status", Value: "sprout"},
		{Key: "type", Value: "reading"},
		{Key: "tags", Value: []any{"readwise", "go"}},
		{Key: "description", Value: "摘要"},
		{Key: "source", Value: "https://example.com"},
		{Key: "rating", Value: 5},
	}
	body := "# Heading\n\nParagraph."

	text, err := Write(h, body)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	gotH, gotBody := Read(text)
	if !reflect.DeepEqual(gotH, h) {
		t.Errorf("header round-trip:\n got %#v\nwant %#v", gotH, h)
	}
	if gotBody != body {
		t.Errorf("body round-trip: %q", gotBody)
	}

	again, err := Write(gotH, gotBody)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if again != text {
		t.Errorf("text round-trip differs:\n%s\n---vs---\n%s", again, text)
	}
}
