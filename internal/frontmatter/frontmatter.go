// Package frontmatter splits Markdown documents into an ordered YAML header
// and a body, and serializes the inverse.
package frontmatter

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Field is a single header entry. Value holds whatever yaml.v3 decodes into
// an interface{} (string, int, float64, bool, nil, []any, map[string]any).
type Field struct {
	Key   string
	Value any
}

// Header is an ordered frontmatter mapping.
type Header []Field

// Get returns the value stored under key.
func (h Header) Get(key string) (any, bool) {
	for _, f := range h {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present, even with a null value.
func (h Header) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Keys returns the field names in order.
func (h Header) Keys() []string {
	out := make([]string, len(h))
	for i, f := range h {
		out[i] = f.Key
	}
	return out
}

// Map returns an unordered copy of the header.
func (h Header) Map() map[string]any {
	out := make(map[string]any, len(h))
	for _, f := range h {
		out[f.Key] = f.Value
	}
	return out
}

// Read separates a leading YAML block from the Markdown body. Documents that
// do not start with the delimiter are all body. A header that fails to parse,
// or is not a mapping, yields an empty header; Read never fails.
func Read(text string) (Header, string) {
	if !strings.HasPrefix(text, delim) {
		return nil, text
	}

	parts := strings.SplitN(text, delim, 3)
	if len(parts) < 3 {
		return nil, text
	}

	header, ok := decode(strings.TrimSpace(parts[1]))
	if !ok {
		return nil, strings.TrimSpace(parts[2])
	}
	return header, strings.TrimSpace(parts[2])
}

func decode(block string) (Header, bool) {
	if block == "" {
		return nil, true
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, true
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, false
	}

	header := make(Header, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var key string
		if err := root.Content[i].Decode(&key); err != nil {
			return nil, false
		}
		var value any
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, false
		}
		header = append(header, Field{Key: key, Value: value})
	}
	return header, true
}

// Write renders header and body back into a document. An empty header emits
// the body unchanged.
func Write(header Header, body string) (string, error) {
	if len(header) == 0 {
		return body, nil
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range header {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}
		value := &yaml.Node{}
		if err := value.Encode(f.Value); err != nil {
			return "", err
		}
		root.Content = append(root.Content, key, value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	var out strings.Builder
	out.WriteString(delim + "\n")
	out.Write(buf.Bytes())
	out.WriteString(delim + "\n\n")
	out.WriteString(body)
	return out.String(), nil
}
