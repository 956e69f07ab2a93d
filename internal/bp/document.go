package bp

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed configuration document: a tree of keys and values read
// from YAML or JSON text. It is read-only once parsed.
type Document struct {
	root *yaml.Node
}

// ParseDocument parses YAML or JSON text. The top level must be a mapping; an
// empty input yields an empty document.
func ParseDocument(data []byte) (*Document, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse configuration document: %w", err)
	}

	root := &n
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		root = n.Content[0]
	}
	switch {
	case root.Kind == 0:
		return &Document{root: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}, nil
	case root.Kind != yaml.MappingNode:
		return nil, fmt.Errorf("configuration document must be a mapping, got %s", root.Tag)
	}
	return &Document{root: root}, nil
}

// LoadDocument reads and parses a configuration document file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration document %s: %w", path, err)
	}
	return ParseDocument(data)
}

// NewDocument builds a document from in-memory values.
func NewDocument(values map[string]any) (*Document, error) {
	var n yaml.Node
	if err := n.Encode(values); err != nil {
		return nil, fmt.Errorf("failed to encode configuration document: %w", err)
	}
	return &Document{root: &n}, nil
}

// Keys returns the top-level keys in sorted order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.root.Content)/2)
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		keys = append(keys, d.root.Content[i].Value)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present at the top level with a non-null value.
func (d *Document) Has(key string) bool {
	v := d.value(key)
	return v != nil && v.ShortTag() != "!!null"
}

// Present reports whether key appears at the top level, null or not.
func (d *Document) Present(key string) bool {
	return d.value(key) != nil
}

// IsInt reports whether the value under key is a plain integer scalar.
// Floats, quoted numbers and nulls are not.
func (d *Document) IsInt(key string) bool {
	v := d.value(key)
	return v != nil && v.Kind == yaml.ScalarNode && v.ShortTag() == "!!int"
}

// valueTag describes the value under key for error messages.
func (d *Document) valueTag(key string) string {
	v := d.value(key)
	if v == nil {
		return "nothing"
	}
	if v.Kind == yaml.ScalarNode {
		return fmt.Sprintf("%s %q", strings.TrimPrefix(v.ShortTag(), "!!"), v.Value)
	}
	return strings.TrimPrefix(v.ShortTag(), "!!")
}

func (d *Document) value(key string) *yaml.Node {
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		if d.root.Content[i].Value == key {
			return d.root.Content[i+1]
		}
	}
	return nil
}

// Decode copies the document into v. Keys without a matching field are
// ignored and fields without a key keep their current value.
func (d *Document) Decode(v any) error {
	return d.root.Decode(v)
}
