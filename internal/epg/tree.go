// SPDX-License-Identifier: MIT

package epg

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

const (
	attrPrefix = "@"
	textKey    = "#text"
)

// Map is a JSON object that remembers insertion order, so converted
// programmes keep the attribute and child order of the source document.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. Existing keys keep their position.
func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of keys.
func (m *Map) Len() int { return len(m.keys) }

// MarshalJSON encodes the map with its keys in insertion order and without
// HTML escaping.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, m.values[k]); err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// ParseTree parses an XML document into nested Maps using the usual
// XML-to-dict conventions: attributes become "@name" keys, character data
// becomes "#text", an element holding only text collapses to a string, an
// empty element becomes nil and repeated children become []any. A child
// that occurs once stays a single value.
func ParseTree(doc string) (*Map, error) {
	root, err := xmlquery.ParseWithOptions(strings.NewReader(doc), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict: true,
			Entity: xml.HTMLEntity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	out := NewMap()
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			addChild(out, elementName(n), convertNode(n))
		}
	}
	return out, nil
}

func convertNode(n *xmlquery.Node) any {
	m := NewMap()
	for _, a := range n.Attr {
		m.Set(attrPrefix+attrName(a), a.Value)
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			addChild(m, elementName(c), convertNode(c))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(c.Data)
		}
	}

	if t := strings.TrimSpace(text.String()); t != "" {
		if m.Len() == 0 {
			return t
		}
		m.Set(textKey, t)
	}
	if m.Len() == 0 {
		return nil
	}
	return m
}

func addChild(m *Map, name string, value any) {
	existing, ok := m.Get(name)
	if !ok {
		m.Set(name, value)
		return
	}
	if list, isList := existing.([]any); isList {
		m.Set(name, append(list, value))
		return
	}
	m.Set(name, []any{existing, value})
}

func elementName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func attrName(a xmlquery.Attr) string {
	if a.Name.Space != "" {
		return a.Name.Space + ":" + a.Name.Local
	}
	return a.Name.Local
}
