// SPDX-License-Identifier: MIT

package epg

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	channelTag     = "channel"
	displayNameTag = "display-name"
	idAttr         = attrPrefix + "id"
	channelAttr    = attrPrefix + "channel"
)

// Stats summarises a transformed document.
type Stats struct {
	Channels   int
	Programmes int
	// Unresolved counts programme channel references that kept their raw id.
	Unresolved int
}

// Transform converts an XMLTV document into the list of its programmes.
// Each programme's "@channel" id is replaced by the display name of the
// channel with that "@id". References that match no channel, or a channel
// without a display name, keep the original id. Programme order follows the
// document.
func Transform(doc string) ([]any, Stats, error) {
	tree, err := ParseTree(doc)
	if err != nil {
		return nil, Stats{}, err
	}

	rootVal, ok := tree.Get(RootTag)
	if !ok {
		return nil, Stats{}, fmt.Errorf("%w: <%s> not found", ErrMissingRootElement, RootTag)
	}
	root, ok := rootVal.(*Map)
	if !ok {
		return nil, Stats{}, fmt.Errorf("%w: <%s> has no children", ErrMissingProgrammeElement, RootTag)
	}
	progVal, ok := root.Get(ChildTag)
	if !ok {
		return nil, Stats{}, fmt.Errorf("%w: no <%s> under <%s>", ErrMissingProgrammeElement, ChildTag, RootTag)
	}

	var channels []any
	if v, ok := root.Get(channelTag); ok {
		channels = asList(v)
	}
	programmes := asList(progVal)
	names := indexChannels(channels)

	stats := Stats{Channels: len(channels), Programmes: len(programmes)}
	for _, p := range programmes {
		pm, ok := p.(*Map)
		if !ok {
			continue
		}
		ref, ok := pm.Get(channelAttr)
		if !ok {
			continue
		}
		id, ok := ref.(string)
		if !ok {
			continue
		}
		if name, found := names[id]; found {
			pm.Set(channelAttr, name)
		} else {
			stats.Unresolved++
		}
	}
	return programmes, stats, nil
}

// indexChannels maps channel ids to display names. The first channel with a
// given id wins, even when it has no display name: later duplicates never
// supply one.
func indexChannels(channels []any) map[string]string {
	names := make(map[string]string, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		cm, ok := c.(*Map)
		if !ok {
			continue
		}
		idVal, ok := cm.Get(idAttr)
		if !ok {
			continue
		}
		id, ok := idVal.(string)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		dn, ok := cm.Get(displayNameTag)
		if !ok {
			continue
		}
		if name, ok := displayName(dn); ok {
			names[id] = name
		}
	}
	return names
}

func displayName(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case *Map:
		txt, ok := t.Get(textKey)
		if !ok {
			return "", false
		}
		s, ok := txt.(string)
		return s, ok
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return displayName(t[0])
	}
	return "", false
}

func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// EncodeJSON writes v as indented JSON. Non-ASCII characters are written
// literally and HTML characters are not escaped.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
