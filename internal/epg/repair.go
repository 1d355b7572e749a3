// SPDX-License-Identifier: MIT

package epg

import "strings"

const (
	// RootTag is the XMLTV document element.
	RootTag = "tv"
	// ChildTag is the repeated element a truncated feed is cut back to.
	ChildTag = "programme"
	// Declaration is prepended to documents that lack one.
	Declaration = `<?xml version="1.0" encoding="UTF-8"?>`
)

var (
	rootClose    = "</" + RootTag + ">"
	childClose   = "</" + ChildTag + ">"
	channelClose = "</channel>"
)

// RepairAction describes what Repair did to a document.
type RepairAction string

const (
	RepairUnchanged            RepairAction = "unchanged"
	RepairTruncatedAfterChild  RepairAction = "truncated_after_child"
	RepairTruncatedBeforeChild RepairAction = "truncated_before_child"
	RepairClosed               RepairAction = "closed"
	RepairRebuilt              RepairAction = "rebuilt"
)

// Repaired is the result of Repair.
type Repaired struct {
	Text             string
	Action           RepairAction
	DeclarationAdded bool
}

// Changed reports whether Text differs from the input.
func (r Repaired) Changed() bool {
	return r.Action != RepairUnchanged || r.DeclarationAdded
}

// Repair restores a well-formed XMLTV document from a feed that was cut off
// mid-transfer. It only ever drops trailing content and appends a closing
// </tv>; it never invents channels or programmes.
//
// A document whose trimmed text already ends in </tv> is returned as is.
// Otherwise the text is cut after the last </programme>, or, when no
// programme was completed, before the last <programme opening tag. A feed
// cut inside its channel list keeps its complete channels. Without a
// usable <tv> opening tag nothing can be salvaged and an empty guide is
// returned. Repair never fails.
func Repair(doc string) Repaired {
	trimmed := strings.TrimSpace(doc)
	if strings.HasSuffix(trimmed, rootClose) {
		return Repaired{Text: doc, Action: RepairUnchanged}
	}

	rootOpen := indexOpenTag(trimmed, RootTag)
	rootEnd := -1
	if rootOpen >= 0 {
		if gt := strings.IndexByte(trimmed[rootOpen:], '>'); gt >= 0 {
			rootEnd = rootOpen + gt + 1
		}
	}
	if rootEnd < 0 {
		return Repaired{
			Text:             Declaration + "\n<" + RootTag + ">\n" + rootClose,
			Action:           RepairRebuilt,
			DeclarationAdded: true,
		}
	}

	var (
		out    string
		action RepairAction
	)
	switch {
	case strings.LastIndex(trimmed, childClose) >= rootEnd:
		i := strings.LastIndex(trimmed, childClose)
		out, action = trimmed[:i+len(childClose)], RepairTruncatedAfterChild
	case lastIndexOpenTag(trimmed, ChildTag) >= rootEnd:
		out, action = trimmed[:lastIndexOpenTag(trimmed, ChildTag)], RepairTruncatedBeforeChild
	case strings.LastIndex(trimmed, channelClose) >= rootEnd:
		i := strings.LastIndex(trimmed, channelClose)
		out, action = trimmed[:i+len(channelClose)], RepairClosed
	default:
		out, action = trimmed[:rootEnd], RepairClosed
	}
	out += "\n" + rootClose

	res := Repaired{Text: out, Action: action}
	if !strings.HasPrefix(out, "<?xml") && !strings.HasPrefix(out, "<"+RootTag) {
		res.Text = Declaration + "\n" + out
		res.DeclarationAdded = true
	}
	return res
}

// indexOpenTag returns the index of the first <name opening tag, skipping
// longer names that merely share the prefix.
func indexOpenTag(s, name string) int {
	needle := "<" + name
	offset := 0
	for {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return -1
		}
		at := offset + i
		if isTagBoundary(s, at+len(needle)) {
			return at
		}
		offset = at + len(needle)
	}
}

// lastIndexOpenTag is indexOpenTag searching backwards. A tag cut right
// after its name counts as an opening tag.
func lastIndexOpenTag(s, name string) int {
	needle := "<" + name
	end := len(s)
	for end > 0 {
		at := strings.LastIndex(s[:end], needle)
		if at < 0 {
			return -1
		}
		if isTagBoundary(s, at+len(needle)) {
			return at
		}
		end = at
	}
	return -1
}

func isTagBoundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	switch s[i] {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}
