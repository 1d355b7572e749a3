// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Programme is one entry of a guide query response.
type Programme struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

// GuideResponse is the body of a filtered guide query.
type GuideResponse struct {
	Channel string      `json:"channel_name"`
	Date    string      `json:"date"`
	Items   []Programme `json:"epg_data"`
}

// loadProgrammes reads the persisted JSON programme list.
func loadProgrammes(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// filterGuide selects the programmes of channel starting on date
// (YYYY-MM-DD). Channel names match exactly after NFC normalization, so a
// query typed with precomposed characters finds a decomposed display name.
// Empty filters match everything.
func filterGuide(programmes []map[string]any, channel, date string) []Programme {
	day := strings.ReplaceAll(date, "-", "")
	channel = norm.NFC.String(channel)
	out := make([]Programme, 0)
	for _, p := range programmes {
		if channel != "" && norm.NFC.String(textOf(p["@channel"])) != channel {
			continue
		}
		start := textOf(p["@start"])
		if day != "" && !strings.HasPrefix(start, day) {
			continue
		}
		out = append(out, Programme{
			Start: clockTime(start),
			End:   clockTime(textOf(p["@stop"])),
			Title: textOf(p["title"]),
			Desc:  textOf(p["desc"]),
		})
	}
	return out
}

// textOf flattens a converted XML value to its text: strings as is, the
// "#text" of an element with attributes, the first entry of a list.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return textOf(t["#text"])
	case []any:
		if len(t) > 0 {
			return textOf(t[0])
		}
	}
	return ""
}

// clockTime turns an XMLTV timestamp ("20240825093000 +0800") into "09:30".
// Values that do not look like a timestamp are returned unchanged.
func clockTime(ts string) string {
	if len(ts) < 12 {
		return ts
	}
	for _, c := range ts[:12] {
		if c < '0' || c > '9' {
			return ts
		}
	}
	return ts[8:10] + ":" + ts[10:12]
}
