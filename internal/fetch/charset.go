// SPDX-License-Identifier: MIT

package fetch

import (
	"bytes"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
	xmlDeclRe    = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
	xmlEncAttrRe = regexp.MustCompile(`encoding\s*=\s*["']([^"']+)["']`)
)

// toUTF8 converts a payload to UTF-8 text. Valid UTF-8 is passed through
// (minus a BOM). Anything else is decoded using the charset announced by
// the Content-Type header or the XML declaration, and the declaration is
// rewritten to say UTF-8.
func toUTF8(body []byte, contentType string) (string, error) {
	if utf8.Valid(body) {
		return string(bytes.TrimPrefix(body, utf8BOM)), nil
	}

	enc, name := detectEncoding(body, contentType)
	if enc == nil {
		return "", fmt.Errorf("payload is not valid UTF-8 and no usable charset was announced")
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s payload: %w", name, err)
	}
	decoded = bytes.TrimPrefix(decoded, utf8BOM)
	return rewriteDeclaredEncoding(string(decoded)), nil
}

func detectEncoding(body []byte, contentType string) (encoding.Encoding, string) {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if label := params["charset"]; label != "" {
				if enc, name := charset.Lookup(label); enc != nil && enc != unicode.UTF8 {
					return enc, name
				}
			}
		}
	}

	if decl := xmlDeclRe.Find(body); decl != nil {
		if m := xmlEncAttrRe.FindSubmatch(decl); m != nil {
			if enc, name := charset.Lookup(string(m[1])); enc != nil && enc != unicode.UTF8 {
				return enc, name
			}
		}
	}

	// BOM sniffing covers UTF-16 feeds without a declaration.
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if certain && enc != unicode.UTF8 {
		return enc, name
	}
	return nil, ""
}

func rewriteDeclaredEncoding(text string) string {
	loc := xmlDeclRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	decl := text[loc[0]:loc[1]]
	if !xmlEncAttrRe.MatchString(decl) {
		return text
	}
	fixed := xmlEncAttrRe.ReplaceAllString(decl, `encoding="UTF-8"`)
	return strings.Replace(text, decl, fixed, 1)
}
