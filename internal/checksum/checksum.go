// SPDX-License-Identifier: MIT

// Package checksum decides whether a freshly fetched feed differs from the
// last persisted one.
package checksum

import (
	"crypto/md5" // #nosec G501 -- change fingerprint, not an integrity check
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrChecksumRead is reported when the previous checksum exists but cannot
// be read. The detector still asks for an update.
var ErrChecksumRead = errors.New("read previous checksum")

// Sum returns the lowercase hex MD5 of the UTF-8 bytes of text.
func Sum(text string) string {
	sum := md5.Sum([]byte(text)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Decision is the detector's verdict.
type Decision struct {
	Update   bool
	Previous string // empty when there was no readable previous checksum
	Current  string
}

// Detector compares documents against the checksum stored at Path.
type Detector struct {
	Path string
}

// NewDetector returns a Detector reading the checksum file at path.
func NewDetector(path string) *Detector {
	return &Detector{Path: path}
}

// NeedsUpdate hashes text and compares it with the stored checksum.
// A missing file means update. Any other read failure also means update and
// is returned wrapped in ErrChecksumRead next to the decision, so the
// caller can log it without treating it as fatal.
func (d *Detector) NeedsUpdate(text string) (Decision, error) {
	dec := Decision{Update: true, Current: Sum(text)}

	prev, err := d.Previous()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dec, nil
		}
		return dec, err
	}

	dec.Previous = prev
	dec.Update = prev != dec.Current
	return dec, nil
}

// Previous returns the stored checksum, trimmed of surrounding whitespace.
func (d *Detector) Previous() (string, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("%w %s: %w", ErrChecksumRead, d.Path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
