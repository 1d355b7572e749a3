// SPDX-License-Identifier: MIT

package epg

import "errors"

var (
	// ErrMissingRootElement is returned when the document has no <tv> root.
	ErrMissingRootElement = errors.New("invalid XMLTV: missing tv element")

	// ErrMissingProgrammeElement is returned when <tv> has no <programme> child.
	ErrMissingProgrammeElement = errors.New("invalid XMLTV: missing programme element")

	// ErrMalformedDocument is returned when the document cannot be parsed at all.
	ErrMalformedDocument = errors.New("invalid XMLTV: malformed document")
)
