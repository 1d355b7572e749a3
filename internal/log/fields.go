// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldOutcome   = "outcome"

	// Source fields
	FieldURL     = "url"
	FieldTier    = "tier"
	FieldAttempt = "attempt"

	// Output fields
	FieldPath     = "path"
	FieldChecksum = "checksum"
)
