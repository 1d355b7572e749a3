// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by sync spans.
const (
	SourceURLKey      = "source.url"
	SourceTierKey     = "source.tier"
	SourceAttemptsKey = "source.attempts"

	EPGChannelsKey   = "epg.channels"
	EPGProgrammesKey = "epg.programmes"
	EPGUnresolvedKey = "epg.unresolved_channels"
	EPGRepairKey     = "epg.repair_action"

	ChecksumKey = "checksum"

	JobIDKey      = "job.id"
	JobOutcomeKey = "job.outcome"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SourceAttributes describes the mirror a document came from.
func SourceAttributes(url, tier string, attempts int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if url != "" {
		attrs = append(attrs, attribute.String(SourceURLKey, url))
	}
	if tier != "" {
		attrs = append(attrs, attribute.String(SourceTierKey, tier))
	}
	return append(attrs, attribute.Int(SourceAttemptsKey, attempts))
}

// EPGAttributes describes a transformed document.
func EPGAttributes(channels, programmes, unresolved int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(EPGChannelsKey, channels),
		attribute.Int(EPGProgrammesKey, programmes),
		attribute.Int(EPGUnresolvedKey, unresolved),
	}
}

// JobAttributes describes a finished run.
func JobAttributes(jobID, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobOutcomeKey, outcome),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
