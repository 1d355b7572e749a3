// SPDX-License-Identifier: MIT

package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a single failed attempt. It is retried by the Selector.
	ErrFetch = errors.New("fetch failed")

	// ErrAllSourcesExhausted is returned when every mirror used up its retries.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")

	// ErrEmptyPayload is returned for bodies that are blank after decoding.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrPayloadTooLarge is returned when a body exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrDecompress is returned when a .gz payload cannot be gunzipped.
	ErrDecompress = errors.New("decompress payload")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}
