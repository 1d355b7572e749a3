// SPDX-License-Identifier: MIT

// Package fetch downloads the EPG feed from an ordered list of mirrors.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Fetcher performs single GET requests against a mirror.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a Fetcher. The client's Timeout bounds each attempt.
func NewFetcher(client *http.Client, userAgent string, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &Fetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// Fetch downloads rawURL and returns the payload as UTF-8 text.
// Every failure is wrapped in ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	text, err := f.fetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrFetch, redact(rawURL), err)
	}
	return text, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if isGzipURL(rawURL) {
		// Some mirrors send .gz files with Content-Encoding: gzip, in which
		// case the transport has already inflated the body.
		inflated := resp.Uncompressed && !bytes.HasPrefix(body, gzipMagic)
		if !inflated {
			body, err = gunzip(body, f.maxBytes)
			if err != nil {
				return "", err
			}
		}
	}

	text, err := toUTF8(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyPayload
	}
	return text, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	return data, nil
}

func gunzip(data []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer func() { _ = zr.Close() }()

	out, err := readLimited(zr, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	return out, nil
}

// isGzipURL reports whether the URL path names a gzip file. Query strings
// and fragments are ignored.
func isGzipURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".gz")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".gz")
}

// redact strips credentials from a URL for logs and error messages.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	return u.String()
}
