// SPDX-License-Identifier: MIT

// Package persist writes the synced guide to disk.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/epg"
	xglog "github.com/ManuGH/epgsync/internal/log"
)

// ErrPersist is returned when an output file cannot be written.
var ErrPersist = errors.New("persist output")

// Output is one synced document in all of its on-disk forms.
type Output struct {
	// XML is the repaired document text.
	XML string
	// Programmes is the transformed programme list.
	Programmes []any
	// Checksum is the fingerprint of XML, written last.
	Checksum string
}

// Writer persists Outputs to a fixed set of paths.
type Writer struct {
	paths config.OutputPaths
	perm  os.FileMode
}

// NewWriter returns a Writer for paths.
func NewWriter(paths config.OutputPaths) *Writer {
	return &Writer{paths: paths, perm: 0o644}
}

// Paths returns the files the writer produces, in write order.
func (w *Writer) Paths() []string {
	return w.paths.List()
}

// Write stores the XML text, its gzip encoding, the JSON programme list and
// finally the checksum. Each file is replaced atomically. The first failure
// stops the remaining writes; files already replaced stay in place, but the
// checksum is only updated once everything else is on disk.
func (w *Writer) Write(ctx context.Context, out Output) error {
	steps := []struct {
		path  string
		write func(io.Writer) error
	}{
		{w.paths.XML, func(f io.Writer) error {
			_, err := io.WriteString(f, out.XML)
			return err
		}},
		{w.paths.Gzip, func(f io.Writer) error { return writeGzip(f, out.XML) }},
		{w.paths.JSON, func(f io.Writer) error { return epg.EncodeJSON(f, out.Programmes) }},
		{w.paths.Checksum, func(f io.Writer) error {
			_, err := io.WriteString(f, out.Checksum)
			return err
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w %s: %w", ErrPersist, s.path, err)
		}
		if err := w.writeFile(ctx, s.path, s.write); err != nil {
			return fmt.Errorf("%w %s: %w", ErrPersist, s.path, err)
		}
	}
	return nil
}

func (w *Writer) writeFile(ctx context.Context, path string, write func(io.Writer) error) error {
	logger := xglog.FromContext(ctx)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(w.perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := write(pendingFile); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace: %w", err)
	}

	logger.Debug().Str(xglog.FieldEvent, "persist.file_written").Str(xglog.FieldPath, path).Msg("output file written")
	return nil
}

func writeGzip(w io.Writer, text string) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(zw, text); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
