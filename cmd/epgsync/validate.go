// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/version"
)

// runValidate checks a YAML configuration file with the same strict loader
// the sync uses, including environment overrides.
func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		_, _ = fmt.Fprintln(stderr, "")
		_, _ = fmt.Fprintln(stderr, "Usage:")
		_, _ = fmt.Fprintln(stderr, "  epgsync validate -f epgsync.yaml")
		return exitUsage
	}

	if _, err := config.NewLoader(file, version.Version).Load(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n", file)
		_, _ = fmt.Fprintf(stderr, "  %v\n", err)
		return exitFailure
	}

	_, _ = fmt.Fprintf(stdout, "✓ %s is valid\n", file)
	return exitOK
}
