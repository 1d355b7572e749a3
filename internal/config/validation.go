// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/epgsync/internal/validate"
)

var allowedSchemes = []string{"http", "https"}

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	all := cfg.Sources.All()
	if len(all) == 0 {
		v.AddError("Sources", "at least one primary or backup source is required", all)
	}
	for i, u := range cfg.Sources.Primary {
		v.URL(fmt.Sprintf("Sources.Primary[%d]", i), u, allowedSchemes)
	}
	for i, u := range cfg.Sources.Backup {
		v.URL(fmt.Sprintf("Sources.Backup[%d]", i), u, allowedSchemes)
	}

	v.NotEmpty("Output.XML", cfg.Output.XML)
	v.NotEmpty("Output.Gzip", cfg.Output.Gzip)
	v.NotEmpty("Output.JSON", cfg.Output.JSON)
	v.NotEmpty("Output.Checksum", cfg.Output.Checksum)
	v.Custom("Output", cfg.Output.Paths(), func(val any) error {
		seen := make(map[string]struct{}, 4)
		for _, p := range val.(OutputPaths).List() {
			if _, dup := seen[p]; dup {
				return fmt.Errorf("output paths must be distinct, %q used twice", p)
			}
			seen[p] = struct{}{}
		}
		return nil
	})

	v.Range("MaxRetries", cfg.MaxRetries, 1, 10)
	v.DurationRange("RetryBaseDelay", cfg.RetryBaseDelay, 0, 5*time.Minute)
	v.DurationRange("RequestTimeout", cfg.RequestTimeout, time.Second, 10*time.Minute)
	v.NonNegativeFloat("RequestRate", cfg.RequestRate)
	if cfg.MaxBodyBytes <= 0 {
		v.AddError("MaxBodyBytes", "value must be positive", cfg.MaxBodyBytes)
	}
	if cfg.Interval != 0 {
		v.DurationRange("Interval", cfg.Interval, time.Minute, 7*24*time.Hour)
	}

	if cfg.Publish.Enabled {
		v.NotEmpty("Publish.GitBin", cfg.Publish.GitBin)
		v.NotEmpty("Publish.CommitPrefix", cfg.Publish.CommitPrefix)
	}

	v.ListenAddr("Metrics.Listen", cfg.Metrics.Listen)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
	}

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("LogLevel", err.Error(), cfg.LogLevel)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
