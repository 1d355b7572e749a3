// SPDX-License-Identifier: MIT

package config

import (
	"path/filepath"
	"time"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string

	Sources Sources
	Output  Output

	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	// RequestRate caps outbound requests per second; 0 disables pacing.
	RequestRate  float64
	MaxBodyBytes int64

	// Interval > 0 keeps the process running and syncs on every tick.
	Interval time.Duration

	Publish   Publish
	History   History
	Metrics   Metrics
	Telemetry Telemetry

	LogLevel   string
	LogService string
}

// Sources lists mirror URLs by tier. Primary is consumed before Backup.
type Sources struct {
	Primary []string
	Backup  []string
}

// All returns the priority-ordered list of mirrors.
func (s Sources) All() []string {
	out := make([]string, 0, len(s.Primary)+len(s.Backup))
	out = append(out, s.Primary...)
	return append(out, s.Backup...)
}

// Output names the files written on every successful update.
type Output struct {
	Dir      string
	XML      string
	Gzip     string
	JSON     string
	Checksum string
}

// Paths returns the output file names resolved against Dir.
func (o Output) Paths() OutputPaths {
	return OutputPaths{
		XML:      o.resolve(o.XML),
		Gzip:     o.resolve(o.Gzip),
		JSON:     o.resolve(o.JSON),
		Checksum: o.resolve(o.Checksum),
	}
}

func (o Output) resolve(name string) string {
	if filepath.IsAbs(name) || o.Dir == "" {
		return filepath.Clean(name)
	}
	return filepath.Join(o.Dir, name)
}

// OutputPaths holds resolved output file locations.
type OutputPaths struct {
	XML      string
	Gzip     string
	JSON     string
	Checksum string
}

// List returns the paths in write order.
func (p OutputPaths) List() []string {
	return []string{p.XML, p.Gzip, p.JSON, p.Checksum}
}

// Publish controls the git commit-and-push step.
type Publish struct {
	Enabled      bool
	RepoDir      string
	Remote       string
	Branch       string
	CommitPrefix string
	GitBin       string
}

// History controls the sqlite run ledger. Empty Path disables it.
type History struct {
	Path string
}

// Metrics controls Prometheus exposure.
type Metrics struct {
	// Textfile is written after every run (node_exporter textfile collector).
	Textfile string
	// Listen serves /metrics, /healthz and /status in interval mode.
	Listen string
}

// Telemetry controls OpenTelemetry tracing.
type Telemetry struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig mirrors the YAML layout. Pointer and slice fields distinguish
// "unset" from zero values so that defaults survive partial files.
type FileConfig struct {
	Sources *FileSources `yaml:"sources,omitempty"`
	Output  *FileOutput  `yaml:"output,omitempty"`

	MaxRetries     *int     `yaml:"maxRetries,omitempty"`
	RetryBaseDelay string   `yaml:"retryBaseDelay,omitempty"`
	RequestTimeout string   `yaml:"requestTimeout,omitempty"`
	UserAgent      string   `yaml:"userAgent,omitempty"`
	RequestRate    *float64 `yaml:"requestRate,omitempty"`
	MaxBodyBytes   *int64   `yaml:"maxBodyBytes,omitempty"`
	Interval       string   `yaml:"interval,omitempty"`

	Publish   *FilePublish   `yaml:"publish,omitempty"`
	History   *FileHistory   `yaml:"history,omitempty"`
	Metrics   *FileMetrics   `yaml:"metrics,omitempty"`
	Telemetry *FileTelemetry `yaml:"telemetry,omitempty"`
	Log       *FileLog       `yaml:"log,omitempty"`
}

type FileSources struct {
	Primary []string `yaml:"primary,omitempty"`
	Backup  []string `yaml:"backup,omitempty"`
}

type FileOutput struct {
	Dir      string `yaml:"dir,omitempty"`
	XML      string `yaml:"xml,omitempty"`
	Gzip     string `yaml:"gzip,omitempty"`
	JSON     string `yaml:"json,omitempty"`
	Checksum string `yaml:"checksum,omitempty"`
}

type FilePublish struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	RepoDir      string `yaml:"repoDir,omitempty"`
	Remote       string `yaml:"remote,omitempty"`
	Branch       string `yaml:"branch,omitempty"`
	CommitPrefix string `yaml:"commitPrefix,omitempty"`
	GitBin       string `yaml:"gitBin,omitempty"`
}

type FileHistory struct {
	Path string `yaml:"path,omitempty"`
}

type FileMetrics struct {
	Textfile string `yaml:"textfile,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

type FileLog struct {
	Level   string `yaml:"level,omitempty"`
	Service string `yaml:"service,omitempty"`
}
