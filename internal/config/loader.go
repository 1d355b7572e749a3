// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults(l.version)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, fc *FileConfig) error {
	if fc.Sources != nil {
		if fc.Sources.Primary != nil {
			cfg.Sources.Primary = expandAll(fc.Sources.Primary)
		}
		if fc.Sources.Backup != nil {
			cfg.Sources.Backup = expandAll(fc.Sources.Backup)
		}
	}

	if o := fc.Output; o != nil {
		setString(&cfg.Output.Dir, o.Dir)
		setString(&cfg.Output.XML, o.XML)
		setString(&cfg.Output.Gzip, o.Gzip)
		setString(&cfg.Output.JSON, o.JSON)
		setString(&cfg.Output.Checksum, o.Checksum)
	}

	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if err := setDuration(&cfg.RetryBaseDelay, "retryBaseDelay", fc.RetryBaseDelay); err != nil {
		return err
	}
	if err := setDuration(&cfg.RequestTimeout, "requestTimeout", fc.RequestTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.Interval, "interval", fc.Interval); err != nil {
		return err
	}
	setString(&cfg.UserAgent, fc.UserAgent)
	if fc.RequestRate != nil {
		cfg.RequestRate = *fc.RequestRate
	}
	if fc.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *fc.MaxBodyBytes
	}

	if p := fc.Publish; p != nil {
		if p.Enabled != nil {
			cfg.Publish.Enabled = *p.Enabled
		}
		setString(&cfg.Publish.RepoDir, p.RepoDir)
		setString(&cfg.Publish.Remote, p.Remote)
		setString(&cfg.Publish.Branch, p.Branch)
		setString(&cfg.Publish.CommitPrefix, p.CommitPrefix)
		setString(&cfg.Publish.GitBin, p.GitBin)
	}

	if h := fc.History; h != nil {
		setString(&cfg.History.Path, h.Path)
	}

	if m := fc.Metrics; m != nil {
		setString(&cfg.Metrics.Textfile, m.Textfile)
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if t := fc.Telemetry; t != nil {
		if t.Enabled != nil {
			cfg.Telemetry.Enabled = *t.Enabled
		}
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
	}

	if lg := fc.Log; lg != nil {
		setString(&cfg.LogLevel, lg.Level)
		setString(&cfg.LogService, lg.Service)
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Sources.Primary = l.envList("EPGSYNC_PRIMARY_SOURCES", cfg.Sources.Primary)
	cfg.Sources.Backup = l.envList("EPGSYNC_BACKUP_SOURCES", cfg.Sources.Backup)

	cfg.Output.Dir = l.envString("EPGSYNC_OUTPUT_DIR", cfg.Output.Dir)
	cfg.Output.XML = l.envString("EPGSYNC_OUTPUT_XML", cfg.Output.XML)
	cfg.Output.Gzip = l.envString("EPGSYNC_OUTPUT_GZIP", cfg.Output.Gzip)
	cfg.Output.JSON = l.envString("EPGSYNC_OUTPUT_JSON", cfg.Output.JSON)
	cfg.Output.Checksum = l.envString("EPGSYNC_OUTPUT_CHECKSUM", cfg.Output.Checksum)

	cfg.MaxRetries = l.envInt("EPGSYNC_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBaseDelay = l.envDuration("EPGSYNC_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RequestTimeout = l.envDuration("EPGSYNC_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.UserAgent = l.envString("EPGSYNC_USER_AGENT", cfg.UserAgent)
	cfg.RequestRate = l.envFloat("EPGSYNC_REQUEST_RATE", cfg.RequestRate)
	cfg.MaxBodyBytes = l.envInt64("EPGSYNC_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.Interval = l.envDuration("EPGSYNC_INTERVAL", cfg.Interval)

	cfg.Publish.Enabled = l.envBool("EPGSYNC_PUBLISH_ENABLED", cfg.Publish.Enabled)
	cfg.Publish.RepoDir = l.envString("EPGSYNC_PUBLISH_REPO_DIR", cfg.Publish.RepoDir)
	cfg.Publish.Remote = l.envString("EPGSYNC_PUBLISH_REMOTE", cfg.Publish.Remote)
	cfg.Publish.Branch = l.envString("EPGSYNC_PUBLISH_BRANCH", cfg.Publish.Branch)
	cfg.Publish.CommitPrefix = l.envString("EPGSYNC_PUBLISH_COMMIT_PREFIX", cfg.Publish.CommitPrefix)
	cfg.Publish.GitBin = l.envString("EPGSYNC_GIT_BIN", cfg.Publish.GitBin)

	cfg.History.Path = l.envString("EPGSYNC_HISTORY_PATH", cfg.History.Path)

	cfg.Metrics.Textfile = l.envString("EPGSYNC_METRICS_TEXTFILE", cfg.Metrics.Textfile)
	cfg.Metrics.Listen = l.envString("EPGSYNC_METRICS_LISTEN", cfg.Metrics.Listen)

	cfg.Telemetry.Enabled = l.envBool("EPGSYNC_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("EPGSYNC_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("EPGSYNC_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("EPGSYNC_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.LogLevel = l.envString("EPGSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("EPGSYNC_LOG_SERVICE", cfg.LogService)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = expandEnv(v)
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, v, err)
	}
	*dst = d
	return nil
}

func expandAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(expandEnv(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// expandEnv expands environment variables in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
