// SPDX-License-Identifier: MIT

package config

import "time"

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 256 << 20
	DefaultCommitPrefix   = "Auto-sync EPG data"
)

// DefaultPrimarySources and DefaultBackupSources are the public mirrors of
// the upstream feed.
var (
	DefaultPrimarySources = []string{
		"https://raw.githubusercontent.com/sparkssssssssss/epg/main/pp.xml",
		"https://raw.githubusercontent.com/sparkssssssssss/epg/main/pp.xml.gz",
	}
	DefaultBackupSources = []string{
		"https://epg.112114.xyz/pp.xml",
		"https://epg.112114.xyz/pp.xml.gz",
	}
)

func defaults(version string) AppConfig {
	return AppConfig{
		Version: version,
		Sources: Sources{
			Primary: append([]string(nil), DefaultPrimarySources...),
			Backup:  append([]string(nil), DefaultBackupSources...),
		},
		Output: Output{
			Dir:      ".",
			XML:      "index.xml",
			Gzip:     "index.xml.gz",
			JSON:     "index.json",
			Checksum: "md5.txt",
		},
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		Publish: Publish{
			Enabled:      false,
			Remote:       "",
			CommitPrefix: DefaultCommitPrefix,
			GitBin:       "git",
		},
		Telemetry: Telemetry{
			Exporter:     "http",
			SamplingRate: 1.0,
		},
		LogLevel:   "info",
		LogService: "epgsync",
	}
}
