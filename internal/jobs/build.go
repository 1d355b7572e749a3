// SPDX-License-Identifier: MIT

package jobs

import (
	"github.com/ManuGH/epgsync/internal/checksum"
	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/fetch"
	"github.com/ManuGH/epgsync/internal/persist"
	"github.com/ManuGH/epgsync/internal/platform/httpx"
	"github.com/ManuGH/epgsync/internal/publish"
)

// NewDeps builds the production pipeline from cfg. rec may be nil.
func NewDeps(cfg config.AppConfig, rec Recorder) Deps {
	client := httpx.NewTracedClient(cfg.RequestTimeout)
	fetcher := fetch.NewFetcher(client, cfg.UserAgent, cfg.MaxBodyBytes)
	paths := cfg.Output.Paths()

	return Deps{
		Selector: fetch.NewSelector(
			fetcher,
			fetch.Sources(cfg.Sources.Primary, cfg.Sources.Backup),
			cfg.MaxRetries,
			cfg.RetryBaseDelay,
			fetch.WithRequestRate(cfg.RequestRate),
		),
		Detector:  checksum.NewDetector(paths.Checksum),
		Persister: persist.NewWriter(paths),
		Publisher: publish.New(cfg.Publish),
		History:   rec,
	}
}
