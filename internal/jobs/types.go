// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"time"

	"github.com/ManuGH/epgsync/internal/checksum"
	"github.com/ManuGH/epgsync/internal/epg"
	"github.com/ManuGH/epgsync/internal/fetch"
	"github.com/ManuGH/epgsync/internal/history"
	"github.com/ManuGH/epgsync/internal/persist"
	"github.com/ManuGH/epgsync/internal/publish"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Status represents the result of one sync run.
type Status struct {
	JobID      string    `json:"job_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`

	SourceURL string `json:"source_url,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Attempts  int    `json:"attempts"`

	Checksum   string           `json:"checksum,omitempty"`
	Repair     epg.RepairAction `json:"repair,omitempty"`
	Channels   int              `json:"channels"`
	Programmes int              `json:"programmes"`
	Unresolved int              `json:"unresolved_channels"`
	Committed  bool             `json:"committed"`

	Stage string `json:"failed_stage,omitempty"`
	Error string `json:"error,omitempty"`
}

// Selector yields the first usable feed document. *fetch.Selector implements it.
type Selector interface {
	Select(ctx context.Context) (*fetch.Result, error)
}

// ChangeDetector decides whether a document differs from the persisted one.
type ChangeDetector interface {
	NeedsUpdate(text string) (checksum.Decision, error)
}

// Persister writes a document and its derived files.
type Persister interface {
	Write(ctx context.Context, out persist.Output) error
	Paths() []string
}

// Recorder stores finished runs. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Deps wires the pipeline stages together.
type Deps struct {
	Selector  Selector
	Detector  ChangeDetector
	Persister Persister
	Publisher publish.Publisher
	// History is optional.
	History Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}
