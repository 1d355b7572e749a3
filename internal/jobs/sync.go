// SPDX-License-Identifier: MIT

// Package jobs runs the feed sync pipeline.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/epgsync/internal/epg"
	"github.com/ManuGH/epgsync/internal/history"
	xglog "github.com/ManuGH/epgsync/internal/log"
	"github.com/ManuGH/epgsync/internal/metrics"
	"github.com/ManuGH/epgsync/internal/persist"
	"github.com/ManuGH/epgsync/internal/publish"
	"github.com/ManuGH/epgsync/internal/telemetry"
)

const tracerName = "github.com/ManuGH/epgsync/internal/jobs"

// Pipeline stage names used in logs, metrics and Status.Stage.
const (
	StageFetch     = "fetch"
	StageTransform = "transform"
	StagePersist   = "persist"
	StagePublish   = "publish"
)

// Sync runs the pipeline once: select a mirror, repair the document, skip
// everything else when its checksum is unchanged, otherwise transform,
// persist and publish. The returned Status is never nil. Errors keep their
// sentinel so callers can classify them with errors.Is.
func Sync(ctx context.Context, deps Deps) (*Status, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Noop{}
	}

	jobID := uuid.NewString()
	ctx = xglog.ContextWithJobID(ctx, jobID)
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "epgsync.sync")
	defer span.End()

	st := &Status{JobID: jobID, StartedAt: now()}
	logger.Info().Str(xglog.FieldEvent, "sync.start").Msg("starting sync")

	err := run(ctx, deps, st)

	st.FinishedAt = now()
	switch {
	case err != nil:
		st.Outcome = OutcomeFailed
		st.Error = err.Error()
		metrics.IncStageFailure(st.Stage)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(st.Stage)...)
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "sync.failed").
			Str(xglog.FieldStage, st.Stage).
			Msg("sync failed")
	case st.Outcome == OutcomeUnchanged:
		logger.Info().
			Str(xglog.FieldEvent, "sync.unchanged").
			Str(xglog.FieldChecksum, st.Checksum).
			Dur("duration", st.FinishedAt.Sub(st.StartedAt)).
			Msg("feed unchanged, nothing to do")
	default:
		st.Outcome = OutcomeUpdated
		logger.Info().
			Str(xglog.FieldEvent, "sync.success").
			Str(xglog.FieldChecksum, st.Checksum).
			Int("programmes", st.Programmes).
			Bool("committed", st.Committed).
			Dur("duration", st.FinishedAt.Sub(st.StartedAt)).
			Msg("sync completed")
	}

	span.SetAttributes(telemetry.JobAttributes(jobID, string(st.Outcome))...)
	metrics.RecordRun(string(st.Outcome), st.FinishedAt.Sub(st.StartedAt), st.FinishedAt)
	record(ctx, deps.History, st)

	return st, err
}

func run(ctx context.Context, deps Deps, st *Status) error {
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	tracer := telemetry.Tracer(tracerName)

	// Fetch.
	st.Stage = StageFetch
	fctx, fspan := tracer.Start(ctx, "epgsync.fetch")
	res, err := deps.Selector.Select(fctx)
	if res != nil {
		st.Attempts = res.Attempts
		st.SourceURL = res.Source.URL
		st.Tier = string(res.Source.Tier)
		fspan.SetAttributes(telemetry.SourceAttributes(st.SourceURL, st.Tier, st.Attempts)...)
	}
	endSpan(fspan, err)
	if err != nil {
		return err
	}

	// Repair before hashing so the checksum always matches the XML on disk.
	repaired := epg.Repair(res.Document)
	st.Repair = repaired.Action
	metrics.RecordRepair(string(repaired.Action))
	if repaired.Changed() {
		logger.Warn().
			Str(xglog.FieldEvent, "xml.repaired").
			Str("action", string(repaired.Action)).
			Bool("declaration_added", repaired.DeclarationAdded).
			Msg("feed was truncated, repaired document")
	}

	dec, err := deps.Detector.NeedsUpdate(repaired.Text)
	if err != nil {
		// Fail open: an unreadable checksum means update.
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "checksum.read_failed").
			Msg("previous checksum unreadable, forcing update")
	}
	st.Checksum = dec.Current
	if !dec.Update {
		st.Stage = ""
		st.Outcome = OutcomeUnchanged
		return nil
	}
	logger.Info().
		Str(xglog.FieldEvent, "checksum.changed").
		Str("previous", dec.Previous).
		Str(xglog.FieldChecksum, dec.Current).
		Msg("feed changed")

	// Transform.
	st.Stage = StageTransform
	// Transform is pure and CPU bound; its span has no children.
	_, tspan := tracer.Start(ctx, "epgsync.transform")
	programmes, stats, err := epg.Transform(repaired.Text)
	tspan.SetAttributes(telemetry.EPGAttributes(stats.Channels, stats.Programmes, stats.Unresolved)...)
	endSpan(tspan, err)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	st.Channels, st.Programmes, st.Unresolved = stats.Channels, stats.Programmes, stats.Unresolved
	metrics.RecordDocument(stats.Channels, stats.Programmes, stats.Unresolved)
	if stats.Unresolved > 0 {
		logger.Info().
			Str(xglog.FieldEvent, "epg.unresolved_channels").
			Int("count", stats.Unresolved).
			Msg("programmes reference unknown channels, keeping raw ids")
	}

	// Persist.
	st.Stage = StagePersist
	pctx, pspan := tracer.Start(ctx, "epgsync.persist")
	err = deps.Persister.Write(pctx, persist.Output{
		XML:        repaired.Text,
		Programmes: programmes,
		Checksum:   dec.Current,
	})
	endSpan(pspan, err)
	if err != nil {
		return err
	}

	// Publish.
	st.Stage = StagePublish
	gctx, gspan := tracer.Start(ctx, "epgsync.publish")
	pub, err := deps.Publisher.Publish(gctx, deps.Persister.Paths())
	st.Committed = pub.Committed
	endSpan(gspan, err)
	if err != nil {
		return err
	}

	st.Stage = ""
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// record stores the run in the ledger. Ledger failures never fail the run.
func record(ctx context.Context, rec Recorder, st *Status) {
	if rec == nil {
		return
	}
	// The run may have ended because ctx was canceled; still record it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := rec.Record(ctx, history.Entry{
		ID:         st.JobID,
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
		Outcome:    string(st.Outcome),
		SourceURL:  st.SourceURL,
		Tier:       st.Tier,
		Attempts:   st.Attempts,
		Checksum:   st.Checksum,
		Channels:   st.Channels,
		Programmes: st.Programmes,
		Repair:     string(st.Repair),
		Error:      st.Error,
	})
	if err != nil {
		xglog.FromContext(ctx).Warn().
			Err(err).
			Str(xglog.FieldEvent, "history.record_failed").
			Msg("failed to record run")
	}
}
