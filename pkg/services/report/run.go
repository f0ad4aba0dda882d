package report

import (
	"errors"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/rs/zerolog"
)

// run tracks the stage of one request. Stages only move forward.
type run struct {
	id      string
	stage   domain.Stage
	logger  zerolog.Logger
	started time.Time
}

func (r *run) advance(next domain.Stage) {
	if !r.stage.CanAdvance(next) {
		r.logger.Error().
			Str("stage", string(r.stage)).
			Str("next", string(next)).
			Msg("invalid report stage transition")
		return
	}
	r.logger.Debug().
		Str("from", string(r.stage)).
		Str("stage", string(next)).
		Msg("report stage")
	r.stage = next
}

// fail tags err with the stage it surfaced in and ends the run. Errors that
// carry no kind are reported as DataUnavailable at Querying and ExportError
// anywhere else.
func (r *run) fail(err error) *domain.PipelineError {
	fallback := domain.KindExportError
	if r.stage == domain.StageQuerying {
		fallback = domain.KindDataUnavailable
	}

	stage := r.stage
	var existing *domain.PipelineError
	if errors.As(err, &existing) && existing.Stage != "" {
		stage = existing.Stage
	}
	pe := domain.WithStage(err, stage, fallback)

	r.logger.Error().
		Err(pe.Err).
		Str("stage", string(pe.Stage)).
		Str("kind", string(pe.Kind)).
		Dur("elapsed", time.Since(r.started)).
		Msg("report failed")
	r.advance(domain.StageFailed)
	return pe
}
