package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/convtrack-backend/internal/ingest"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

const conversionPollJobName = "conversion-poll"

type conversionPoller interface {
	Poll(ctx context.Context) (*ingest.PollSummary, error)
}

// ConversionPollJobParams configures the scheduled conversion pull.
type ConversionPollJobParams struct {
	Logger *logger.Logger
	Poller conversionPoller
}

// NewConversionPollJob wraps the pull adapter as a cron job. Record level
// failures stay in the summary; only an aborted run fails the job.
func NewConversionPollJob(params ConversionPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Poller == nil {
		return nil, fmt.Errorf("poller required")
	}
	return &conversionPollJob{logg: params.Logger, poller: params.Poller}, nil
}

type conversionPollJob struct {
	logg   *logger.Logger
	poller conversionPoller
}

func (j *conversionPollJob) Name() string { return conversionPollJobName }

func (j *conversionPollJob) Run(ctx context.Context) error {
	summary, err := j.poller.Poll(ctx)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			j.logg.Warn(ctx, "conversion poll aborted, retrying next cycle")
		}
		return fmt.Errorf("conversion poll: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"source":   summary.Source,
		"total":    summary.Total,
		"new":      summary.New,
		"skipped":  summary.Skipped,
		"recorded": summary.Recorded,
		"errors":   summary.Errors,
	})
	j.logg.Info(logCtx, "conversion poll complete")
	return nil
}
