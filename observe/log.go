package observe

import (
	"context"

	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
)

// LogObserver writes one structured line per event.
type LogObserver struct {
	log logger.Logger
}

// NewLogObserver returns an observer that logs through log. A nil logger discards output.
func NewLogObserver(log logger.Logger) *LogObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &LogObserver{log: log}
}

// scoped returns a logger carrying the execution ID, taken from ctx when the
// executor put it there.
func (o *LogObserver) scoped(ctx context.Context, executionID string) logger.Logger {
	if _, ok := logger.ExecutionIDFromContext(ctx); ok || executionID == "" {
		return o.log.WithContext(ctx)
	}
	return o.log.WithFields(map[string]any{logger.FieldExecutionID: executionID})
}

func (o *LogObserver) OnAttempt(ctx context.Context, ev AttemptEvent) {
	log := o.scoped(ctx, ev.ExecutionID)
	var event logger.LogEvent
	switch ev.Outcome.Kind {
	case classify.Success:
		event = log.Debug()
	case classify.Retryable, classify.AuthExpired:
		event = log.Warn()
	default:
		event = log.Error()
	}

	event = event.
		Str("method", ev.Method).
		Str("url", ev.URL).
		Int("attempt", ev.Ordinal).
		Str("outcome", ev.Outcome.Kind.String()).
		Str("reason", ev.Outcome.Reason).
		Dur("duration", ev.Duration).
		Bool("refreshed", ev.Refreshed)
	if ev.Outcome.StatusCode != 0 {
		event = event.Int("status", ev.Outcome.StatusCode)
	}
	if ev.Outcome.Err != nil {
		event = event.Err(ev.Outcome.Err)
	}
	if ev.Backoff > 0 {
		event = event.Dur("backoff", ev.Backoff)
	}
	event.Msg("Attempt finished")
}

func (o *LogObserver) OnRefresh(ctx context.Context, ev RefreshEvent) {
	log := o.scoped(ctx, ev.ExecutionID)
	if ev.Err != nil {
		log.Error().
			Dur("duration", ev.Duration).
			Err(ev.Err).
			Msg("Credential refresh failed")
		return
	}
	log.Info().
		Dur("duration", ev.Duration).
		Msg("Credential refreshed")
}

func (o *LogObserver) OnFinish(ctx context.Context, ev FinishEvent) {
	log := o.scoped(ctx, ev.ExecutionID)
	event := log.Info()
	if ev.Err != nil {
		event = log.Error().Err(ev.Err)
	}
	event.
		Str("method", ev.Method).
		Str("url", ev.URL).
		Str("state", ev.State).
		Int("attempts", ev.Attempts).
		Bool("refreshed", ev.Refreshed).
		Dur("elapsed", ev.Duration).
		Msg("Execution finished")
}
