package pipeline

import (
	"go.uber.org/zap"
)

type StepStatus string

const (
	StatusAttempt   StepStatus = "attempt"
	StatusRetry     StepStatus = "retry"
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
	StatusAborted   StepStatus = "aborted"
)

// StepEvent is emitted as a run progresses.
type StepEvent struct {
	RunID         string
	Step          string
	Status        StepStatus
	Attempt       int
	OutputSummary string
	Reasoning     string
	TokenUsage    int
	Reason        string
	Err           error
}

type Observer func(StepEvent)

// MultiObserver fans an event out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	return func(event StepEvent) {
		for _, observer := range observers {
			if observer != nil {
				observer(event)
			}
		}
	}
}

// LogObserver writes step events as structured log lines.
func LogObserver(logger *zap.Logger) Observer {
	return func(event StepEvent) {
		fields := []zap.Field{
			zap.String("run_id", event.RunID),
			zap.String("step", event.Step),
			zap.String("status", string(event.Status)),
		}
		if event.Attempt > 0 {
			fields = append(fields, zap.Int("attempt", event.Attempt))
		}
		if event.TokenUsage > 0 {
			fields = append(fields, zap.Int("tokens", event.TokenUsage))
		}
		if event.Reason != "" {
			fields = append(fields, zap.String("reason", event.Reason))
		}
		switch event.Status {
		case StatusAttempt:
			logger.Debug("step attempt", fields...)
		case StatusRetry:
			logger.Info("step retry", append(fields, zap.Error(event.Err))...)
		case StatusSucceeded:
			logger.Info("step succeeded", append(fields, zap.String("output", event.OutputSummary))...)
			logger.Debug("step reasoning", zap.String("run_id", event.RunID), zap.String("step", event.Step), zap.String("reasoning", event.Reasoning))
		case StatusSkipped:
			logger.Info("step skipped", fields...)
		case StatusFailed, StatusAborted:
			logger.Warn("step failed", append(fields, zap.Error(event.Err))...)
		}
	}
}
