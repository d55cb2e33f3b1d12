package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/pktables/internal/literal"
)

const (
	DefaultMaxAttempts = 5
	DefaultInitialWait = time.Second
	DefaultTimeout     = 5 * time.Minute
)

var (
	// ErrStepFailed is matched by every StepFailedError.
	ErrStepFailed = errors.New("step failed")
	// ErrPipelineFailed marks a run that produced no table.
	ErrPipelineFailed = errors.New("pipeline failed")
	// ErrNoRefine is returned when Verify rejects an answer without saying why.
	ErrNoRefine = errors.New("verify rejected result and no refine request provided")
)

type LLMClient interface {
	Chat(ctx context.Context, request LLMRequest) (LLMResponse, error)
}

type RunOptions struct {
	MaxAttempts  int
	StepAttempts map[string]int
	InitialWait  time.Duration
	Timeout      time.Duration
}

func (o RunOptions) attemptsFor(step string) int {
	if attempts, ok := o.StepAttempts[step]; ok && attempts > 0 {
		return attempts
	}
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Runner carries what every step execution needs. Sleep defaults to a
// context-aware timer and is replaced in tests.
type Runner struct {
	Client  LLMClient
	Options RunOptions
	Sleep   func(ctx context.Context, d time.Duration) error
}

func (r Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StepFailedError reports a step that exhausted its attempts.
type StepFailedError struct {
	Step     string
	Attempts int
	Reason   string
	Err      error
	log      []attemptRecord
}

func (e *StepFailedError) Error() string {
	message := fmt.Sprintf("%s: %s after %d attempt(s)", ErrStepFailed, e.Step, e.Attempts)
	if e.Reason != "" {
		message += ": " + e.Reason
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *StepFailedError) Is(target error) bool { return target == ErrStepFailed }

func (e *StepFailedError) Unwrap() error { return e.Err }

// Debug renders every attempt of the failed step.
func (e *StepFailedError) Debug() string {
	return renderAttemptDebug(e.log)
}

type attemptRecord struct {
	Request  LLMRequest
	Response LLMResponse
	Refine   *RefineRequest
	Err      error
	Accepted bool
}

// Execute drives one step until Verify accepts an answer or the attempt
// budget is spent. Each rejection appends the model's answer and the
// corrective message to the conversation, so the next attempt sees both.
// Waits between attempts start at InitialWait and double. Transport errors
// consume an attempt without adding feedback.
func Execute[T any](ctx context.Context, run *Run, step Step[T]) (Result[T], error) {
	name := step.Name()
	result := Result[T]{Name: name}
	runner := run.runner

	request, err := step.Prompt(ctx)
	if err != nil {
		return result, fmt.Errorf("%s: prompt: %w", name, err)
	}

	var (
		history   []Message
		attempts  []attemptRecord
		lastRaw   string
		lastErr   error
		reason    string
		truncated bool
		granted   bool
	)
	limit := runner.Options.attemptsFor(name)
	wait := runner.Options.InitialWait
	timeout := runner.Options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			if sleepErr := runner.sleep(ctx, wait); sleepErr != nil {
				lastErr = sleepErr
				break
			}
			wait *= 2
		}
		result.Attempts = attempt
		attemptRequest := request
		attemptRequest.History = cloneMessages(history)
		run.emit(StepEvent{Step: name, Status: StatusAttempt, Attempt: attempt})

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		response, chatErr := runner.Client.Chat(attemptCtx, attemptRequest)
		cancel()
		if chatErr != nil {
			lastErr = chatErr
			reason = "llm chat failed"
			attempts = append(attempts, attemptRecord{Request: attemptRequest, Err: chatErr})
			run.emit(StepEvent{Step: name, Status: StatusRetry, Attempt: attempt, Reason: reason, Err: chatErr})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		lastErr = nil
		result.TokenUsage += response.TokenUsage
		lastRaw = response.RawText
		truncated = response.Truncated
		record := attemptRecord{Request: attemptRequest, Response: response}

		accepted, output, refine, verifyErr := step.Verify(ctx, response)
		if verifyErr != nil {
			attempts = append(attempts, record)
			run.record(name, false, lastRaw, result.TokenUsage, truncated, result.Attempts)
			run.emit(StepEvent{Step: name, Status: StatusFailed, Attempt: attempt, Reasoning: lastRaw, TokenUsage: result.TokenUsage, Err: verifyErr})
			return result, fmt.Errorf("%s: verify: %w", name, verifyErr)
		}
		if accepted {
			record.Accepted = true
			result.Success = true
			result.Output = output
			result.RawReasoning = lastRaw
			result.CleanedReasoning = literal.CleanReasoning(lastRaw)
			result.Truncated = truncated
			run.record(name, true, lastRaw, result.TokenUsage, truncated, result.Attempts)
			run.emit(StepEvent{
				Step:          name,
				Status:        StatusSucceeded,
				Attempt:       attempt,
				OutputSummary: summarize(output),
				Reasoning:     result.CleanedReasoning,
				TokenUsage:    result.TokenUsage,
			})
			return result, nil
		}
		if refine == nil {
			attempts = append(attempts, record)
			lastErr = ErrNoRefine
			break
		}
		record.Refine = refine
		attempts = append(attempts, record)
		reason = refine.Reason
		history = append(history,
			Message{Role: RoleAssistant, Content: response.RawText},
			Message{Role: RoleUser, Content: formatRefine(refine.UserPromptDelta)},
		)
		run.emit(StepEvent{Step: name, Status: StatusRetry, Attempt: attempt, Reason: fmt.Sprintf("%s: %s", refine.Kind, refine.Reason)})
		if refine.Kind == RefineAlgebra {
			if granted {
				break
			}
			granted = true
			limit = attempt + 1
		}
	}

	result.RawReasoning = lastRaw
	result.CleanedReasoning = literal.CleanReasoning(lastRaw)
	result.Truncated = truncated
	run.record(name, false, lastRaw, result.TokenUsage, truncated, result.Attempts)
	failure := &StepFailedError{Step: name, Attempts: result.Attempts, Reason: reason, Err: lastErr, log: attempts}
	run.emit(StepEvent{Step: name, Status: StatusFailed, Attempt: result.Attempts, Reasoning: lastRaw, TokenUsage: result.TokenUsage, Reason: reason, Err: failure})
	return result, failure
}

func summarize(output any) string {
	if stringer, ok := output.(fmt.Stringer); ok {
		return truncate(stringer.String(), 280)
	}
	return truncate(fmt.Sprintf("%v", output), 280)
}

func renderAttemptDebug(attempts []attemptRecord) string {
	if len(attempts) == 0 {
		return "no attempts recorded"
	}
	var sb strings.Builder
	for idx, attempt := range attempts {
		sb.WriteString(fmt.Sprintf("Attempt %d:\n", idx+1))
		sb.WriteString(fmt.Sprintf("  Model: %s\n", attempt.Request.Model))
		sb.WriteString(fmt.Sprintf("  MaxTokens: %d Temp: %.2f Turns: %d\n", attempt.Request.MaxTokens, attempt.Request.Temperature, len(attempt.Request.Messages())))
		sb.WriteString("  User Prompt:\n")
		sb.WriteString(indentBlock(truncate(attempt.Request.UserPrompt, 1200)))
		sb.WriteString("\n")
		if attempt.Err != nil {
			sb.WriteString("  Error: ")
			sb.WriteString(attempt.Err.Error())
			sb.WriteString("\n\n")
			continue
		}
		sb.WriteString("  Response:\n")
		sb.WriteString(indentBlock(truncate(attempt.Response.RawText, 1200)))
		sb.WriteString("\n")
		if attempt.Refine != nil {
			sb.WriteString("  Refine Suggestion:\n")
			sb.WriteString(indentBlock(truncate(attempt.Refine.UserPromptDelta, 600)))
			sb.WriteString("\n  Refine Reason: ")
			sb.WriteString(attempt.Refine.Kind.String() + ": " + attempt.Refine.Reason)
			sb.WriteString("\n")
		}
		if attempt.Accepted {
			sb.WriteString("  Status: accepted\n")
		} else {
			sb.WriteString("  Status: rejected\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func indentBlock(block string) string {
	if block == "" {
		return "    <empty>"
	}
	lines := strings.Split(block, "\n")
	for idx, line := range lines {
		lines[idx] = "    " + line
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func formatRefine(delta string) string {
	trimmed := strings.TrimSpace(delta)
	if trimmed == "" {
		return "REFINE:\n<empty>"
	}
	return "REFINE:\n" + trimmed
}
