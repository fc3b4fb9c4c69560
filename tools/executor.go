// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry schedule delegated to retry.Policy
// - Error classification logic hidden
// - Per-attempt timeout hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/retry"
)

// Executor provides tool execution with retry and timeout support.
type Executor struct {
	config ToolConfig
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultToolConfig()}
}

// Execute runs a tool with retry logic. Failures are reported in the
// ToolResult; the error return is reserved for context cancellation.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	toolName := tool.Metadata().Name
	logger := logging.Component("tools")

	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	policy := e.config.Policy().WithNotify(func(attempt int, err error, wait time.Duration) {
		logger.Debug().
			Str("tool", toolName).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(err).
			Msg("tool attempt failed, retrying")
	})

	var result ToolResult
	attempts, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout())
		defer cancel()

		r, err := tool.Execute(attemptCtx, args)
		if err != nil {
			return err
		}
		result = r
		if r.Success() {
			return nil
		}
		if !shouldRetry(r.Error) {
			return retry.Permanent(r.Error)
		}
		return r.Error
	})

	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil) {
		return ToolResult{}, ctx.Err()
	}
	if result.Error != nil && errors.Is(err, result.Error) && !shouldRetry(result.Error) {
		return result, nil
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, attempts, err.Error()), nil
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	errLower := strings.ToLower(err.Error())

	// Don't retry validation errors, permission issues or client errors
	nonRetryable := []string{"validation", "not allowed", "permission", "empty", "invalid", "http 4"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	return true
}
