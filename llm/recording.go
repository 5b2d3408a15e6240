package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// MaxRecordedParamsLength is the max length for serialized parameters stored in a record.
const MaxRecordedParamsLength = 1000

// MaxRecordedResultLength is the max length for result content stored in a record.
const MaxRecordedResultLength = 2000

// RecordingExecutor wraps a ToolExecutor and records each call to the global ToolCallStore.
// If the global store is not initialized, calls pass through transparently without recording.
type RecordingExecutor struct {
	inner  ToolExecutor
	logger *slog.Logger

	// traceID and loopID are stamped on every record so tool calls can be
	// correlated with the review run that issued them.
	traceID string
	loopID  string
}

// RecordingOption configures a RecordingExecutor.
type RecordingOption func(*RecordingExecutor)

// WithRecordingTrace sets the trace and loop IDs stamped on recorded calls.
func WithRecordingTrace(traceID, loopID string) RecordingOption {
	return func(r *RecordingExecutor) {
		r.traceID = traceID
		r.loopID = loopID
	}
}

// WithRecordingLogger sets the logger used for recording failures.
func WithRecordingLogger(logger *slog.Logger) RecordingOption {
	return func(r *RecordingExecutor) {
		r.logger = logger
	}
}

// NewRecordingExecutor wraps an executor with tool call recording.
func NewRecordingExecutor(inner ToolExecutor, opts ...RecordingOption) *RecordingExecutor {
	r := &RecordingExecutor{
		inner:  inner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the underlying tool executor and records the call to the ToolCallStore.
func (r *RecordingExecutor) Execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	startedAt := time.Now()

	result, execErr := r.inner.Execute(ctx, call)

	completedAt := time.Now()
	durationMs := completedAt.Sub(startedAt).Milliseconds()

	// Record asynchronously to avoid slowing down tool execution
	go r.recordCall(call, result, execErr, startedAt, completedAt, durationMs)

	return result, execErr
}

// ListTools delegates to the inner executor.
func (r *RecordingExecutor) ListTools() []ToolDefinition {
	return r.inner.ListTools()
}

// recordCall stores the tool execution record in the global ToolCallStore.
func (r *RecordingExecutor) recordCall(
	call ToolCall,
	result ToolResult,
	execErr error,
	startedAt, completedAt time.Time,
	durationMs int64,
) {
	store := GlobalToolCallStore()
	if store == nil {
		return // Recording disabled - store not initialized
	}

	status := "success"
	var errMsg string
	if execErr != nil {
		status = "error"
		errMsg = execErr.Error()
	} else if result.Error != "" {
		status = "error"
		errMsg = result.Error
	}

	params := truncateJSON(call.Arguments, MaxRecordedParamsLength)

	resultPreview := result.Content
	if len(resultPreview) > MaxRecordedResultLength {
		resultPreview = resultPreview[:MaxRecordedResultLength] + "..."
	}

	record := &ToolCallRecord{
		CallID:      call.ID,
		TraceID:     r.traceID,
		LoopID:      r.loopID,
		ToolName:    call.Name,
		Parameters:  params,
		Result:      resultPreview,
		Status:      status,
		Error:       errMsg,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMs:  durationMs,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Store(ctx, record); err != nil {
		r.logger.Warn("Failed to record tool call",
			"tool", call.Name,
			"call_id", call.ID,
			"error", err)
	}
}

// truncateJSON marshals a map to JSON and truncates to maxLen.
func truncateJSON(m map[string]any, maxLen int) string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	s := string(data)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
