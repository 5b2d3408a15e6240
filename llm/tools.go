package llm

import (
	"context"

	"github.com/c360studio/semstreams/agentic"
)

// Tool types are aliases of the semstreams agentic types so executors written
// against the component framework plug directly into the client. Providers
// translate them to each API's wire format.
type (
	// ToolDefinition describes a tool the model may invoke. Parameters is a
	// JSON Schema object.
	ToolDefinition = agentic.ToolDefinition

	// ToolCall is a single tool invocation requested by the model.
	ToolCall = agentic.ToolCall

	// ToolResult is the outcome of executing a tool call.
	ToolResult = agentic.ToolResult
)

// ToolExecutor executes tool calls issued by the model during an agent run.
// It matches the executor contract used by the semstreams agentic-tools
// component, so the same executors serve both paths.
type ToolExecutor interface {
	// Execute runs a single tool call. Implementations should return errors
	// in ToolResult.Error for model-visible failures and reserve the error
	// return for infrastructure problems.
	Execute(ctx context.Context, call ToolCall) (ToolResult, error)

	// ListTools returns the definitions for every tool this executor serves.
	ListTools() []ToolDefinition
}
