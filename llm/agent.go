package llm

import (
	"context"
	"fmt"
)

// DefaultAgentMaxIterations is a safety cap on agent rounds. The real limit
// is normally the run's Budget; this only stops runaway loops when no budget
// is attached.
const DefaultAgentMaxIterations = 200

// AgentRequest configures a tool-calling agent run.
type AgentRequest struct {
	// Capability selects the model chain, same as Request.Capability.
	Capability string

	// Messages is the starting conversation (system + user prompts).
	Messages []Message

	// Temperature and MaxTokens are passed through to each completion.
	Temperature *float64
	MaxTokens   int

	// Executor serves the model's tool calls. Required.
	Executor ToolExecutor

	// MaxIterations caps agent rounds. 0 uses DefaultAgentMaxIterations.
	MaxIterations int

	// Budget, when set, is enforced before every completion in the loop.
	Budget *Budget
}

// AgentResult is the outcome of an agent run.
type AgentResult struct {
	// Response is the model's final answer after it stopped calling tools.
	Response *Response

	// ToolCallsUsed counts every tool invocation across all rounds.
	ToolCallsUsed int

	// Transcript is the full conversation including tool rounds, useful for
	// debugging and audit.
	Transcript []Message
}

// RunAgent drives a tool-calling loop: it sends the conversation with the
// executor's tool definitions, executes any tool calls the model requests,
// feeds results back, and repeats until the model answers without tools.
//
// Tool execution failures are surfaced to the model as tool results rather
// than aborting the run, so the model can route around missing files or bad
// queries. The run aborts on LLM transport failure, context cancellation,
// budget exhaustion, or the iteration cap.
func (c *Client) RunAgent(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	if req.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultAgentMaxIterations
	}

	tools := req.Executor.ListTools()
	messages := make([]Message, len(req.Messages))
	copy(messages, req.Messages)

	result := &AgentResult{}

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := c.Complete(ctx, Request{
			Capability:  req.Capability,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Tools:       tools,
			Budget:      req.Budget,
		})
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			result.Response = resp
			result.Transcript = messages
			return result, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			toolResult, execErr := req.Executor.Execute(ctx, call)
			result.ToolCallsUsed++

			content := toolResult.Content
			switch {
			case execErr != nil:
				content = fmt.Sprintf("Error: %v", execErr)
			case toolResult.Error != "":
				content = "Error: " + toolResult.Error
			}

			c.logger.Debug("Agent tool call",
				"tool", call.Name,
				"call_id", call.ID,
				"error", toolResult.Error)

			messages = append(messages, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("agent exceeded %d iterations without a final answer", maxIterations)
}
