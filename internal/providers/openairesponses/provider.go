// Package openairesponses implements OpenAI's /responses wire protocol
// (spec 4.D.2), used by the "responses" and "codex-responses" reasoning
// models in place of chat-completions. It shares internal/transport's
// hand-rolled SSE reader with the openaicompat package but speaks the
// Responses API's item-based input/output shape rather than
// chat-completions messages.
package openairesponses

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/internal/transport"
	"github.com/loomrun/coreagent/pkg/models"
)

// Provider implements providers.ApiProvider for the Responses API.
type Provider struct {
	api     models.ApiId
	apiKey  string
	baseURL string
	client  *transport.Client
}

// New creates a Responses API adapter. baseURL defaults to OpenAI's
// endpoint when empty.
func New(api models.ApiId, apiKey, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Provider{
		api:     api,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &transport.Client{},
	}
}

func (p *Provider) Api() models.ApiId { return p.api }

func (p *Provider) StreamSimple(ctx context.Context, model models.Model, reqCtx providers.Context, simple *providers.SimpleOptions) *eventstream.AssistantStream {
	var opts *providers.Options
	if simple != nil {
		opts = simple.Lower()
	}
	return p.Stream(ctx, model, reqCtx, opts)
}

func (p *Provider) Stream(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options) *eventstream.AssistantStream {
	if options == nil {
		options = &providers.Options{}
	}
	stream := eventstream.NewAssistantStream()
	go p.run(ctx, model, reqCtx, options, stream)
	return stream
}

func (p *Provider) run(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options, stream *eventstream.AssistantStream) {
	defer eventstream.EndWithoutTerminal(stream)

	headers := providers.MergeHeaders(model.Headers, options.Headers)
	if p.apiKey != "" {
		headers.Set("Authorization", "Bearer "+p.apiKey)
	}

	body, err := buildBody(model, reqCtx, options)
	if err != nil {
		stream.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}
	if options.OnPayload != nil {
		options.OnPayload(body)
	}

	resp, err := p.client.StreamSSE(ctx, p.baseURL+"/responses", body, headers, 0)
	if err != nil {
		stream.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody strings.Builder
		for f := range resp.Events {
			errBody.WriteString(f.Data)
		}
		perr := providers.NewStatusError(string(model.Provider), model.ID, resp.StatusCode, errBody.String())
		stream.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: perr.Error()},
		})
		return
	}

	acc := providers.NewAccumulator(p.api, model.Provider, model.ID)
	stream.Push(eventstream.StartEvent{Partial: acc.Partial()})

	textIndexByOutput := map[int]int{}
	thinkingIndexByOutput := map[int]int{}
	toolIndexByOutput := map[int]int{}

	for frame := range resp.Events {
		var ev streamEvent
		if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
			continue
		}
		eventType := ev.Type
		if frame.Event != nil && *frame.Event != "" {
			eventType = *frame.Event
		}

		switch eventType {
		case "response.output_item.added":
			if ev.Item == nil {
				continue
			}
			switch ev.Item.Type {
			case "function_call":
				ci := acc.OpenToolCall(ev.Item.CallID, ev.Item.Name)
				toolIndexByOutput[ev.OutputIndex] = ci
				stream.Push(eventstream.ToolCallStartEvent{ContentIndex: ci, Partial: acc.Partial()})
			case "reasoning":
				ci := acc.OpenThinking()
				thinkingIndexByOutput[ev.OutputIndex] = ci
				stream.Push(eventstream.ThinkingStartEvent{ContentIndex: ci, Partial: acc.Partial()})
			}

		case "response.output_text.delta":
			ci, ok := textIndexByOutput[ev.OutputIndex]
			if !ok {
				ci = acc.OpenText()
				textIndexByOutput[ev.OutputIndex] = ci
				stream.Push(eventstream.TextStartEvent{ContentIndex: ci, Partial: acc.Partial()})
			}
			if ev.Delta != "" {
				acc.AppendTextDelta(ci, ev.Delta)
				stream.Push(eventstream.TextDeltaEvent{ContentIndex: ci, Delta: ev.Delta, Partial: acc.Partial()})
			}

		case "response.reasoning_summary_text.delta":
			ci, ok := thinkingIndexByOutput[ev.OutputIndex]
			if !ok {
				ci = acc.OpenThinking()
				thinkingIndexByOutput[ev.OutputIndex] = ci
				stream.Push(eventstream.ThinkingStartEvent{ContentIndex: ci, Partial: acc.Partial()})
			}
			if ev.Delta != "" {
				acc.AppendThinkingDelta(ci, ev.Delta)
				stream.Push(eventstream.ThinkingDeltaEvent{ContentIndex: ci, Delta: ev.Delta, Partial: acc.Partial()})
			}

		case "response.function_call_arguments.delta":
			ci, ok := toolIndexByOutput[ev.OutputIndex]
			if !ok {
				continue
			}
			if ev.Delta != "" {
				acc.AppendToolCallArgDelta(ci, ev.Delta)
				stream.Push(eventstream.ToolCallDeltaEvent{ContentIndex: ci, Delta: ev.Delta, Partial: acc.Partial()})
			}

		case "response.function_call_arguments.done":
			ci, ok := toolIndexByOutput[ev.OutputIndex]
			if !ok {
				continue
			}
			tc := acc.CloseToolCall(ci)
			stream.Push(eventstream.ToolCallEndEvent{ContentIndex: ci, ToolCall: tc, Partial: acc.Partial()})
			delete(toolIndexByOutput, ev.OutputIndex)

		case "response.output_item.done":
			if ev.Item == nil {
				continue
			}
			switch ev.Item.Type {
			case "message":
				if ci, ok := textIndexByOutput[ev.OutputIndex]; ok {
					final := acc.CloseText(ci)
					stream.Push(eventstream.TextEndEvent{ContentIndex: ci, Content: final, Partial: acc.Partial()})
					delete(textIndexByOutput, ev.OutputIndex)
				}
			case "reasoning":
				if ci, ok := thinkingIndexByOutput[ev.OutputIndex]; ok {
					final := acc.CloseThinking(ci)
					stream.Push(eventstream.ThinkingEndEvent{ContentIndex: ci, Content: final, Partial: acc.Partial()})
					delete(thinkingIndexByOutput, ev.OutputIndex)
				}
			case "function_call":
				// function_call_arguments.done normally closes the block
				// first; this is the fallback when a provider omits it.
				if ci, ok := toolIndexByOutput[ev.OutputIndex]; ok {
					tc := acc.CloseToolCall(ci)
					stream.Push(eventstream.ToolCallEndEvent{ContentIndex: ci, ToolCall: tc, Partial: acc.Partial()})
					delete(toolIndexByOutput, ev.OutputIndex)
				}
			}

		case "response.completed", "response.incomplete", "response.failed":
			if ev.Response != nil {
				if ev.Response.Usage != nil {
					acc.SetUsage(models.Usage{
						Input:       ev.Response.Usage.InputTokens,
						Output:      ev.Response.Usage.OutputTokens,
						TotalTokens: ev.Response.Usage.TotalTokens,
					})
				}
				acc.SetStopReason(mapStopReason(ev.Response))
			}
		}
	}

	final := acc.Finalize()
	stream.Push(eventstream.DoneEvent{Reason: final.StopReason, Message: final})
}

func mapStopReason(resp *responseObject) models.StopReason {
	if resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason == "max_output_tokens" {
		return models.StopReasonLength
	}
	return models.StopReasonStop
}

// reasoningEffort lowers the neutral ThinkingLevel dial to the Responses
// API's reasoning.effort enum (spec 4.D.2).
func reasoningEffort(level providers.ThinkingLevel) string {
	switch level {
	case providers.ThinkingMinimal:
		return "minimal"
	case providers.ThinkingLow:
		return "low"
	case providers.ThinkingMedium:
		return "medium"
	case providers.ThinkingHigh:
		return "high"
	case providers.ThinkingXHigh:
		return "xhigh"
	default:
		return ""
	}
}

func buildBody(model models.Model, reqCtx providers.Context, options *providers.Options) ([]byte, error) {
	req := responsesRequest{
		Model:        model.ID,
		Instructions: reqCtx.SystemPrompt,
		Stream:       true,
	}

	items, err := convertMessages(reqCtx.Messages)
	if err != nil {
		return nil, err
	}
	req.Input = items

	if options.Temperature != nil {
		req.Temperature = options.Temperature
	}
	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens > 0 {
		req.MaxOutputTokens = &maxTokens
	}
	if effort := reasoningEffort(options.Reasoning); effort != "" {
		req.Reasoning = &reasoningConfig{Effort: effort, Summary: "auto"}
	}
	if len(reqCtx.Tools) > 0 {
		req.Tools = make([]responsesTool, 0, len(reqCtx.Tools))
		for _, t := range reqCtx.Tools {
			req.Tools = append(req.Tools, responsesTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
	}

	return json.Marshal(req)
}

// convertMessages lowers the neutral message list into the Responses
// API's flat input-item array (spec 4.D.2).
func convertMessages(msgs models.MessageList) ([]inputItem, error) {
	items := make([]inputItem, 0, len(msgs))

	for _, m := range msgs {
		switch v := m.(type) {
		case models.User:
			items = append(items, inputItem{Type: "message", Role: "user", Content: renderContent(v.Content)})

		case models.Assistant:
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					items = append(items, inputItem{Type: "message", Role: "assistant", Content: bb.TextValue})
				case models.ToolCall:
					raw, err := json.Marshal(bb.Arguments)
					if err != nil {
						return nil, err
					}
					items = append(items, inputItem{
						Type:      "function_call",
						CallID:    bb.ID,
						Name:      bb.Name,
						Arguments: string(raw),
					})
				}
			}

		case models.ToolResult:
			output := models.TextOf(v.Content)
			items = append(items, inputItem{Type: "function_call_output", CallID: v.ToolCallID, Output: &output})

		default:
			items = append(items, inputItem{Type: "message", Role: "user", Content: syntheticText(m)})
		}
	}

	return items, nil
}

func renderContent(blocks models.ContentBlocks) string {
	var sb strings.Builder
	for _, b := range blocks {
		if t, ok := b.(models.Text); ok {
			sb.WriteString(t.TextValue)
		}
	}
	return sb.String()
}

func syntheticText(m models.Message) string {
	switch v := m.(type) {
	case models.Custom:
		return v.Display
	case models.BashExecution:
		return "$ " + v.Command + "\n" + v.Output
	case models.BranchSummary:
		return v.Summary
	case models.CompactionSummary:
		return v.Summary
	default:
		return ""
	}
}

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []inputItem      `json:"input"`
	Instructions    string           `json:"instructions,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	Tools           []responsesTool  `json:"tools,omitempty"`
	Reasoning       *reasoningConfig `json:"reasoning,omitempty"`
	Stream          bool             `json:"stream"`
}

type inputItem struct {
	Type      string  `json:"type"`
	Role      string  `json:"role,omitempty"`
	Content   any     `json:"content,omitempty"`
	CallID    string  `json:"call_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Arguments string  `json:"arguments,omitempty"`
	Output    *string `json:"output,omitempty"`
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type reasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type streamEvent struct {
	Type        string          `json:"type"`
	OutputIndex int             `json:"output_index"`
	Delta       string          `json:"delta"`
	Item        *outputItem     `json:"item"`
	Response    *responseObject `json:"response"`
}

type outputItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responseObject struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
