package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/internal/transport"
	"github.com/loomrun/coreagent/pkg/models"
)

// Provider implements providers.ApiProvider for the OpenAI
// chat-completions wire protocol and any OpenAI-compatible third party
// parameterised by a Compat record (spec 4.D.1, 4.D.6).
type Provider struct {
	api       models.ApiId
	apiKey    string
	baseURL   string
	authStyle string // "bearer" (default) or "" to omit
	compat    Compat
	client    *transport.Client
}

// New creates an OpenAI-compatible adapter. baseURL defaults to OpenAI's
// endpoint when empty.
func New(api models.ApiId, apiKey, baseURL string, compat Compat) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Provider{
		api:       api,
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		authStyle: "bearer",
		compat:    compat,
		client:    &transport.Client{},
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
	if p.authStyle == "bearer" && p.apiKey != "" {
		headers.Set("Authorization", "Bearer "+p.apiKey)
	}

	body, err := p.buildBody(model, reqCtx, options)
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

	url := p.baseURL + "/chat/completions"
	resp, err := p.client.StreamSSE(ctx, url, body, headers, 0)
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

	textIndex := -1
	thinkingIndex := -1
	toolIndexByWireIndex := map[int]int{}

	for frame := range resp.Events {
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
			// Malformed wire JSON: discard the fragment, never crash the
			// stream (spec 7).
			continue
		}
		if chunk.Usage != nil {
			acc.SetUsage(models.Usage{
				Input:       chunk.Usage.PromptTokens,
				Output:      chunk.Usage.CompletionTokens,
				TotalTokens: chunk.Usage.TotalTokens,
				CacheRead:   chunk.Usage.PromptTokensDetails.CachedTokens,
			})
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.ReasoningContent != "" {
			if thinkingIndex == -1 {
				thinkingIndex = acc.OpenThinking()
				stream.Push(eventstream.ThinkingStartEvent{ContentIndex: thinkingIndex, Partial: acc.Partial()})
			}
			acc.AppendThinkingDelta(thinkingIndex, delta.ReasoningContent)
			stream.Push(eventstream.ThinkingDeltaEvent{ContentIndex: thinkingIndex, Delta: delta.ReasoningContent, Partial: acc.Partial()})
		}

		if delta.Content != "" {
			if textIndex == -1 {
				textIndex = acc.OpenText()
				stream.Push(eventstream.TextStartEvent{ContentIndex: textIndex, Partial: acc.Partial()})
			}
			acc.AppendTextDelta(textIndex, delta.Content)
			stream.Push(eventstream.TextDeltaEvent{ContentIndex: textIndex, Delta: delta.Content, Partial: acc.Partial()})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			ci, ok := toolIndexByWireIndex[idx]
			if !ok {
				ci = acc.OpenToolCall(tc.ID, tc.Function.Name)
				toolIndexByWireIndex[idx] = ci
				stream.Push(eventstream.ToolCallStartEvent{ContentIndex: ci, Partial: acc.Partial()})
			}
			if tc.Function.Arguments != "" {
				acc.AppendToolCallArgDelta(ci, tc.Function.Arguments)
				stream.Push(eventstream.ToolCallDeltaEvent{ContentIndex: ci, Delta: tc.Function.Arguments, Partial: acc.Partial()})
			}
		}

		if choice.FinishReason != "" {
			if textIndex != -1 {
				final := acc.CloseText(textIndex)
				stream.Push(eventstream.TextEndEvent{ContentIndex: textIndex, Content: final, Partial: acc.Partial()})
			}
			if thinkingIndex != -1 {
				final := acc.CloseThinking(thinkingIndex)
				stream.Push(eventstream.ThinkingEndEvent{ContentIndex: thinkingIndex, Content: final, Partial: acc.Partial()})
			}
			for _, ci := range toolIndexByWireIndex {
				tc := acc.CloseToolCall(ci)
				stream.Push(eventstream.ToolCallEndEvent{ContentIndex: ci, ToolCall: tc, Partial: acc.Partial()})
			}
			acc.SetStopReason(mapFinishReason(choice.FinishReason))
		}
	}

	final := acc.Finalize()
	stream.Push(eventstream.DoneEvent{Reason: final.StopReason, Message: final})
}

func mapFinishReason(reason string) models.StopReason {
	switch reason {
	case "length":
		return models.StopReasonLength
	case "tool_calls":
		return models.StopReasonToolUse
	case "stop":
		return models.StopReasonStop
	default:
		return models.StopReasonStop
	}
}

// buildBody constructs the chat-completions request payload. It starts
// from go-openai's ChatCompletionRequest/ChatCompletionMessage/Tool types
// for field-accurate structure, then re-marshals through a map so the
// compat-dependent max-tokens field name (spec 4.D.1) can be injected
// under whatever key this deployment expects.
func (p *Provider) buildBody(model models.Model, reqCtx providers.Context, options *providers.Options) ([]byte, error) {
	systemRole := "system"
	if p.compat.SupportsDeveloperRole {
		systemRole = "developer"
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(reqCtx.Messages)+1)
	if reqCtx.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: systemRole, Content: reqCtx.SystemPrompt})
	}
	for _, m := range reqCtx.Messages {
		converted, err := p.convertMessage(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, converted...)
	}

	req := openai.ChatCompletionRequest{
		Model:    model.ID,
		Messages: messages,
		Stream:   true,
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if len(reqCtx.Tools) > 0 {
		req.Tools = make([]openai.Tool, 0, len(reqCtx.Tools))
		for _, t := range reqCtx.Tools {
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	delete(generic, "max_tokens")
	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens > 0 {
		generic[p.compat.maxTokensField()] = maxTokens
	}
	if p.compat.SupportsStreamOptions {
		generic["stream_options"] = map[string]bool{"include_usage": true}
	}
	return json.Marshal(generic)
}

// convertMessage converts one neutral message to one-or-more OpenAI chat
// messages, per the table in spec 4.D.1.
func (p *Provider) convertMessage(m models.Message) ([]openai.ChatCompletionMessage, error) {
	switch v := m.(type) {
	case models.User:
		return []openai.ChatCompletionMessage{p.renderUserMessage(v.Content)}, nil
	case models.Assistant:
		msg := openai.ChatCompletionMessage{Role: "assistant", Content: p.renderAssistantContent(v.Content)}
		for _, tc := range models.ToolCallsOf(v.Content) {
			args, _ := json.Marshal(tc.Arguments)
			id := tc.ID
			if p.compat.RequiresMistralToolIds {
				id = mistralToolID(id)
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   id,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return []openai.ChatCompletionMessage{msg}, nil
	case models.ToolResult:
		id := v.ToolCallID
		if p.compat.RequiresMistralToolIds {
			id = mistralToolID(id)
		}
		return []openai.ChatCompletionMessage{{
			Role:       "tool",
			Content:    models.TextOf(v.Content),
			Name:       v.ToolName,
			ToolCallID: id,
		}}, nil
	default:
		// Custom/BashExecution/BranchSummary/CompactionSummary: stripped
		// by the message pipeline before reaching here (spec 4.G.4), but
		// degrade to text as a defensive fallback.
		return []openai.ChatCompletionMessage{{Role: "user", Content: fmt.Sprintf("%v", m)}}, nil
	}
}

// renderUserMessage lowers a user turn's content blocks to the chat-
// completions wire format: plain Content when the turn is text-only,
// or the MultiContent array form once an Image block is present, the
// way the anthropic and google adapters already carry images into
// their own wires.
func (p *Provider) renderUserMessage(blocks models.ContentBlocks) openai.ChatCompletionMessage {
	onlyText := true
	for _, b := range blocks {
		if _, ok := b.(models.Text); !ok {
			onlyText = false
			break
		}
	}
	if onlyText {
		return openai.ChatCompletionMessage{Role: "user", Content: models.TextOf(blocks)}
	}

	parts := make([]openai.ChatMessagePart, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case models.Text:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: v.TextValue,
			})
		case models.Image:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", v.MimeType, v.Base64Data),
				},
			})
		}
	}
	return openai.ChatCompletionMessage{Role: "user", MultiContent: parts}
}

func (p *Provider) renderAssistantContent(blocks models.ContentBlocks) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch v := b.(type) {
		case models.Text:
			sb.WriteString(v.TextValue)
		case models.Thinking:
			if p.compat.RequiresThinkingAsText {
				sb.WriteString("<thinking>" + v.ThinkingValue + "</thinking>")
			}
		}
	}
	return sb.String()
}

func mistralToolID(id string) string {
	const n = 9
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, id)
	if len(clean) >= n {
		return clean[:n]
	}
	for len(clean) < n {
		clean += "0"
	}
	return clean
}

// chatCompletionChunk is the minimal wire shape of one SSE data payload
// from the chat-completions streaming endpoint (spec 4.D.1).
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    *int   `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens            int `json:"prompt_tokens"`
		CompletionTokens        int `json:"completion_tokens"`
		TotalTokens             int `json:"total_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}
