// Package anthropic implements the Anthropic messages wire protocol (spec
// 4.D.3) on top of the official anthropic-sdk-go client, rather than the
// hand-rolled transport package other adapters use: the SDK already owns
// SSE framing and typed event decoding for this API, and duplicating that
// here would just be a second, less-trustworthy parser of the same wire
// format.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Provider implements providers.ApiProvider for the Anthropic messages API.
type Provider struct {
	client anthropic.Client
	api    models.ApiId
}

// New creates an Anthropic adapter. baseURL overrides the SDK's default
// endpoint when non-empty, for Anthropic-compatible gateways.
func New(api models.ApiId, apiKey, baseURL string) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...), api: api}
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

func (p *Provider) run(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options, out *eventstream.AssistantStream) {
	defer eventstream.EndWithoutTerminal(out)

	params, err := p.buildParams(model, reqCtx, options)
	if err != nil {
		out.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}

	headerOpts := headerRequestOptions(providers.MergeHeaders(model.Headers, options.Headers))

	sdkStream := p.client.Messages.NewStreaming(ctx, params, headerOpts...)

	acc := providers.NewAccumulator(p.api, model.Provider, model.ID)
	out.Push(eventstream.StartEvent{Partial: acc.Partial()})

	textIndex := -1
	thinkingIndex := -1
	toolIndex := -1

	for sdkStream.Next() {
		event := sdkStream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "text":
				textIndex = acc.OpenText()
				out.Push(eventstream.TextStartEvent{ContentIndex: textIndex, Partial: acc.Partial()})
			case "thinking":
				thinkingIndex = acc.OpenThinking()
				out.Push(eventstream.ThinkingStartEvent{ContentIndex: thinkingIndex, Partial: acc.Partial()})
			case "tool_use":
				toolUse := block.AsToolUse()
				toolIndex = acc.OpenToolCall(toolUse.ID, toolUse.Name)
				out.Push(eventstream.ToolCallStartEvent{ContentIndex: toolIndex, Partial: acc.Partial()})
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if textIndex >= 0 && delta.Text != "" {
					acc.AppendTextDelta(textIndex, delta.Text)
					out.Push(eventstream.TextDeltaEvent{ContentIndex: textIndex, Delta: delta.Text, Partial: acc.Partial()})
				}
			case "thinking_delta":
				if thinkingIndex >= 0 && delta.Thinking != "" {
					acc.AppendThinkingDelta(thinkingIndex, delta.Thinking)
					out.Push(eventstream.ThinkingDeltaEvent{ContentIndex: thinkingIndex, Delta: delta.Thinking, Partial: acc.Partial()})
				}
			case "signature_delta":
				if thinkingIndex >= 0 && delta.Signature != "" {
					acc.SetThinkingSignature(thinkingIndex, delta.Signature)
				}
			case "input_json_delta":
				if toolIndex >= 0 && delta.PartialJSON != "" {
					acc.AppendToolCallArgDelta(toolIndex, delta.PartialJSON)
					out.Push(eventstream.ToolCallDeltaEvent{ContentIndex: toolIndex, Delta: delta.PartialJSON, Partial: acc.Partial()})
				}
			}

		case "content_block_stop":
			switch {
			case textIndex >= 0:
				final := acc.CloseText(textIndex)
				out.Push(eventstream.TextEndEvent{ContentIndex: textIndex, Content: final, Partial: acc.Partial()})
				textIndex = -1
			case thinkingIndex >= 0:
				final := acc.CloseThinking(thinkingIndex)
				out.Push(eventstream.ThinkingEndEvent{ContentIndex: thinkingIndex, Content: final, Partial: acc.Partial()})
				thinkingIndex = -1
			case toolIndex >= 0:
				tc := acc.CloseToolCall(toolIndex)
				out.Push(eventstream.ToolCallEndEvent{ContentIndex: toolIndex, ToolCall: tc, Partial: acc.Partial()})
				toolIndex = -1
			}

		case "message_start":
			usage := event.AsMessageStart().Message.Usage
			acc.SetUsage(models.Usage{
				Input:      int(usage.InputTokens),
				CacheRead:  int(usage.CacheReadInputTokens),
				CacheWrite: int(usage.CacheCreationInputTokens),
			})

		case "message_delta":
			md := event.AsMessageDelta()
			acc.AddUsage(models.Usage{Output: int(md.Usage.OutputTokens)})
			acc.SetStopReason(mapStopReason(string(md.Delta.StopReason)))

		case "error":
			acc.SetStopReason(models.StopReasonError)
		}
	}

	if err := sdkStream.Err(); err != nil {
		out.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}

	final := acc.Finalize()
	out.Push(eventstream.DoneEvent{Reason: final.StopReason, Message: final})
}

func mapStopReason(reason string) models.StopReason {
	switch reason {
	case "max_tokens":
		return models.StopReasonLength
	case "tool_use":
		return models.StopReasonToolUse
	default:
		return models.StopReasonStop
	}
}

// buildParams converts the neutral request context into Anthropic's
// MessageNewParams, applying prompt-cache breakpoints per spec 4.D.3.
func (p *Provider) buildParams(model models.Model, reqCtx providers.Context, options *providers.Options) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(reqCtx.Messages, options.CacheRetention)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ID),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if reqCtx.SystemPrompt != "" {
		block := anthropic.TextBlockParam{Type: "text", Text: reqCtx.SystemPrompt}
		if options.CacheRetention != providers.CacheRetentionNone {
			block.CacheControl = cacheControlFor(options.CacheRetention)
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if len(reqCtx.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(reqCtx.Tools))
		for _, t := range reqCtx.Tools {
			raw, err := json.Marshal(t.Parameters)
			if err != nil {
				return anthropic.MessageNewParams{}, err
			}
			var schema anthropic.ToolInputSchemaParam
			if err := json.Unmarshal(raw, &schema); err != nil {
				return anthropic.MessageNewParams{}, err
			}
			tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
			tool.OfTool.Description = anthropic.String(t.Description)
			tools = append(tools, tool)
		}
		params.Tools = tools
	}

	if options.Reasoning != "" && options.Reasoning != providers.ThinkingMinimal {
		budget := int64(10000)
		if b, ok := options.ThinkingBudgets[options.Reasoning]; ok && b > 0 {
			budget = int64(b)
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return params, nil
}

func cacheControlFor(retention providers.CacheRetention) anthropic.CacheControlEphemeralParam {
	cc := anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
	if retention == providers.CacheRetentionLong {
		cc.TTL = "1h"
	}
	return cc
}

func (p *Provider) convertMessages(msgs models.MessageList, retention providers.CacheRetention) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	lastUserIndex := -1
	for i, m := range msgs {
		if _, ok := m.(models.User); ok {
			lastUserIndex = i
		}
	}

	for i, m := range msgs {
		applyCache := retention != providers.CacheRetentionNone && i == lastUserIndex

		switch v := m.(type) {
		case models.User:
			var content []anthropic.ContentBlockParamUnion
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content = append(content, anthropic.NewTextBlock(bb.TextValue))
				case models.Image:
					content = append(content, anthropic.NewImageBlockBase64(bb.MimeType, bb.Base64Data))
				}
			}
			if applyCache && len(content) > 0 {
				applyCacheControl(&content[len(content)-1], retention)
			}
			result = append(result, anthropic.NewUserMessage(content...))

		case models.Assistant:
			var content []anthropic.ContentBlockParamUnion
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content = append(content, anthropic.NewTextBlock(bb.TextValue))
				case models.ToolCall:
					content = append(content, anthropic.NewToolUseBlock(bb.ID, bb.Arguments, bb.Name))
				}
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case models.ToolResult:
			content := []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(v.ToolCallID, models.TextOf(v.Content), v.IsError),
			}
			result = append(result, anthropic.NewUserMessage(content...))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(syntheticText(m))))
		}
	}
	return result, nil
}

func applyCacheControl(block *anthropic.ContentBlockParamUnion, retention providers.CacheRetention) {
	cc := cacheControlFor(retention)
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = cc
	case block.OfImage != nil:
		block.OfImage.CacheControl = cc
	}
}

func syntheticText(m models.Message) string {
	switch v := m.(type) {
	case models.Custom:
		return v.Display
	case models.BashExecution:
		return strings.TrimSpace("$ " + v.Command + "\n" + v.Output)
	case models.BranchSummary:
		return v.Summary
	case models.CompactionSummary:
		return v.Summary
	default:
		return ""
	}
}

// headerRequestOptions turns extra caller headers into per-call SDK
// request options, preserving the adapter's header-union contract (spec
// 4.D step 1) even though the transport is owned by the SDK here.
func headerRequestOptions(headers http.Header) []option.RequestOption {
	opts := make([]option.RequestOption, 0, len(headers))
	for k, vs := range headers {
		for _, v := range vs {
			opts = append(opts, option.WithHeader(k, v))
		}
	}
	return opts
}
