// Package google implements the Gemini generateContent wire protocol (spec
// 4.D.4) on top of the official google.golang.org/genai client.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Provider implements providers.ApiProvider for Google's generateContent
// streaming API.
type Provider struct {
	client *genai.Client
	api    models.ApiId
}

// New creates a Google adapter backed by the Gemini Developer API.
func New(ctx context.Context, api models.ApiId, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &Provider{client: client, api: api}, nil
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
	out := eventstream.NewAssistantStream()
	go p.run(ctx, model, reqCtx, options, out)
	return out
}

func (p *Provider) run(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options, out *eventstream.AssistantStream) {
	defer eventstream.EndWithoutTerminal(out)

	contents, err := p.convertMessages(reqCtx.Messages)
	if err != nil {
		out.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}
	config := p.buildConfig(model, reqCtx, options)

	acc := providers.NewAccumulator(p.api, model.Provider, model.ID)
	out.Push(eventstream.StartEvent{Partial: acc.Partial()})

	textIndex := -1
	callCounter := 0

	for resp, streamErr := range p.client.Models.GenerateContentStream(ctx, model.ID, contents, config) {
		if streamErr != nil {
			perr := providers.NewStatusError(string(model.Provider), model.ID, googleStatusCode(streamErr), streamErr.Error())
			out.Push(eventstream.ErrorEvent{
				Reason: models.StopReasonError,
				Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: perr.Error()},
			})
			return
		}
		if resp == nil {
			continue
		}

		if resp.UsageMetadata != nil {
			acc.SetUsage(models.Usage{
				Input:       int(resp.UsageMetadata.PromptTokenCount),
				Output:      int(resp.UsageMetadata.CandidatesTokenCount),
				CacheRead:   int(resp.UsageMetadata.CachedContentTokenCount),
				TotalTokens: int(resp.UsageMetadata.TotalTokenCount),
			})
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			if candidate.FinishReason != "" {
				acc.SetStopReason(mapFinishReason(string(candidate.FinishReason)))
			}

			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}

				if part.Text != "" {
					if textIndex == -1 {
						textIndex = acc.OpenText()
						out.Push(eventstream.TextStartEvent{ContentIndex: textIndex, Partial: acc.Partial()})
					}
					acc.AppendTextDelta(textIndex, part.Text)
					out.Push(eventstream.TextDeltaEvent{ContentIndex: textIndex, Delta: part.Text, Partial: acc.Partial()})
				}

				if part.FunctionCall != nil {
					// Gemini never assigns a call id; synthesise a
					// per-response counter (spec 4.D.4).
					id := fmt.Sprintf("google-call-%d", callCounter)
					callCounter++

					ci := acc.OpenToolCall(id, part.FunctionCall.Name)
					out.Push(eventstream.ToolCallStartEvent{ContentIndex: ci, Partial: acc.Partial()})

					args := models.JSONObject(part.FunctionCall.Args)
					acc.SetToolCallArguments(ci, args)
					tc := models.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args}
					if part.ThoughtSignature != nil {
						sig := string(part.ThoughtSignature)
						acc.SetThoughtSignature(ci, sig)
						tc.ThoughtSignature = sig
					}
					out.Push(eventstream.ToolCallEndEvent{ContentIndex: ci, ToolCall: tc, Partial: acc.Partial()})
				}
			}
		}
	}

	if textIndex != -1 {
		final := acc.CloseText(textIndex)
		out.Push(eventstream.TextEndEvent{ContentIndex: textIndex, Content: final, Partial: acc.Partial()})
	}

	final := acc.Finalize()
	out.Push(eventstream.DoneEvent{Reason: final.StopReason, Message: final})
}

func mapFinishReason(reason string) models.StopReason {
	switch reason {
	case "MAX_TOKENS":
		return models.StopReasonLength
	case "STOP":
		return models.StopReasonStop
	default:
		return models.StopReasonStop
	}
}

func (p *Provider) buildConfig(model models.Model, reqCtx providers.Context, options *providers.Options) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if reqCtx.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: reqCtx.SystemPrompt}},
		}
	}

	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	if len(reqCtx.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(reqCtx.Tools))
		for _, t := range reqCtx.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ToGeminiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config
}

func (p *Provider) convertMessages(msgs models.MessageList) ([]*genai.Content, error) {
	result := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		content := &genai.Content{}

		switch v := m.(type) {
		case models.User:
			content.Role = genai.RoleUser
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content.Parts = append(content.Parts, &genai.Part{Text: bb.TextValue})
				case models.Image:
					data, err := base64.StdEncoding.DecodeString(bb.Base64Data)
					if err != nil {
						continue
					}
					content.Parts = append(content.Parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: bb.MimeType, Data: data},
					})
				}
			}

		case models.Assistant:
			content.Role = genai.RoleModel
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content.Parts = append(content.Parts, &genai.Part{Text: bb.TextValue})
				case models.ToolCall:
					content.Parts = append(content.Parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{Name: bb.Name, Args: bb.Arguments},
					})
				}
			}

		case models.ToolResult:
			content.Role = genai.RoleUser
			response := map[string]any{"result": models.TextOf(v.Content)}
			if v.IsError {
				response["error"] = true
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: v.ToolName, Response: response},
			})

		default:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{Text: syntheticText(m)})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
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

// googleStatusCode extracts the HTTP status off a *googleapi.Error so
// failed Gemini calls classify through providers.ReasonFromStatus the
// same way every other adapter's errors do; 0 means no status was
// available (a transport-level failure rather than an API response).
func googleStatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
