// Package bedrock implements the AWS Bedrock converse-stream wire
// protocol (spec 4.D.5) on top of aws-sdk-go-v2's bedrockruntime client.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Provider implements providers.ApiProvider for AWS Bedrock's Converse
// streaming API. Credentials follow the default AWS chain unless
// AccessKeyID/SecretAccessKey are given explicitly.
type Provider struct {
	client *bedrockruntime.Client
	api    models.ApiId
}

// Config configures SigV4 authentication for the Bedrock adapter.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// New creates a Bedrock adapter, resolving AWS credentials via the given
// Config or, if empty, the default provider chain (spec 6.5).
func New(ctx context.Context, api models.ApiId, cfg Config) (*Provider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &Provider{client: bedrockruntime.NewFromConfig(awsCfg), api: api}, nil
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

	messages, err := convertMessages(reqCtx.Messages)
	if err != nil {
		out.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
		})
		return
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model.ID),
		Messages: messages,
	}
	if reqCtx.SystemPrompt != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: reqCtx.SystemPrompt}}
	}

	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens > 0 {
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(reqCtx.Tools) > 0 {
		req.ToolConfig = toBedrockTools(reqCtx.Tools)
	}

	stream, err := p.client.ConverseStream(ctx, req)
	if err != nil {
		perr := providers.NewStatusError(string(model.Provider), model.ID, bedrockStatusCode(err), err.Error())
		out.Push(eventstream.ErrorEvent{
			Reason: models.StopReasonError,
			Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: perr.Error()},
		})
		return
	}

	acc := providers.NewAccumulator(p.api, model.Provider, model.ID)
	out.Push(eventstream.StartEvent{Partial: acc.Partial()})

	eventStream := stream.GetStream()
	defer eventStream.Close()

	textIndex := -1
	toolIndex := -1

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				toolIndex = acc.OpenToolCall(aws.ToString(toolUse.Value.ToolUseId), aws.ToString(toolUse.Value.Name))
				out.Push(eventstream.ToolCallStartEvent{ContentIndex: toolIndex, Partial: acc.Partial()})
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					if textIndex == -1 {
						textIndex = acc.OpenText()
						out.Push(eventstream.TextStartEvent{ContentIndex: textIndex, Partial: acc.Partial()})
					}
					acc.AppendTextDelta(textIndex, delta.Value)
					out.Push(eventstream.TextDeltaEvent{ContentIndex: textIndex, Delta: delta.Value, Partial: acc.Partial()})
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if toolIndex >= 0 && delta.Value.Input != nil {
					fragment := *delta.Value.Input
					acc.AppendToolCallArgDelta(toolIndex, fragment)
					out.Push(eventstream.ToolCallDeltaEvent{ContentIndex: toolIndex, Delta: fragment, Partial: acc.Partial()})
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			switch {
			case toolIndex >= 0:
				tc := acc.CloseToolCall(toolIndex)
				out.Push(eventstream.ToolCallEndEvent{ContentIndex: toolIndex, ToolCall: tc, Partial: acc.Partial()})
				toolIndex = -1
			case textIndex >= 0:
				final := acc.CloseText(textIndex)
				out.Push(eventstream.TextEndEvent{ContentIndex: textIndex, Content: final, Partial: acc.Partial()})
				textIndex = -1
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				acc.SetUsage(models.Usage{
					Input:  int(aws.ToInt32(ev.Value.Usage.InputTokens)),
					Output: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
				})
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			acc.SetStopReason(mapStopReason(string(ev.Value.StopReason)))
		}
	}

	if err := eventStream.Err(); err != nil {
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

func toBedrockTools(tools []providers.ToolDefinition) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(tools))
	for i, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

func convertMessages(msgs models.MessageList) ([]types.Message, error) {
	result := make([]types.Message, 0, len(msgs))

	for _, m := range msgs {
		var content []types.ContentBlock
		role := types.ConversationRoleUser

		switch v := m.(type) {
		case models.User:
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content = append(content, &types.ContentBlockMemberText{Value: bb.TextValue})
				}
			}

		case models.Assistant:
			role = types.ConversationRoleAssistant
			for _, b := range v.Content {
				switch bb := b.(type) {
				case models.Text:
					content = append(content, &types.ContentBlockMemberText{Value: bb.TextValue})
				case models.ToolCall:
					content = append(content, &types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String(bb.ID),
							Name:      aws.String(bb.Name),
							Input:     document.NewLazyDocument(map[string]any(bb.Arguments)),
						},
					})
				}
			}

		case models.ToolResult:
			toolContent := []types.ToolResultContentBlock{
				&types.ToolResultContentBlockMemberText{Value: models.TextOf(v.Content)},
			}
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(v.ToolCallID),
					Content:   toolContent,
				},
			})

		default:
			if text := syntheticText(m); text != "" {
				content = append(content, &types.ContentBlockMemberText{Value: text})
			}
		}

		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
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

// bedrockStatusCode recovers the HTTP status smithy-go's transport layer
// attaches to a failed AWS call so Bedrock failures classify through
// providers.ReasonFromStatus the same way every other adapter's errors
// do; 0 means no response was ever received (a network-level failure).
func bedrockStatusCode(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}
