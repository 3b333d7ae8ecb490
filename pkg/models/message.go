package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the polymorphic conversation entry shared by every layer of
// the core: the provider adapters produce Assistant messages, the agent
// loop produces ToolResult and synthetic messages, and the session journal
// persists all of them (spec 3.3).
//
// Kind returns the wire-format "type" discriminator used by the tagged-
// variant JSON encoding (spec 6.2); Timestamp returns the message's
// monotonic-within-session creation time (spec 3.4).
type Message interface {
	Kind() string
	Timestamp() time.Time
}

// User is a message authored by the human operator or caller.
type User struct {
	Content ContentBlocks `json:"content"`
	At      time.Time     `json:"timestamp"`
}

func (m User) Kind() string         { return "user" }
func (m User) Timestamp() time.Time { return m.At }

// Assistant is a message produced by a provider adapter, mutated in place
// via the event stream's partial snapshots (spec 3.5) until DoneEvent fixes
// it, then appended to the session.
type Assistant struct {
	Content      ContentBlocks `json:"content"`
	Api          ApiId         `json:"api"`
	Provider     ProviderId    `json:"provider"`
	Model        string        `json:"model"`
	Usage        Usage         `json:"usage"`
	StopReason   StopReason    `json:"stopReason"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	At           time.Time     `json:"timestamp"`
}

func (m Assistant) Kind() string         { return "assistant" }
func (m Assistant) Timestamp() time.Time { return m.At }

// HasToolCalls reports whether the assistant content contains at least one
// ToolCall block (spec 3.4: StopReasonToolUse iff this holds, barring an
// explicit provider override).
func (m Assistant) HasToolCalls() bool {
	return len(ToolCallsOf(m.Content)) > 0
}

// Clone returns a deep-enough copy of the message suitable for handing out
// as an Assistant.partial snapshot without aliasing the producer's slice.
func (m Assistant) Clone() Assistant {
	out := m
	out.Content = append(ContentBlocks(nil), m.Content...)
	return out
}

// ToolResult is produced by the agent loop after invoking a tool, or
// synthesised by the message pipeline to backfill an orphaned tool call
// (spec 3.4, 4.G.1).
type ToolResult struct {
	ToolCallID string        `json:"toolCallId"`
	ToolName   string        `json:"toolName"`
	Content    ContentBlocks `json:"content"`
	Details    JSONObject    `json:"details,omitempty"`
	IsError    bool          `json:"isError"`
	At         time.Time     `json:"timestamp"`
}

func (m ToolResult) Kind() string         { return "toolResult" }
func (m ToolResult) Timestamp() time.Time { return m.At }

// Custom is a synthetic message never sent to the LLM; it exists purely
// for journalling and display.
type Custom struct {
	CustomType string        `json:"customType"`
	Content    ContentBlocks `json:"content"`
	Display    string        `json:"display,omitempty"`
	Details    JSONObject    `json:"details,omitempty"`
	At         time.Time     `json:"timestamp"`
}

func (m Custom) Kind() string         { return "custom" }
func (m Custom) Timestamp() time.Time { return m.At }

// BashExecution is a synthetic journal entry recording a shell command run
// outside the normal tool-call/tool-result exchange (e.g. a slash command).
// It also counts as a turn boundary for compaction cut-point snapping
// (spec 4.I).
type BashExecution struct {
	Command  string    `json:"command"`
	Output   string    `json:"output"`
	ExitCode *int      `json:"exitCode,omitempty"`
	At       time.Time `json:"timestamp"`
}

func (m BashExecution) Kind() string         { return "bashExecution" }
func (m BashExecution) Timestamp() time.Time { return m.At }

// BranchSummary is a synthetic journal marker recording that history
// branched from an earlier message. It is a turn boundary for compaction.
type BranchSummary struct {
	FromID  string    `json:"fromId"`
	Summary string    `json:"summary"`
	At      time.Time `json:"timestamp"`
}

func (m BranchSummary) Kind() string         { return "branchSummary" }
func (m BranchSummary) Timestamp() time.Time { return m.At }

// CompactionSummary is inserted by the compaction policy as the new history
// root when a compaction is committed (spec 3.5, 4.I).
type CompactionSummary struct {
	Summary      string    `json:"summary"`
	TokensBefore int       `json:"tokensBefore"`
	At           time.Time `json:"timestamp"`
}

func (m CompactionSummary) Kind() string         { return "compactionSummary" }
func (m CompactionSummary) Timestamp() time.Time { return m.At }

// IsSynthetic reports whether a message variant is produced by the core
// for bookkeeping rather than by the user or the model (spec 4.G.4,
// Glossary "Synthetic message").
func IsSynthetic(m Message) bool {
	switch m.(type) {
	case Custom, BashExecution, BranchSummary, CompactionSummary:
		return true
	default:
		return false
	}
}

// IsTurnBoundary reports whether a message marks the start of a new turn
// for the purposes of compaction cut-point snapping (spec 4.I
// findCutPoint): a User message, a BashExecution, or a BranchSummary.
func IsTurnBoundary(m Message) bool {
	switch m.(type) {
	case User, BashExecution, BranchSummary:
		return true
	default:
		return false
	}
}

// --- tagged-variant JSON codec (spec 6.2) ---

type wireMessage struct {
	Type string `json:"type"`

	Content      ContentBlocks `json:"content,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`

	// Assistant
	Api          ApiId      `json:"api,omitempty"`
	Provider     ProviderId `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	StopReason   StopReason `json:"stopReason,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	// ToolResult
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	Details    JSONObject `json:"details,omitempty"`
	IsError    bool       `json:"isError,omitempty"`

	// Custom
	CustomType string `json:"customType,omitempty"`
	Display    string `json:"display,omitempty"`

	// BashExecution
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// BranchSummary
	FromID string `json:"fromId,omitempty"`

	// CompactionSummary
	Summary      string `json:"summary,omitempty"`
	TokensBefore int    `json:"tokensBefore,omitempty"`
}

// MarshalMessage encodes a single Message into its tagged-variant wire
// form. Explicit nulls are never written; omitted fields default on read.
func MarshalMessage(m Message) ([]byte, error) {
	w := wireMessage{Type: m.Kind(), Timestamp: m.Timestamp()}
	switch v := m.(type) {
	case User:
		w.Content = v.Content
	case Assistant:
		w.Content, w.Api, w.Provider, w.Model = v.Content, v.Api, v.Provider, v.Model
		w.StopReason, w.ErrorMessage = v.StopReason, v.ErrorMessage
		if !v.Usage.IsZero() {
			u := v.Usage
			w.Usage = &u
		}
	case ToolResult:
		w.ToolCallID, w.ToolName, w.Content = v.ToolCallID, v.ToolName, v.Content
		w.Details, w.IsError = v.Details, v.IsError
	case Custom:
		w.CustomType, w.Content, w.Display, w.Details = v.CustomType, v.Content, v.Display, v.Details
	case BashExecution:
		w.Command, w.Output, w.ExitCode = v.Command, v.Output, v.ExitCode
	case BranchSummary:
		w.FromID, w.Summary = v.FromID, v.Summary
	case CompactionSummary:
		w.Summary, w.TokensBefore = v.Summary, v.TokensBefore
	default:
		return nil, fmt.Errorf("models: unknown message type %T", m)
	}
	return json.Marshal(w)
}

// UnmarshalMessage decodes a tagged-variant message record. Unknown keys
// are ignored by encoding/json already; an unrecognised "type" is an
// error since the session journal must never silently drop a record.
func UnmarshalMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "user":
		return User{Content: w.Content, At: w.Timestamp}, nil
	case "assistant":
		var usage Usage
		if w.Usage != nil {
			usage = *w.Usage
		}
		return Assistant{
			Content: w.Content, Api: w.Api, Provider: w.Provider, Model: w.Model,
			Usage: usage, StopReason: w.StopReason, ErrorMessage: w.ErrorMessage, At: w.Timestamp,
		}, nil
	case "toolResult":
		return ToolResult{
			ToolCallID: w.ToolCallID, ToolName: w.ToolName, Content: w.Content,
			Details: w.Details, IsError: w.IsError, At: w.Timestamp,
		}, nil
	case "custom":
		return Custom{CustomType: w.CustomType, Content: w.Content, Display: w.Display, Details: w.Details, At: w.Timestamp}, nil
	case "bashExecution":
		return BashExecution{Command: w.Command, Output: w.Output, ExitCode: w.ExitCode, At: w.Timestamp}, nil
	case "branchSummary":
		return BranchSummary{FromID: w.FromID, Summary: w.Summary, At: w.Timestamp}, nil
	case "compactionSummary":
		return CompactionSummary{Summary: w.Summary, TokensBefore: w.TokensBefore, At: w.Timestamp}, nil
	default:
		return nil, fmt.Errorf("models: unknown message tag %q", w.Type)
	}
}

// MessageList is a JSON-(de)serializable, order-preserving list of
// Message, matching the session format's line-by-line self-description
// (spec 3.4, 6.2).
type MessageList []Message

func (ms MessageList) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(ms))
	for _, m := range ms {
		data, err := MarshalMessage(m)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a whole list leniently: a record UnmarshalMessage
// rejects (an unrecognised "type", added by a newer core) is skipped
// rather than failing the whole list, so an older reader stays forward-
// compatible. The session journal, which must never silently drop a
// record, reads and recovers line by line with UnmarshalMessage directly
// instead of through this bulk path (spec 4.K).
func (ms *MessageList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(MessageList, 0, len(raw))
	for _, r := range raw {
		m, err := UnmarshalMessage(r)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	*ms = out
	return nil
}
