package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServerEvent is the closed set of decoded inbound variants.
type ServerEvent interface {
	serverEvent()
}

type TranscriptSource int

const (
	SourceInput TranscriptSource = iota
	SourceOutput
)

func (s TranscriptSource) String() string {
	if s == SourceInput {
		return "input"
	}
	return "output"
}

type SetupComplete struct{}

type AudioPayload struct {
	MIMEType string
	Data     string
}

type TranscriptFragment struct {
	Source TranscriptSource
	Text   string
}

type ToolCallBatch struct {
	Calls []ToolCall
}

type TurnComplete struct{}

type Interrupted struct{}

type ErrorEvent struct {
	Message string
}

func (SetupComplete) serverEvent()      {}
func (AudioPayload) serverEvent()       {}
func (TranscriptFragment) serverEvent() {}
func (ToolCallBatch) serverEvent()      {}
func (TurnComplete) serverEvent()       {}
func (Interrupted) serverEvent()        {}
func (ErrorEvent) serverEvent()         {}

// ParseServerMessage decodes one inbound frame. Unrecognized envelopes yield no events.
func ParseServerMessage(raw []byte) ([]ServerEvent, error) {
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return Events(msg), nil
}

// Events flattens a server message into variants in dispatch order:
// tool calls, input then output transcript, audio, interrupted, turn complete.
func Events(msg ServerMessage) []ServerEvent {
	var out []ServerEvent
	if msg.SetupComplete != nil {
		out = append(out, SetupComplete{})
	}
	if msg.Error != nil {
		out = append(out, ErrorEvent{Message: strings.TrimSpace(msg.Error.Message)})
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
		}
		out = append(out, ToolCallBatch{Calls: calls})
	}

	sc := msg.ServerContent
	if sc == nil {
		return out
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		out = append(out, TranscriptFragment{Source: SourceInput, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, TranscriptFragment{Source: SourceOutput, Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				out = append(out, AudioPayload{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data})
			}
		}
	}
	if sc.Interrupted {
		out = append(out, Interrupted{})
	}
	if sc.TurnComplete {
		out = append(out, TurnComplete{})
	}
	return out
}
