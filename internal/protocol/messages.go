// Package protocol defines the live session wire format: client messages sent
// to the model service and the decoded variants of what it sends back.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ent0n29/iris/internal/audio"
)

const (
	ModalityAudio = "AUDIO"
	VideoMIMEType = "image/jpeg"
)

var ErrMalformedMessage = errors.New("malformed server message")

// ClientMessage is the outbound envelope. Exactly one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Kind names the populated variant, used for metrics and logs.
func (m ClientMessage) Kind() string {
	switch {
	case m.Setup != nil:
		return "setup"
	case m.RealtimeInput != nil:
		return "realtime_input"
	case m.ClientContent != nil:
		return "client_content"
	case m.ToolResponse != nil:
		return "tool_response"
	default:
		return "empty"
	}
}

type Setup struct {
	Model                    string           `json:"model"`
	GenerationConfig         GenerationConfig `json:"generationConfig"`
	SystemInstruction        *Content         `json:"systemInstruction,omitempty"`
	Tools                    []Tool           `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the JSON-schema subset accepted for tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// SetupOptions carries the session configuration sent once at connect.
type SetupOptions struct {
	Model             string
	Voice             string
	SystemInstruction string
	Declarations      []FunctionDeclaration
}

func NewSetup(opts SetupOptions) Setup {
	s := Setup{
		Model: opts.Model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{ModalityAudio},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if v := strings.TrimSpace(opts.Voice); v != "" {
		s.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: v}},
		}
	}
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		s.SystemInstruction = &Content{Parts: []Part{{Text: opts.SystemInstruction}}}
	}
	if len(opts.Declarations) > 0 {
		s.Tools = []Tool{{FunctionDeclarations: opts.Declarations}}
	}
	return s
}

func SetupMessage(s Setup) ClientMessage {
	return ClientMessage{Setup: &s}
}

func RealtimeAudio(chunk audio.EncodedChunk) ClientMessage {
	return ClientMessage{RealtimeInput: &RealtimeInput{
		MediaChunks: []Blob{{MIMEType: chunk.MIMEType, Data: chunk.Data}},
	}}
}

// RealtimeVideo wraps one base64 JPEG frame.
func RealtimeVideo(frame string) ClientMessage {
	return ClientMessage{RealtimeInput: &RealtimeInput{
		MediaChunks: []Blob{{MIMEType: VideoMIMEType, Data: frame}},
	}}
}

// ContextNotice is a user-role text turn that does not ask the model to respond.
func ContextNotice(text string) ClientMessage {
	return ClientMessage{ClientContent: &ClientContent{
		Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		TurnComplete: false,
	}}
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers exactly one ToolCall. Response holds either "result" or "error".
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

func ResultValue(id, name string, value any) ToolResult {
	return ToolResult{ID: id, Name: name, Response: map[string]any{"result": value}}
}

func ResultError(id, name, msg string) ToolResult {
	return ToolResult{ID: id, Name: name, Response: map[string]any{"error": msg}}
}

// IsError reports whether the result carries an error value.
func (r ToolResult) IsError() bool {
	_, ok := r.Response["error"]
	return ok
}

func ToolResponseMessage(results []ToolResult) ClientMessage {
	out := make([]FunctionResponse, 0, len(results))
	for _, r := range results {
		out = append(out, FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return ClientMessage{ToolResponse: &ToolResponse{FunctionResponses: out}}
}

func MarshalClientMessage(m ClientMessage) ([]byte, error) {
	if m.Kind() == "empty" {
		return nil, errors.New("empty client message")
	}
	return json.Marshal(m)
}

// ServerMessage is the raw inbound envelope. Several fields may be set at once.
type ServerMessage struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *ServerContent   `json:"serverContent,omitempty"`
	ToolCall      *ToolCallMessage `json:"toolCall,omitempty"`
	GoAway        *GoAway          `json:"goAway,omitempty"`
	Error         *ServerError     `json:"error,omitempty"`
}

type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

type Transcription struct {
	Text string `json:"text"`
}

type ToolCallMessage struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type ServerError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}
