package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ent0n29/iris/internal/protocol"
)

// GenAIDialer opens live sessions through the official Go SDK.
type GenAIDialer struct {
	apiKey string
}

func NewGenAIDialer(apiKey string) *GenAIDialer {
	return &GenAIDialer{apiKey: strings.TrimSpace(apiKey)}
}

func (d *GenAIDialer) Dial(ctx context.Context, setup protocol.Setup) (Conn, error) {
	if d.apiKey == "" {
		return nil, ErrMissingKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	cfg, err := connectConfig(setup)
	if err != nil {
		return nil, err
	}
	session, err := client.Live.Connect(ctx, setup.Model, cfg)
	if err != nil {
		return nil, fmt.Errorf("live dial failed: %w", err)
	}
	return &genaiConn{session: session}, nil
}

// connectConfig flattens the setup message into the SDK's connect config.
func connectConfig(setup protocol.Setup) (*genai.LiveConnectConfig, error) {
	flat := map[string]any{
		"responseModalities": setup.GenerationConfig.ResponseModalities,
	}
	if setup.GenerationConfig.SpeechConfig != nil {
		flat["speechConfig"] = setup.GenerationConfig.SpeechConfig
	}
	if setup.SystemInstruction != nil {
		flat["systemInstruction"] = setup.SystemInstruction
	}
	if len(setup.Tools) > 0 {
		flat["tools"] = upperSchemaTypes(setup.Tools)
	}
	if setup.InputAudioTranscription != nil {
		flat["inputAudioTranscription"] = map[string]any{}
	}
	if setup.OutputAudioTranscription != nil {
		flat["outputAudioTranscription"] = map[string]any{}
	}
	var cfg genai.LiveConnectConfig
	if err := decodeJSON(flat, &cfg); err != nil {
		return nil, fmt.Errorf("live connect config: %w", err)
	}
	return &cfg, nil
}

// upperSchemaTypes maps JSON-schema type names onto the SDK's upper-case enum.
func upperSchemaTypes(tools []protocol.Tool) []protocol.Tool {
	out := make([]protocol.Tool, len(tools))
	for i, tool := range tools {
		decls := make([]protocol.FunctionDeclaration, len(tool.FunctionDeclarations))
		for j, decl := range tool.FunctionDeclarations {
			decl.Parameters = upperSchema(decl.Parameters)
			decls[j] = decl
		}
		out[i] = protocol.Tool{FunctionDeclarations: decls}
	}
	return out
}

func upperSchema(s *protocol.Schema) *protocol.Schema {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Type = strings.ToUpper(s.Type)
	if len(s.Properties) > 0 {
		cp.Properties = make(map[string]*protocol.Schema, len(s.Properties))
		for k, v := range s.Properties {
			cp.Properties[k] = upperSchema(v)
		}
	}
	return &cp
}

type genaiConn struct {
	session *genai.Session

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *genaiConn) Send(ctx context.Context, msg protocol.ClientMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	switch {
	case msg.RealtimeInput != nil:
		err = c.sendRealtime(*msg.RealtimeInput)
	case msg.ClientContent != nil:
		var in genai.LiveClientContentInput
		if err = decodeJSON(msg.ClientContent, &in); err == nil {
			err = c.session.SendClientContent(in)
		}
	case msg.ToolResponse != nil:
		var in genai.LiveToolResponseInput
		if err = decodeJSON(msg.ToolResponse, &in); err == nil {
			err = c.session.SendToolResponse(in)
		}
	case msg.Setup != nil:
		return errors.New("setup is sent by Dial")
	default:
		return errors.New("empty client message")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *genaiConn) sendRealtime(in protocol.RealtimeInput) error {
	for _, blob := range in.MediaChunks {
		field := "audio"
		if strings.HasPrefix(blob.MIMEType, "image/") {
			field = "video"
		}
		var input genai.LiveRealtimeInput
		if err := decodeJSON(map[string]any{field: blob}, &input); err != nil {
			return err
		}
		if err := c.session.SendRealtimeInput(input); err != nil {
			return err
		}
	}
	return nil
}

// Receive blocks in the SDK; cancellation is delivered by Close.
func (c *genaiConn) Receive(ctx context.Context) ([]protocol.ServerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := c.session.Receive()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	var wire protocol.ServerMessage
	if err := decodeJSON(msg, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	return protocol.Events(wire), nil
}

func (c *genaiConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.session.Close()
	})
	return err
}
