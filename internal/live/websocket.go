package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/iris/internal/protocol"
)

const (
	wsWriteTimeout     = 3 * time.Second
	wsHandshakeTimeout = 8 * time.Second
	wsReadLimit        = 16 << 20
)

// WebSocketDialer speaks the BidiGenerateContent JSON protocol directly.
type WebSocketDialer struct {
	url    string
	apiKey string
	dialer websocket.Dialer
}

func NewWebSocketDialer(rawURL, apiKey string) *WebSocketDialer {
	return &WebSocketDialer{
		url:    strings.TrimSpace(rawURL),
		apiKey: strings.TrimSpace(apiKey),
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: wsHandshakeTimeout,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, setup protocol.Setup) (Conn, error) {
	if d.apiKey == "" {
		return nil, ErrMissingKey
	}
	target, err := d.endpoint()
	if err != nil {
		return nil, err
	}
	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("live dial failed: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	ws := newWSConn(conn)
	if err := ws.Send(ctx, protocol.SetupMessage(setup)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live setup write: %w", err)
	}
	return ws, nil
}

func (d *WebSocketDialer) endpoint() (string, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return "", fmt.Errorf("invalid live url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid live url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsConn struct {
	conn *websocket.Conn
	msgs chan []byte
	errs chan error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	ws := &wsConn{
		conn: conn,
		msgs: make(chan []byte, 256),
		errs: make(chan error, 1),
	}
	go func() {
		defer close(ws.msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				ws.errs <- err
				return
			}
			ws.msgs <- data
		}
	}()
	return ws
}

func (ws *wsConn) Send(ctx context.Context, msg protocol.ClientMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := protocol.MarshalClientMessage(msg)
	if err != nil {
		return err
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	defer ws.conn.SetWriteDeadline(time.Time{})
	if err := ws.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (ws *wsConn) Receive(ctx context.Context) ([]protocol.ServerEvent, error) {
	data, err := ws.nextMessage(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.ParseServerMessage(data)
}

func (ws *wsConn) nextMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-ws.errs:
		return nil, closeErr(err)
	case data, ok := <-ws.msgs:
		if !ok {
			select {
			case err := <-ws.errs:
				return nil, closeErr(err)
			default:
			}
			return nil, ErrClosed
		}
		return data, nil
	}
}

func (ws *wsConn) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		ws.writeMu.Lock()
		_ = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.writeMu.Unlock()
		err = ws.conn.Close()
	})
	return err
}

func closeErr(err error) error {
	if err == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

// decodeJSON is shared with the genai adapter, which converts through the wire shape.
func decodeJSON(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
