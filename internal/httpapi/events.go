package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/iris/internal/engine"
)

// levelFrame carries the speaker amplitude for the visualizer.
type levelFrame struct {
	Type     string  `json:"type"`
	Level    float64 `json:"level"`
	Spectrum []int   `json:"spectrum"`
}

// clientCommand is what the UI may send over the events socket.
type clientCommand struct {
	Type  string `json:"type"`
	Muted *bool  `json:"muted,omitempty"`
	Frame string `json:"frame,omitempty"`
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.deps.Engine.Subscribe()
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeEvents(ctx, cancel, conn, events)
	}()

	conn.SetReadLimit(maxVideoFrameSz)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if s.applyCommand(ctx, cmd) {
			s.metrics.WireMessages.WithLabelValues("ui_in", cmd.Type).Inc()
		}
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// applyCommand reports whether cmd was recognized.
func (s *Server) applyCommand(ctx context.Context, cmd clientCommand) bool {
	eng := s.deps.Engine
	switch cmd.Type {
	case "mute":
		muted := !eng.Muted()
		if cmd.Muted != nil {
			muted = *cmd.Muted
		}
		eng.SetMute(muted)
	case "video":
		if err := eng.SendVideoFrame(ctx, stripDataURL(cmd.Frame)); err != nil {
			s.log.Debug().Err(err).Msg("video frame dropped")
		}
	case "connect":
		if err := eng.Connect(ctx); err != nil {
			s.log.Warn().Err(err).Msg("connect from ui failed")
		}
	case "disconnect":
		eng.Disconnect()
	default:
		return false
	}
	return true
}

// writeEvents is the only writer on conn.
func (s *Server) writeEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, events <-chan engine.Event) {
	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			cancel()
			return false
		}
		return true
	}

	if !write(engine.Event{Type: engine.EventState, State: s.deps.Engine.State().String(), At: time.Now().UTC()}) {
		return
	}

	levels := time.NewTicker(levelInterval)
	defer levels.Stop()
	pings := time.NewTicker(30 * time.Second)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !write(evt) {
				return
			}
			s.metrics.WireMessages.WithLabelValues("ui_out", string(evt.Type)).Inc()
		case <-levels.C:
			if !s.deps.Engine.IsConnected() {
				continue
			}
			if !write(s.levelFrame()) {
				return
			}
		case <-pings.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) levelFrame() levelFrame {
	tap := s.deps.Engine.Analyser()
	bins := tap.Spectrum()
	spectrum := make([]int, len(bins))
	for i, b := range bins {
		spectrum[i] = int(b)
	}
	return levelFrame{Type: "level", Level: tap.Level(), Spectrum: spectrum}
}
