// Package engine runs one realtime voice session at a time: it owns the live
// connection, microphone capture, speaker playback and the passive context watcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/audio"
	"github.com/ent0n29/iris/internal/capture"
	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/live"
	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/memory"
	"github.com/ent0n29/iris/internal/observability"
	"github.com/ent0n29/iris/internal/playback"
	"github.com/ent0n29/iris/internal/protocol"
	"github.com/ent0n29/iris/internal/session"
	"github.com/ent0n29/iris/internal/watcher"
)

const (
	defaultHistoryLimit = 10
	defaultFrameSize    = 960
	statsTimeout        = 2 * time.Second
	historyTimeout      = 3 * time.Second
	sendTimeout         = 5 * time.Second
)

// ToolDispatcher answers tool-call batches. It must return one result per call.
type ToolDispatcher interface {
	Declarations() []protocol.FunctionDeclaration
	Dispatch(ctx context.Context, calls []protocol.ToolCall) []protocol.ToolResult
}

type Config struct {
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string

	CaptureFrameSize int
	PlaybackRate     int
	ScheduleEpsilon  time.Duration
	WatcherInterval  time.Duration
	HistoryLimit     int
	RedactHistory    bool
	PersistTimeout   time.Duration
}

// Deps are the collaborators injected by the application shell.
// History, Processes, Stats, Tools, Metrics and Sessions are optional.
type Deps struct {
	Dialer    live.Dialer
	Input     capture.Source
	Output    playback.Opener
	History   memory.Store
	Processes watcher.Enumerator
	Stats     desktop.StatsProvider
	Tools     ToolDispatcher
	Metrics   *observability.Metrics
	Sessions  *session.Manager
}

// Engine is the session state machine. Create one per application and inject it.
type Engine struct {
	cfg      Config
	deps     Deps
	metrics  *observability.Metrics
	sessions *session.Manager
	mute     capture.MuteState
	analyser *playback.Analyser
	events   broadcaster
	log      zerolog.Logger

	mu  sync.Mutex
	cur *run
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrConfig)
	}
	if deps.Input == nil || deps.Output == nil {
		return nil, fmt.Errorf("%w: input and output devices are required", ErrConfig)
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = audio.PlaybackRate
	}
	if cfg.ScheduleEpsilon <= 0 {
		cfg.ScheduleEpsilon = playback.DefaultEpsilon
	}
	if cfg.CaptureFrameSize <= 0 {
		cfg.CaptureFrameSize = defaultFrameSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if deps.Processes == nil {
		deps.Processes = desktop.EmptyEnumerator{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("iris", prometheus.NewRegistry())
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewManager(0)
	}

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		metrics:  metrics,
		sessions: sessions,
		analyser: playback.NewAnalyser(),
		log:      logging.L("engine"),
	}
	sessions.SetChangeHook(func(s session.Session) {
		e.events.publish(Event{Type: EventState, SessionID: s.ID, State: s.State.String()})
	})
	return e, nil
}

// Connect opens a new session. It returns once the setup message is sent and
// capture is running; the session becomes Active on the first inbound message.
func (e *Engine) Connect(ctx context.Context) error {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return fmt.Errorf("%w: missing API key (set IRIS_API_KEY or GEMINI_API_KEY)", ErrConfig)
	}

	e.mu.Lock()
	if e.cur != nil {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	sess := e.sessions.Create()
	r := newRun(e, sess.ID)
	e.cur = r
	e.mu.Unlock()

	e.metrics.SessionEvents.WithLabelValues("connect").Inc()
	r.log.Info().Msg("connecting")

	r.startMu.Lock()
	err := r.start(ctx)
	r.startMu.Unlock()
	if err != nil {
		reason := "connect failed"
		if errors.Is(err, ErrDevice) {
			reason = "device unavailable"
		}
		e.teardown(r, reason)
		r.log.Warn().Err(err).Msg("connect failed")
		e.events.publish(Event{Type: EventError, SessionID: r.id, Text: err.Error()})
		return err
	}
	return nil
}

// Disconnect tears the current session down. Calling it without a session is a no-op.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return
	}
	// Abort a connect in progress, then wait for it to return.
	r.cancel()
	r.startMu.Lock()
	r.startMu.Unlock()
	e.teardown(r, "client disconnect")
	<-r.loopDone
}

func (e *Engine) SetMute(muted bool) {
	e.mute.Set(muted)
	e.log.Debug().Bool("muted", muted).Msg("mute changed")
}

func (e *Engine) Muted() bool { return e.mute.Muted() }

// IsConnected reports whether a session holds an open connection.
func (e *Engine) IsConnected() bool {
	return e.State().Connected()
}

// State is the current session's state, Closed after a session ended, or Idle.
func (e *Engine) State() session.State {
	s, err := e.sessions.Current()
	if err != nil {
		return session.StateIdle
	}
	return s.State
}

// Session returns the current or most recent session record.
func (e *Engine) Session() (session.Session, error) {
	return e.sessions.Current()
}

// SendVideoFrame forwards one base64 JPEG frame while the session is Active.
func (e *Engine) SendVideoFrame(ctx context.Context, frame string) error {
	if strings.TrimSpace(frame) == "" {
		return fmt.Errorf("%w: empty video frame", protocol.ErrMalformedMessage)
	}
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil || e.State() != session.StateActive {
		return ErrNotActive
	}
	return r.send(ctx, protocol.RealtimeVideo(frame))
}

// Analyser is the amplitude tap fed by everything the speaker plays.
func (e *Engine) Analyser() *playback.Analyser { return e.analyser }

// Subscribe returns a stream of session events and a func to cancel it.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// Close disconnects and waits for queued history writes.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	e.Disconnect()
	if r != nil && r.persist != nil {
		return r.persist.wait(ctx)
	}
	return nil
}

// teardown stops the watcher, closes the connection, releases capture, the
// speaker and the scheduler, in that order. Only the first call has effect.
func (e *Engine) teardown(r *run, reason string) {
	r.closeOnce.Do(func() {
		r.open.Store(false)
		_ = e.sessions.End(r.id, reason)
		e.transition(r, session.StateClosing)
		r.cancel()

		if r.watcher != nil {
			r.watcher.Stop()
		}
		if r.conn != nil {
			if err := r.conn.Close(); err != nil {
				r.log.Debug().Err(err).Msg("close connection")
			}
		}
		if r.pipeline != nil {
			r.pipeline.Stop()
		}
		if r.out != nil {
			if err := r.out.Close(); err != nil {
				r.log.Warn().Err(err).Msg("release output device")
			}
		}
		if r.sched != nil {
			r.sched.Close()
		}
		if r.persist != nil {
			r.persist.close()
		}
		if r.counted {
			e.metrics.ActiveSessions.Dec()
		}

		e.transition(r, session.StateClosed)
		e.metrics.SessionEvents.WithLabelValues("disconnect").Inc()
		r.log.Info().Str("reason", reason).Msg("session closed")

		e.mu.Lock()
		if e.cur == r {
			e.cur = nil
		}
		e.mu.Unlock()

		r.mu.Lock()
		r.closed = true
		started := r.loopStarted
		r.mu.Unlock()
		if !started {
			close(r.loopDone)
		}
	})
}

func (e *Engine) transition(r *run, to session.State) {
	if _, err := e.sessions.Transition(r.id, to); err != nil {
		r.log.Debug().Err(err).Str(logging.KeyState, to.String()).Msg("transition skipped")
	}
}

// run is the state of one connection lifetime.
type run struct {
	e   *Engine
	id  string
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	open   atomic.Bool

	conn     live.Conn
	out      playback.Device
	sched    *playback.Scheduler
	pipeline *capture.Pipeline
	watcher  *watcher.Watcher
	persist  *persister
	turn     TranscriptBuffer
	counted  bool

	startMu   sync.Mutex
	closeOnce sync.Once
	loopDone  chan struct{}

	mu          sync.Mutex
	closed      bool
	loopStarted bool

	// receive loop only
	active        bool
	setupSentAt   time.Time
	turnStartedAt time.Time
	awaitAudio    bool
}

func newRun(e *Engine, id string) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		e:        e,
		id:       id,
		log:      logging.L("engine").With().Str(logging.KeySessionID, id).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

func (r *run) start(parent context.Context) error {
	e := r.e
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	setup := protocol.NewSetup(protocol.SetupOptions{
		Model:             e.cfg.Model,
		Voice:             e.cfg.Voice,
		SystemInstruction: r.instruction(ctx),
		Declarations:      r.declarations(),
	})

	out, err := e.deps.Output.OpenOutput(e.cfg.PlaybackRate, e.analyser)
	if err != nil {
		return fmt.Errorf("%w: open output: %w", ErrDevice, err)
	}
	r.out = out
	r.sched = playback.NewScheduler(out.Output(), e.cfg.PlaybackRate, e.cfg.ScheduleEpsilon)

	dialStart := time.Now()
	conn, err := e.deps.Dialer.Dial(ctx, setup)
	if err != nil {
		if errors.Is(err, live.ErrMissingKey) {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	r.conn = conn
	r.open.Store(true)
	r.setupSentAt = time.Now()
	e.metrics.ObserveStage("connect", time.Since(dialStart))
	e.metrics.WireMessages.WithLabelValues("out", "setup").Inc()
	e.transition(r, session.StateConfiguring)
	e.metrics.ActiveSessions.Inc()
	r.counted = true

	if e.deps.History != nil {
		r.persist = newPersister(e.deps.History, r.id, e.cfg.RedactHistory, e.cfg.PersistTimeout, e.metrics)
	}

	r.pipeline = capture.NewPipeline(e.deps.Input, r, &e.mute, e.cfg.CaptureFrameSize)
	if err := r.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}

	r.watcher = watcher.New(e.deps.Processes, r, e.cfg.WatcherInterval)
	r.watcher.OnNotice(func(d watcher.Delta) {
		e.metrics.ContextNotices.Inc()
		e.events.publish(Event{Type: EventContextNotice, SessionID: r.id, Text: watcher.Summary(d)})
	})
	r.watcher.Start(r.ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("%w: disconnected while connecting", ErrTransport)
	}
	r.loopStarted = true
	r.mu.Unlock()
	go r.receiveLoop()
	r.log.Info().Msg("setup sent; capture and watcher running")
	return nil
}

func (r *run) instruction(ctx context.Context) string {
	e := r.e
	var history []memory.Message
	if e.deps.History != nil {
		hctx, cancel := context.WithTimeout(ctx, historyTimeout)
		msgs, err := e.deps.History.History(hctx, e.cfg.HistoryLimit)
		cancel()
		if err != nil {
			r.log.Warn().Err(err).Msg("load history failed; starting without context")
		} else {
			history = msgs
		}
	}
	var stats *desktop.SystemStats
	if e.deps.Stats != nil {
		sctx, cancel := context.WithTimeout(ctx, statsTimeout)
		s, err := e.deps.Stats.Stats(sctx)
		cancel()
		if err != nil {
			r.log.Debug().Err(err).Msg("system stats unavailable")
		} else {
			stats = &s
		}
	}
	return buildInstruction(e.cfg.SystemInstruction, history, stats)
}

func (r *run) declarations() []protocol.FunctionDeclaration {
	if r.e.deps.Tools == nil {
		return nil
	}
	return r.e.deps.Tools.Declarations()
}

// IsOpen and SendAudio make the run the capture sink.
func (r *run) IsOpen() bool { return r.open.Load() }

func (r *run) SendAudio(chunk audio.EncodedChunk) error {
	if !r.open.Load() {
		return live.ErrClosed
	}
	ctx, cancel := context.WithTimeout(r.ctx, sendTimeout)
	defer cancel()
	if err := r.conn.Send(ctx, protocol.RealtimeAudio(chunk)); err != nil {
		r.e.metrics.CaptureFrames.WithLabelValues("failed").Inc()
		return err
	}
	r.e.metrics.CaptureFrames.WithLabelValues("sent").Inc()
	return nil
}

// SendContextNotice makes the run the watcher sink.
func (r *run) SendContextNotice(ctx context.Context, text string) error {
	return r.send(ctx, protocol.ContextNotice(text))
}

func (r *run) send(ctx context.Context, msg protocol.ClientMessage) error {
	if !r.open.Load() {
		return ErrNotActive
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := r.conn.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	r.e.metrics.WireMessages.WithLabelValues("out", msg.Kind()).Inc()
	return nil
}

func (r *run) receiveLoop() {
	defer close(r.loopDone)
	for {
		events, err := r.conn.Receive(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if errors.Is(err, protocol.ErrMalformedMessage) {
				r.e.metrics.WireMessages.WithLabelValues("in", "malformed").Inc()
				r.log.Warn().Err(err).Msg("dropped undecodable server frame")
				continue
			}
			reason := "connection closed"
			if !errors.Is(err, live.ErrClosed) {
				reason = "transport failure"
				r.log.Warn().Err(fmt.Errorf("%w: %w", ErrTransport, err)).Msg("receive failed")
			}
			r.e.events.publish(Event{Type: EventError, SessionID: r.id, Text: reason})
			r.e.teardown(r, reason)
			return
		}
		if r.ctx.Err() != nil {
			return
		}
		if !r.active {
			r.active = true
			r.e.metrics.ObserveStage("setup_complete", time.Since(r.setupSentAt))
			r.e.transition(r, session.StateActive)
		}
		for _, evt := range events {
			if !r.handle(evt) {
				return
			}
		}
	}
}

// handle applies one inbound event. It returns false once the session is torn down.
func (r *run) handle(evt protocol.ServerEvent) bool {
	e := r.e
	switch ev := evt.(type) {
	case protocol.SetupComplete:
		e.metrics.WireMessages.WithLabelValues("in", "setup_complete").Inc()

	case protocol.ToolCallBatch:
		e.metrics.WireMessages.WithLabelValues("in", "tool_call").Inc()
		r.dispatchTools(ev.Calls)

	case protocol.AudioPayload:
		e.metrics.WireMessages.WithLabelValues("in", "audio").Inc()
		if _, err := r.sched.ScheduleChunk(ev.Data); err != nil {
			r.log.Debug().Err(err).Msg("audio chunk not scheduled")
			return true
		}
		e.metrics.PlaybackChunks.WithLabelValues("scheduled").Inc()
		if r.awaitAudio {
			r.awaitAudio = false
			e.metrics.ObserveFirstAudioLatency(time.Since(r.turnStartedAt))
		}

	case protocol.TranscriptFragment:
		e.metrics.WireMessages.WithLabelValues("in", "transcript").Inc()
		if ev.Source == protocol.SourceInput && !r.awaitAudio && r.turn.Empty() {
			r.turnStartedAt = time.Now()
			r.awaitAudio = true
		}
		r.turn.Append(ev.Source, ev.Text)
		e.events.publish(Event{Type: EventTranscript, SessionID: r.id, Source: ev.Source.String(), Text: ev.Text})

	case protocol.Interrupted:
		e.metrics.WireMessages.WithLabelValues("in", "interrupted").Inc()
		start := time.Now()
		n := r.sched.Flush()
		e.metrics.ObserveStage("flush", time.Since(start))
		e.metrics.PlaybackChunks.WithLabelValues("flushed").Add(float64(n))
		_ = e.sessions.RecordInterruption(r.id)
		e.metrics.ObserveIndicator("interrupted")
		r.flushTurn()
		e.events.publish(Event{Type: EventInterrupted, SessionID: r.id})

	case protocol.TurnComplete:
		e.metrics.WireMessages.WithLabelValues("in", "turn_complete").Inc()
		_ = e.sessions.RecordTurn(r.id)
		r.flushTurn()
		e.events.publish(Event{Type: EventTurnComplete, SessionID: r.id})

	case protocol.ErrorEvent:
		e.metrics.WireMessages.WithLabelValues("in", "error").Inc()
		r.log.Warn().Str(logging.KeyError, ev.Message).Msg("server reported error")
		e.events.publish(Event{Type: EventError, SessionID: r.id, Text: ev.Message})
		e.teardown(r, "server error: "+ev.Message)
		return false
	}
	return true
}

// flushTurn persists the user text, then the assistant text. Buffers are cleared
// before the writes complete.
func (r *run) flushTurn() {
	user, assistant := r.turn.Take()
	r.awaitAudio = false
	if r.persist == nil {
		return
	}
	r.persist.enqueue(memory.RoleUser, user)
	r.persist.enqueue(memory.RoleAssistant, assistant)
}

// dispatchTools resolves a batch off the receive loop and answers it in one message.
// Results that finish after teardown are discarded.
func (r *run) dispatchTools(calls []protocol.ToolCall) {
	if len(calls) == 0 {
		return
	}
	e := r.e
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	_ = e.sessions.RecordToolCalls(r.id, len(calls))
	e.events.publish(Event{Type: EventToolCalls, SessionID: r.id, Tools: names})

	go func() {
		start := time.Now()
		var results []protocol.ToolResult
		if e.deps.Tools == nil {
			results = make([]protocol.ToolResult, len(calls))
			for i, c := range calls {
				results[i] = protocol.ResultError(c.ID, c.Name, "tools are not available")
			}
		} else {
			results = e.deps.Tools.Dispatch(r.ctx, calls)
		}
		e.metrics.ObserveStage("tool_dispatch", time.Since(start))

		if r.ctx.Err() != nil || !r.open.Load() {
			r.log.Debug().Int("calls", len(calls)).Msg("tool results discarded after teardown")
			return
		}
		for _, res := range results {
			if res.IsError() {
				r.log.Info().
					Err(fmt.Errorf("%w: %v", ErrTool, res.Response["error"])).
					Str(logging.KeyTool, res.Name).
					Str(logging.KeyCallID, res.ID).
					Msg("tool returned error result")
			}
		}
		if err := r.send(r.ctx, protocol.ToolResponseMessage(results)); err != nil {
			r.log.Warn().Err(err).Msg("send tool response failed")
		}
	}()
}
