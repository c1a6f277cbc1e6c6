// Package watcher tells the model which applications opened or closed since the last look.
package watcher

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/logging"
)

const DefaultInterval = 10 * time.Second

// Enumerator produces the current set of running application names.
type Enumerator interface {
	Snapshot(ctx context.Context) ([]string, error)
}

// Sink delivers a context notice to the model without requesting a response.
type Sink interface {
	SendContextNotice(ctx context.Context, text string) error
}

// Delta is the difference between two snapshots.
type Delta struct {
	Opened []string
	Closed []string
}

func (d Delta) Empty() bool { return len(d.Opened) == 0 && len(d.Closed) == 0 }

// Diff returns names added to and removed from prev, each sorted.
func Diff(prev, cur []string) Delta {
	before := toSet(prev)
	after := toSet(cur)
	var d Delta
	for name := range after {
		if _, ok := before[name]; !ok {
			d.Opened = append(d.Opened, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			d.Closed = append(d.Closed, name)
		}
	}
	sort.Strings(d.Opened)
	sort.Strings(d.Closed)
	return d
}

// Summary renders the delta as the notice text.
func Summary(d Delta) string {
	var parts []string
	if len(d.Opened) > 0 {
		parts = append(parts, "opened: "+strings.Join(d.Opened, ", "))
	}
	if len(d.Closed) > 0 {
		parts = append(parts, "closed: "+strings.Join(d.Closed, ", "))
	}
	return "[system context] " + strings.Join(parts, "; ")
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// Watcher polls the enumerator and reports changes. It is owned by one session.
type Watcher struct {
	enum     Enumerator
	sink     Sink
	interval time.Duration
	log      zerolog.Logger
	onNotice func(Delta)

	mu     sync.Mutex
	last   []string
	seeded bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(enum Enumerator, sink Sink, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		enum:     enum,
		sink:     sink,
		interval: interval,
		log:      logging.L("watcher"),
	}
}

// OnNotice registers a callback invoked after each notice is sent.
func (w *Watcher) OnNotice(fn func(Delta)) { w.onNotice = fn }

// Start runs the polling loop until Stop or ctx cancellation. The first tick is immediate.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.Tick(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				w.Tick(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick takes one snapshot. The first successful snapshot only seeds the baseline.
func (w *Watcher) Tick(ctx context.Context) (Delta, bool) {
	cur, err := w.enum.Snapshot(ctx)
	if err != nil {
		w.log.Debug().Err(err).Msg("process snapshot failed; treating as no change")
		return Delta{}, false
	}

	w.mu.Lock()
	prev, seeded := w.last, w.seeded
	w.last = append([]string(nil), cur...)
	w.seeded = true
	w.mu.Unlock()

	if !seeded {
		return Delta{}, false
	}
	d := Diff(prev, cur)
	if d.Empty() {
		return d, false
	}
	if err := w.sink.SendContextNotice(ctx, Summary(d)); err != nil {
		w.log.Debug().Err(err).Msg("context notice not delivered")
		return d, false
	}
	if w.onNotice != nil {
		w.onNotice(d)
	}
	return d, true
}
