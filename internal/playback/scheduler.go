// Package playback schedules decoded model audio on a gapless virtual clock.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/audio"
	"github.com/ent0n29/iris/internal/logging"
)

// DefaultEpsilon is the lead applied when the cursor has fallen behind the device clock.
const DefaultEpsilon = 50 * time.Millisecond

var ErrClosed = errors.New("playback scheduler closed")

// Voice is one scheduled buffer on the output graph.
type Voice interface {
	Stop()
}

// Output is the audio graph the scheduler plays into. Now is the device clock.
// onEnded must be invoked without holding locks the caller could contend on.
type Output interface {
	Now() time.Duration
	Start(samples []float32, rate int, at time.Duration, onEnded func()) Voice
}

// PlaybackChunk describes one scheduled chunk.
type PlaybackChunk struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration
	Samples  int
}

func (c PlaybackChunk) End() time.Duration { return c.Start + c.Duration }

type Scheduler struct {
	out     Output
	rate    int
	epsilon time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	cursor time.Duration
	active map[uint64]Voice
	nextID uint64
	closed bool
}

func NewScheduler(out Output, rate int, epsilon time.Duration) *Scheduler {
	if rate <= 0 {
		rate = audio.PlaybackRate
	}
	if epsilon < 0 {
		epsilon = DefaultEpsilon
	}
	return &Scheduler{
		out:     out,
		rate:    rate,
		epsilon: epsilon,
		log:     logging.L("playback"),
		active:  make(map[uint64]Voice),
	}
}

// ScheduleChunk decodes a base64 PCM16 payload and queues it right after the previous chunk.
func (s *Scheduler) ScheduleChunk(payload string) (PlaybackChunk, error) {
	samples, err := audio.DecodeChunk(payload)
	if err != nil {
		return PlaybackChunk{}, fmt.Errorf("decode playback chunk: %w", err)
	}
	return s.Schedule(samples)
}

// Schedule queues already decoded samples at the scheduler rate.
func (s *Scheduler) Schedule(samples []float32) (PlaybackChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PlaybackChunk{}, ErrClosed
	}

	now := s.out.Now()
	start := s.cursor
	if floor := now + s.epsilon; start < floor {
		start = floor
	}
	dur := time.Duration(len(samples)) * time.Second / time.Duration(s.rate)

	s.nextID++
	id := s.nextID
	chunk := PlaybackChunk{ID: id, Start: start, Duration: dur, Samples: len(samples)}

	voice := s.out.Start(samples, s.rate, start, func() { s.ended(id) })
	s.active[id] = voice
	s.cursor = start + dur
	return chunk, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Flush stops every scheduled voice and resets the cursor to the device clock.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	voices := make([]Voice, 0, len(s.active))
	for id, v := range s.active {
		voices = append(voices, v)
		delete(s.active, id)
	}
	s.cursor = s.out.Now()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	if len(voices) > 0 {
		s.log.Debug().Int("voices", len(voices)).Msg("playback flushed")
	}
	return len(voices)
}

// Close flushes and rejects further chunks.
func (s *Scheduler) Close() {
	s.Flush()
	s.mu.Lock()
	s.closed = true
	s.cursor = 0
	s.mu.Unlock()
}

func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
