package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ent0n29/iris/internal/audio"
)

type fakeDevice struct{ closed int }

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

type fakeSource struct {
	rate    int
	device  *fakeDevice
	onFrame FrameFunc
	err     error
}

func (s *fakeSource) Open(frameSize int, onFrame FrameFunc) (Device, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	s.device = &fakeDevice{}
	s.onFrame = onFrame
	return s.device, s.rate, nil
}

type fakeSink struct {
	mu     sync.Mutex
	open   bool
	err    error
	chunks []audio.EncodedChunk
}

func (s *fakeSink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSink) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestPipelineSendsEncodedFrames(t *testing.T) {
	src := &fakeSource{rate: 48000}
	sink := &fakeSink{open: true}
	p := NewPipeline(src, sink, nil, 480)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.onFrame(make([]float32, 480))

	if len(sink.chunks) != 1 {
		t.Fatalf("sent chunks = %d, want 1", len(sink.chunks))
	}
	if sink.chunks[0].MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType = %q", sink.chunks[0].MIMEType)
	}
	decoded, err := audio.DecodeChunk(sink.chunks[0].Data)
	if err != nil {
		t.Fatalf("DecodeChunk() error = %v", err)
	}
	if len(decoded) != 160 {
		t.Fatalf("decoded samples = %d, want 160", len(decoded))
	}
}

func TestPipelineDropsMutedFramesWithoutQueueing(t *testing.T) {
	src := &fakeSource{rate: 16000}
	sink := &fakeSink{open: true}
	mute := &MuteState{}
	mute.Set(true)
	p := NewPipeline(src, sink, mute, 160)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.onFrame(make([]float32, 160))
	src.onFrame(make([]float32, 160))
	mute.Set(false)
	src.onFrame(make([]float32, 160))

	if len(sink.chunks) != 1 {
		t.Fatalf("sent chunks = %d, want 1 (muted frames must not be replayed)", len(sink.chunks))
	}
	stats := p.Stats()
	if stats.Seen != 3 || stats.Sent != 1 || stats.Dropped != 2 {
		t.Fatalf("Stats() = %+v", stats)
	}
}

func TestPipelineDropsFramesWhenSinkClosedOrFailing(t *testing.T) {
	src := &fakeSource{rate: 16000}
	sink := &fakeSink{open: false}
	p := NewPipeline(src, sink, nil, 160)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	src.onFrame(make([]float32, 160))

	sink.mu.Lock()
	sink.open = true
	sink.err = errors.New("socket closed")
	sink.mu.Unlock()
	src.onFrame(make([]float32, 160))

	if got := p.Stats().Dropped; got != 2 {
		t.Fatalf("Dropped = %d, want 2", got)
	}
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	src := &fakeSource{rate: 44100}
	p := NewPipeline(src, &fakeSink{open: true}, nil, 1024)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	p.Stop()
	p.Stop()
	if src.device.closed != 1 {
		t.Fatalf("device closed %d times, want 1", src.device.closed)
	}
}

func TestPipelineStartPropagatesDeviceError(t *testing.T) {
	src := &fakeSource{err: errors.New("no microphone")}
	p := NewPipeline(src, &fakeSink{}, nil, 1024)
	if err := p.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want device error")
	}
}
