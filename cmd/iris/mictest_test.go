package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/iris/internal/capture"
)

type toneSource struct {
	rate int
	done chan struct{}
}

type toneDevice struct{ done chan struct{} }

func (d toneDevice) Close() error {
	close(d.done)
	return nil
}

func (s *toneSource) Open(frameSize int, onFrame capture.FrameFunc) (capture.Device, int, error) {
	// Deliver a fixed amount of audio synchronously so the result is deterministic.
	frame := make([]float32, s.rate/10)
	for i := range frame {
		frame[i] = 0.5
	}
	for range 5 {
		onFrame(frame)
	}
	return toneDevice{done: s.done}, s.rate, nil
}

func TestRunMicTestWritesWAV(t *testing.T) {
	src := &toneSource{rate: 48000, done: make(chan struct{})}
	path := filepath.Join(t.TempDir(), "mic.wav")

	var out bytes.Buffer
	if err := runMicTest(context.Background(), &out, src, 20*time.Millisecond, 10*time.Millisecond, path); err != nil {
		t.Fatalf("runMicTest() error = %v", err)
	}
	select {
	case <-src.done:
	default:
		t.Fatalf("device was not closed")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat wav: %v", err)
	}
	// 0.5s at 16 kHz, 2 bytes per sample, plus the 44 byte header.
	if info.Size() != 44+8000*2 {
		t.Fatalf("wav size = %d, want %d", info.Size(), 44+8000*2)
	}
	if !strings.Contains(out.String(), "peak 0.500") {
		t.Fatalf("output = %q, want peak report", out.String())
	}
}

func TestRunMicTestRejectsZeroLength(t *testing.T) {
	src := &toneSource{rate: 16000, done: make(chan struct{})}
	if err := runMicTest(context.Background(), &bytes.Buffer{}, src, 0, 0, filepath.Join(t.TempDir(), "x.wav")); err == nil {
		t.Fatalf("runMicTest() error = nil, want error")
	}
}
