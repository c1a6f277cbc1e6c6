package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
)

func TestDownsample48kTo16kAveragesBlocks(t *testing.T) {
	in := []float32{0.3, 0.3, 0.3, -0.6, -0.6, -0.6, 0.9, 0.0, 0.0}
	out := Downsample(in, 48000, 16000)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	want := []float32{0.3, -0.6, 0.3}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDownsampleSameRateCopies(t *testing.T) {
	in := []float32{0.1, 0.2}
	out := Downsample(in, 16000, 16000)
	out[0] = 9
	if in[0] != 0.1 {
		t.Fatalf("Downsample() aliased its input")
	}
}

func TestDownsample44100ProducesExpectedLength(t *testing.T) {
	in := make([]float32, 441)
	out := Downsample(in, 44100, 16000)
	if len(out) != 160 {
		t.Fatalf("len(out) = %d, want 160", len(out))
	}
}

func TestFloatToPCM16ClampsAndScales(t *testing.T) {
	pcm := FloatToPCM16([]float32{1.5, -1.5, 0, 0.5})
	got := []int16{
		int16(uint16(pcm[0]) | uint16(pcm[1])<<8),
		int16(uint16(pcm[2]) | uint16(pcm[3])<<8),
		int16(uint16(pcm[4]) | uint16(pcm[5])<<8),
		int16(uint16(pcm[6]) | uint16(pcm[7])<<8),
	}
	want := []int16{32767, -32768, 0, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodeDecodeChunk(t *testing.T) {
	chunk := EncodeChunk(FloatToPCM16([]float32{0, 0.5, -0.5}), CaptureRate)
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType = %q", chunk.MIMEType)
	}
	samples, err := DecodeChunk(chunk.Data)
	if err != nil {
		t.Fatalf("DecodeChunk() error = %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	if math.Abs(float64(samples[1])-0.5) > 1e-3 || math.Abs(float64(samples[2])+0.5) > 1e-3 {
		t.Fatalf("unexpected samples: %v", samples)
	}
}

func TestDecodeChunkIgnoresOddTrailingByte(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x00, 0x40, 0x7f})
	samples, err := DecodeChunk(payload)
	if err != nil {
		t.Fatalf("DecodeChunk() error = %v", err)
	}
	if len(samples) != 1 || samples[0] != 0.5 {
		t.Fatalf("samples = %v, want [0.5]", samples)
	}
}

func TestDecodeChunkRejectsGarbage(t *testing.T) {
	if _, err := DecodeChunk("***"); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("error = %v, want ErrInvalidPayload", err)
	}
	if _, err := DecodeChunk(""); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("error = %v, want ErrInvalidPayload", err)
	}
}
