package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/iris/internal/audio"
	"github.com/ent0n29/iris/internal/capture"
	"github.com/ent0n29/iris/internal/device"
)

var (
	micSeconds float64
	micOut     string
	micRate    int
)

var micTestCmd = &cobra.Command{
	Use:   "mic-test",
	Short: "Record from the microphone and write a 16 kHz WAV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rate := micRate
		if rate == 0 {
			rate = cfg.CaptureRate
		}
		d := time.Duration(micSeconds * float64(time.Second))
		return runMicTest(cmd.Context(), cmd.OutOrStdout(), device.NewMicrophone(rate), cfg.CaptureFrame, d, micOut)
	},
}

func init() {
	micTestCmd.Flags().Float64Var(&micSeconds, "seconds", 3, "recording length")
	micTestCmd.Flags().StringVar(&micOut, "out", "mic-test.wav", "output WAV path")
	micTestCmd.Flags().IntVar(&micRate, "rate", 0, "request a device sample rate (0 = native)")
}

func runMicTest(ctx context.Context, out io.Writer, src capture.Source, frame, d time.Duration, path string) error {
	if d <= 0 {
		return fmt.Errorf("recording length must be positive")
	}
	samples, rate, err := record(ctx, src, frame, d)
	if err != nil {
		return err
	}
	mono := audio.Downsample(samples, rate, audio.CaptureRate)
	if err := audio.WriteWAVFile(path, mono, audio.CaptureRate); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "device rate %d Hz, captured %.2fs, peak %.3f, rms %.3f\n",
		rate, audio.Duration(len(samples), rate), peak(samples), rms(samples))
	fmt.Fprintf(out, "wrote %s (%d samples at %d Hz)\n", path, len(mono), audio.CaptureRate)
	return nil
}

// record captures from src for d or until ctx is done.
func record(ctx context.Context, src capture.Source, frame, d time.Duration) ([]float32, int, error) {
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	var (
		mu      sync.Mutex
		samples []float32
	)
	// The device reports its rate only once opened; size frames for 48 kHz.
	frameSize := int(int64(48000) * int64(frame) / int64(time.Second))
	dev, rate, err := src.Open(frameSize, func(in []float32) {
		mu.Lock()
		samples = append(samples, in...)
		mu.Unlock()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open microphone: %w", err)
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
	if err := dev.Close(); err != nil {
		return nil, 0, fmt.Errorf("close microphone: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return samples, rate, nil
}

func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
