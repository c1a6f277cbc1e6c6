package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/iris/internal/capture"
	"github.com/ent0n29/iris/internal/config"
	"github.com/ent0n29/iris/internal/device"
	"github.com/ent0n29/iris/internal/live"
	"github.com/ent0n29/iris/internal/playback"
)

type TransportInfo struct {
	Name   string
	Detail string
}

type transportSetup struct {
	dialer live.Dialer
	info   TransportInfo
}

func resolveTransport(cfg config.Config) (transportSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Transport))
	switch mode {
	case "", "websocket":
		return transportSetup{
			dialer: live.NewWebSocketDialer(cfg.LiveURL, cfg.APIKey),
			info:   TransportInfo{Name: "websocket", Detail: cfg.LiveURL},
		}, nil
	case "genai":
		return transportSetup{
			dialer: live.NewGenAIDialer(cfg.APIKey),
			info:   TransportInfo{Name: "genai", Detail: "google.golang.org/genai live client"},
		}, nil
	default:
		return transportSetup{}, fmt.Errorf("unsupported IRIS_TRANSPORT %q", cfg.Transport)
	}
}

// assumedNativeRate sizes capture frames when the device rate is not pinned.
const assumedNativeRate = 48000

type audioSetup struct {
	input     capture.Source
	output    playback.Opener
	frameSize int
	detail    string
}

func resolveAudio(cfg config.Config) audioSetup {
	rate := cfg.CaptureRate
	if rate <= 0 {
		rate = assumedNativeRate
	}
	frame := cfg.CaptureFrame
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	setup := audioSetup{
		input:     device.NewMicrophone(cfg.CaptureRate),
		frameSize: int(int64(rate) * int64(frame) / int64(time.Second)),
	}
	if cfg.PlaybackDisabled {
		setup.output = device.Silent{}
		setup.detail = "disabled"
		return setup
	}
	setup.output = device.NewSpeaker()
	setup.detail = fmt.Sprintf("speaker %d Hz", cfg.PlaybackRate)
	return setup
}
