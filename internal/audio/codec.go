package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// CaptureRate is the rate the live backend expects for microphone audio.
	CaptureRate = 16000
	// PlaybackRate is the rate of assistant audio payloads.
	PlaybackRate = 24000
)

var ErrInvalidPayload = errors.New("invalid audio payload")

// EncodedChunk is a transport-encoded PCM16 frame ready to be sent upstream.
type EncodedChunk struct {
	Data     string
	MIMEType string
}

// MIMEForRate returns the codec tag used for raw little-endian PCM16 at rate.
func MIMEForRate(rate int) string {
	if rate <= 0 {
		rate = CaptureRate
	}
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// Downsample converts mono float samples from inRate to outRate.
// Decimation averages each input block; a lower input rate is linearly interpolated.
func Downsample(in []float32, inRate, outRate int) []float32 {
	if len(in) == 0 {
		return nil
	}
	if inRate <= 0 || outRate <= 0 || inRate == outRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(inRate) / float64(outRate)
	outLen := int(math.Round(float64(len(in)) / ratio))
	if outLen <= 0 {
		outLen = 1
	}
	out := make([]float32, outLen)

	if inRate < outRate {
		for i := range out {
			pos := float64(i) * ratio
			idx := int(pos)
			if idx >= len(in)-1 {
				out[i] = in[len(in)-1]
				continue
			}
			frac := float32(pos - float64(idx))
			out[i] = in[idx] + (in[idx+1]-in[idx])*frac
		}
		return out
	}

	offset := 0
	for i := range out {
		next := int(math.Round(float64(i+1) * ratio))
		if next > len(in) {
			next = len(in)
		}
		var sum float32
		count := 0
		for j := offset; j < next; j++ {
			sum += in[j]
			count++
		}
		if count > 0 {
			out[i] = sum / float32(count)
		} else if offset < len(in) {
			out[i] = in[offset]
		}
		offset = next
	}
	return out
}

// FloatToPCM16 converts float samples in [-1, 1] to signed 16-bit little-endian PCM.
func FloatToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts signed 16-bit little-endian PCM to floats. A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodeChunk transport-encodes a PCM16 frame captured at rate.
func EncodeChunk(pcm []byte, rate int) EncodedChunk {
	return EncodedChunk{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: MIMEForRate(rate),
	}
}

// DecodeChunk decodes a base64 PCM16 payload into playback samples.
func DecodeChunk(payload string) ([]float32, error) {
	if payload == "" {
		return nil, ErrInvalidPayload
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(raw) < 2 {
		return nil, ErrInvalidPayload
	}
	return PCM16ToFloat(raw), nil
}

// Duration returns the playback length of n samples at rate.
func Duration(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}
