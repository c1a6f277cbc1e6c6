package device

import (
	"testing"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iris/internal/playback"
)

func TestSilentOutputAdvancesClock(t *testing.T) {
	dev, err := Silent{Quantum: 5 * time.Millisecond}.OpenOutput(24000, playback.NewAnalyser())
	require.NoError(t, err)

	out := dev.Output()
	require.Eventually(t, func() bool { return out.Now() >= 20*time.Millisecond }, time.Second, 5*time.Millisecond)

	ended := make(chan struct{})
	out.Start(make([]float32, 240), 24000, out.Now(), func() { close(ended) })
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("voice never finished")
	}

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	stopped := out.Now()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, out.Now())
}

func TestSpeakerContextOptions(t *testing.T) {
	opts := contextOptions(24000)
	assert.Equal(t, 24000, opts.SampleRate)
	assert.Equal(t, 1, opts.ChannelCount)
	assert.Equal(t, oto.FormatSignedInt16LE, opts.Format)
	assert.Equal(t, 100*time.Millisecond, opts.BufferSize)
}
