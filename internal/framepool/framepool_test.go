package framepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVideoPoolCapacityScalesWithFrameRate(t *testing.T) {
	// 4000ms window at 25fps -> 100 frames.
	require.Equal(t, 100, VideoPoolCapacity(25, 1, 4000))
}

func TestVideoPoolCapacityNeverZero(t *testing.T) {
	require.GreaterOrEqual(t, VideoPoolCapacity(0, 1, 4000), 1)
	require.GreaterOrEqual(t, VideoPoolCapacity(1, 0, 4000), 1, "guards den=0")
}

func TestAudioPoolCapacityNeverZero(t *testing.T) {
	require.GreaterOrEqual(t, AudioPoolCapacity(44100, 0, 4000), 1, "guards samplesPerFrame=0")
}

func TestSamplesPerFrameUpsamples(t *testing.T) {
	// 1024 input samples at 22050Hz resampled to 44100Hz should need
	// roughly double the samples, plus the rounding slop of 1.
	require.EqualValues(t, 2049, SamplesPerFrame(1024, 22050, 44100))
}

func TestNewVideoPoolRGBASizing(t *testing.T) {
	pool := NewVideoPool(2, 4, 3, false)
	require.Equal(t, 2, pool.Capacity())
	for i := 0; i < pool.Capacity(); i++ {
		slot := pool.Peek(i)
		require.Equal(t, ImageRGBA, slot.Kind, "slot %d", i)
		require.Len(t, slot.RGBA.Data, 4*3*4, "slot %d", i)
	}
}

func TestNewVideoPoolPostedSizing(t *testing.T) {
	pool := NewVideoPool(1, 4, 3, true)
	slot := pool.Peek(0)
	require.Equal(t, ImagePosted, slot.Kind)
	require.Len(t, slot.Posted, 4*(4+BytesPerPatchColumn(3)))
}

func TestNewAudioPoolPackedSizing(t *testing.T) {
	pool := NewAudioPool(2, 1, 1024, 2)
	slot := pool.Peek(0)
	require.Len(t, slot.Planes, 1)
	require.Len(t, slot.Planes[0], 1024*2*2) // samples * bytesPerSample * channels
}

func TestNewAudioPoolPlanarSizing(t *testing.T) {
	pool := NewAudioPool(2, 2, 1024, 2)
	slot := pool.Peek(0)
	require.Len(t, slot.Planes, 2)
	for i, plane := range slot.Planes {
		require.Len(t, plane, 1024*2, "plane %d", i) // no channel multiply when planar
	}
}

func TestVideoFrameEndPTS(t *testing.T) {
	f := VideoFrame{PTS: 100, Duration: 33}
	require.EqualValues(t, 133, f.EndPTS())
}

func TestAudioFrameEndSample(t *testing.T) {
	f := AudioFrame{FirstSamplePosition: 1000, NumSamples: 512}
	require.EqualValues(t, 1512, f.EndSample())
}
