package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.EqualValues(t, 44100, opts.SampleRate)
	require.EqualValues(t, 4000, opts.StreamBufferTimeMS)
	require.Equal(t, 32, opts.NumPackets)
	require.EqualValues(t, 200, opts.MaxAudioDesyncMS)
	require.EqualValues(t, 10000, opts.MaxSeekDistanceMS)
}
