/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * QAnotherRTSP
 * Copyright (C) 2025 e1z0 <e1z0@icloud.com>
 *
 * This file is part of QAnotherRTSP.
 *
 * QAnotherRTSP is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * QAnotherRTSP is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with QAnotherRTSP.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package config holds the pipeline's compile-time-tunable constants as
// an Options block: yaml-tagged tunables a host application can load
// and override at startup.
package config

// Options collects every tunable the original hardcoded as a #define.
// A host game can load these from its own settings YAML via
// gopkg.in/yaml.v2, the same way it loads its own app-level config.
type Options struct {
	// IOBufferSize is the scratch buffer size backing the demuxer's
	// custom AVIOContext, in bytes.
	IOBufferSize int `yaml:"io_buffer_size,omitempty"`
	// StreamBufferTimeMS is the full width of the retention window kept
	// in each consumer buffer (the window spans
	// position-StreamBufferTimeMS/2 .. position+StreamBufferTimeMS/2).
	StreamBufferTimeMS int64 `yaml:"stream_buffer_time_ms,omitempty"`
	// NumPackets sizes the packet queue/pool.
	NumPackets int `yaml:"num_packets,omitempty"`
	// SampleRate is the single fixed output audio sample rate.
	SampleRate int64 `yaml:"sample_rate,omitempty"`
	// MaxAudioDesyncMS is the drift tolerated before the audio clock is
	// re-seated to the visual clock.
	MaxAudioDesyncMS int64 `yaml:"max_audio_desync_ms,omitempty"`
	// MaxSeekDistanceMS bounds how far a seek is allowed to land from its
	// target before it's considered to have failed to land.
	MaxSeekDistanceMS int64 `yaml:"max_seek_distance_ms,omitempty"`
}

// DefaultOptions returns the constants the original decoder hardcoded.
//
// The posted-image format's per-post height cap and header width
// (internal/posted's postMaxHeight/postBaseBytes) are not listed here:
// they're wire-format constants baked into ConvertRGBAToPatch's column
// layout, not independent runtime tunables, so they stay package
// constants rather than Options fields a host could override out from
// under the decoder that reads the format back.
func DefaultOptions() Options {
	return Options{
		IOBufferSize:       8 * 1024,
		StreamBufferTimeMS: 4000,
		NumPackets:         32,
		SampleRate:         44100,
		MaxAudioDesyncMS:   200,
		MaxSeekDistanceMS:  10000,
	}
}
