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

// Package moviedecode plays back container-packaged video+audio assets
// embedded inside a game's resource archive, feeding a game's per-tick
// rendering and audio-mixing subsystems. It decouples codec-side decoding
// from game-side consumption with bounded buffering, supports
// random-access seeking driven by the game's notion of playback position,
// and converts decoded video into either a 32-bit RGBA surface or an
// engine-specific column-posted paletted image.
package moviedecode

import (
	"fmt"
	"log"

	"github.com/sr2pkg/moviedecode/internal/config"
	"github.com/sr2pkg/moviedecode/internal/demux"
	"github.com/sr2pkg/moviedecode/internal/framepool"
	"github.com/sr2pkg/moviedecode/internal/posted"
	"github.com/sr2pkg/moviedecode/internal/ringbuf"
	"github.com/sr2pkg/moviedecode/internal/timebase"
	"github.com/sr2pkg/moviedecode/internal/worker"
)

const unsetAudioPosition int64 = -1

// Lookup resolves a movie name to its archive bytes, searching stacked
// archives highest-priority first. A host application must set this
// before calling Play.
var Lookup func(name string) ([]byte, bool)

// Palette supplies the master 256-entry RGB palette used to build the
// posted-image LUT. A host application must set this before calling Play
// with use_posted=true.
var Palette func() [256]posted.RGB

// OnStop is notified when a movie stops, mirroring the music subsystem's
// "leaving movie mode" hook. Nil is a valid no-op default.
var OnStop func()

// AbortFunc receives a fatal diagnostic (prefixed "FFmpeg: " for codec
// failures, per the domain convention kept for log compatibility). It
// must not return; the default logs and panics.
var AbortFunc = func(message string) {
	log.Printf("moviedecode: fatal: %s", message)
	panic(message)
}

// Options are the tunables in effect for newly played movies. Assign a
// new value (e.g. loaded from a host's own settings YAML) before calling
// Play to change them; already-playing movies are unaffected.
var Options = config.DefaultOptions()

// Movie is the top-level playback handle returned by Play.
type Movie struct {
	lump []byte

	demuxer *demux.Demuxer
	worker  *worker.Worker

	videoBuffer *ringbuf.Buffer[framepool.VideoFrame]
	audioBuffer *ringbuf.Buffer[framepool.AudioFrame]

	usePosted bool
	hasAudio  bool

	positionMS    int64
	audioPosition int64 // sample index, or unsetAudioPosition

	lastVideoFrameID int64
	seeking          bool

	sampleRate     int64
	audioChannels  int
	audioNumPlanes int
	opts           config.Options
}

// Play opens the named lump, spawns the decode worker, and returns a
// handle ready for per-tick Update calls. Fatal if the named lump is
// absent or the container carries no video stream.
func Play(name string, usePosted bool) (*Movie, error) {
	if Lookup == nil {
		return nil, fmt.Errorf("moviedecode: no Lookup configured")
	}
	lump, ok := Lookup(name)
	if !ok {
		AbortFunc(fmt.Sprintf("cannot find movie lump %q", name))
		return nil, fmt.Errorf("moviedecode: lump %q not found", name)
	}

	m := &Movie{
		lump:             lump,
		usePosted:        usePosted,
		audioPosition:    unsetAudioPosition,
		lastVideoFrameID: -1,
		sampleRate:       Options.SampleRate,
		opts:             Options,
	}

	if err := m.open(); err != nil {
		AbortFunc(err.Error())
		return nil, err
	}
	return m, nil
}

func (m *Movie) open() error {
	d, err := demux.Open(m.lump, m.opts.IOBufferSize)
	if err != nil {
		return err
	}
	m.demuxer = d
	m.hasAudio = d.HasAudio
	return m.spawnWorker()
}

// spawnWorker opens fresh codec contexts against the already-open demuxer
// and starts a new worker. Used both by open (first play) and
// SetImageFormat (posted/RGBA toggle) — the latter keeps the demuxer and
// playback position intact and only respawns the codec/worker layer.
func (m *Movie) spawnWorker() error {
	d := m.demuxer

	videoCodec, err := worker.OpenVideoCodec(d.Streams()[d.Video.Index])
	if err != nil {
		return err
	}

	var audioCodec worker.AudioCodec
	if d.HasAudio {
		audioCodec, err = worker.OpenAudioCodec(d.Streams()[d.Audio.Index], m.sampleRate)
		if err != nil {
			videoCodec.Close()
			return err
		}
	}

	var palette [256]posted.RGB
	if m.usePosted {
		if Palette == nil {
			videoCodec.Close()
			if audioCodec != nil {
				audioCodec.Close()
			}
			return fmt.Errorf("moviedecode: no Palette configured")
		}
		palette = Palette()
	}

	w := worker.New(videoCodec, audioCodec, d.Video.Index, d.Video.TimeBase, d.Audio.Index, d.Audio.TimeBase, m.usePosted, palette, m.sampleRate, d.Video.AvgFPSNum, d.Video.AvgFPSDen, m.opts.NumPackets, m.opts.StreamBufferTimeMS)
	w.AbortFunc = AbortFunc
	w.OnAudioReady = func(capacity int) {
		m.audioBuffer = ringbuf.New[framepool.AudioFrame](capacity)
	}

	videoCapacity := framepool.VideoPoolCapacity(d.Video.AvgFPSNum, d.Video.AvgFPSDen, m.opts.StreamBufferTimeMS)
	m.videoBuffer = ringbuf.New[framepool.VideoFrame](videoCapacity)
	m.audioBuffer = nil
	m.audioChannels = w.AudioChannels()
	m.audioNumPlanes = w.AudioNumPlanes()

	m.worker = w
	w.Start()
	return nil
}

// Stop signals the worker to exit, waits for it to finish, notifies the
// music subsystem, and frees every pool and the demuxer. Idempotent on a
// nil handle, and safe to call twice.
func Stop(m *Movie) {
	if m == nil {
		return
	}
	if m.worker != nil {
		m.worker.Stop()
		m.worker.Close()
		m.worker = nil
	}
	if m.demuxer != nil {
		m.demuxer.Close()
		m.demuxer = nil
	}
	if OnStop != nil {
		OnStop()
	}
	m.lump = nil
}

// SetPosition sets the movie's playback position, in milliseconds. If the
// audio clock is currently unset, it is re-locked to the new position.
// Seek is a synonym kept for callers that prefer that name; both route
// through the same logic (the original exposed both under identical
// implementations).
func SetPosition(m *Movie, ms int64) {
	m.positionMS = ms
	if m.audioPosition == unsetAudioPosition {
		m.audioPosition = timebase.MSToSamples(ms, m.sampleRate)
	}
}

// Seek is a synonym for SetPosition.
func Seek(m *Movie, ms int64) { SetPosition(m, ms) }

// GetDuration returns the container's total duration in milliseconds.
func GetDuration(m *Movie) int64 {
	return m.demuxer.DurationMS()
}

// GetDimensions returns the decoded video frame's width and height.
func GetDimensions(m *Movie) (width, height int) {
	return m.worker.Width(), m.worker.Height()
}

// GetPatchBytes returns the total byte size of one posted-image frame,
// for CopyImage-style callers that need to size their own destination.
func GetPatchBytes(m *Movie) int {
	w, h := m.worker.Width(), m.worker.Height()
	return w * (4 + framepool.BytesPerPatchColumn(h))
}

// videoPTSFromMS converts a millisecond position to the video stream's
// PTS time base.
func (m *Movie) videoPTSFromMS(ms int64) int64 {
	return timebase.MSToPTS(m.demuxer.Video.TimeBase, ms)
}

func (m *Movie) videoMSFromPTS(pts int64) int64 {
	return timebase.PTSToMS(m.demuxer.Video.TimeBase, pts)
}

func (m *Movie) audioPTSFromMS(ms int64) int64 {
	if !m.hasAudio {
		return 0
	}
	return timebase.MSToPTS(m.demuxer.Audio.TimeBase, ms)
}
