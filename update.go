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

package moviedecode

import (
	"github.com/sr2pkg/moviedecode/internal/framepool"
	"github.com/sr2pkg/moviedecode/internal/ringbuf"
	"github.com/sr2pkg/moviedecode/internal/timebase"
)

// Update must be called once per game tick while a movie is playing. It
// reads packets off the demuxer, drains the worker's completed frames
// into the consumer buffers, advances the seek coordinator, and evicts
// frames that have fallen outside the retention window.
func Update(m *Movie) {
	m.readPackets()
	if !m.worker.Flushing() {
		m.drainQueues()
	}
	m.updateSeeking()
	m.evictOldFrames()
}

// readPackets feeds the demuxer's packets into the worker's packet pool
// until the pool is exhausted or the container is out of data. Packets
// for streams the movie doesn't track are unreffed in place and left at
// the pool head for the next read.
func (m *Movie) readPackets() {
	for {
		pkt, ok := m.worker.EnqueuePacket()
		if !ok {
			return
		}
		result, err := m.demuxer.ReadPacket(pkt)
		if err != nil {
			AbortFunc(err.Error())
			return
		}
		if result.EOF {
			return
		}
		if !result.OK {
			continue
		}

		idx := pkt.StreamIndex()
		if idx == m.demuxer.Video.Index || (m.hasAudio && idx == m.demuxer.Audio.Index) {
			m.worker.CommitPacket()
		} else {
			pkt.Unref()
		}
	}
}

func (m *Movie) drainQueues() {
	m.worker.DrainVideoQueue(m.videoBuffer)
	if m.hasAudio && m.audioBuffer != nil {
		m.worker.DrainAudioQueue(m.audioBuffer, m.assignSamplePosition)
	}
}

// assignSamplePosition sets first_sample_position on the audio frame just
// appended to the consumer buffer: chained onto the previous frame's end
// when one exists, otherwise derived from the frame's own PTS. This
// produces a monotone sample clock even when the codec reports jittery
// PTS values.
func (m *Movie) assignSamplePosition(buf *ringbuf.Buffer[framepool.AudioFrame]) {
	n := buf.Size()
	slot := buf.Peek(n - 1)
	if n > 1 {
		prev := buf.Peek(n - 2)
		slot.FirstSamplePosition = prev.FirstSamplePosition + int64(prev.NumSamples)
		return
	}
	slot.FirstSamplePosition = timebase.PTSToSamples(m.demuxer.Audio.TimeBase, slot.PTS, m.sampleRate)
}

// evictOldFrames drops frames outside the retention window
// [position-halfWindow, position+halfWindow] from the head of each
// consumer buffer, returning their slots to the worker pool.
func (m *Movie) evictOldFrames() {
	half := m.opts.StreamBufferTimeMS / 2

	videoCutoff := m.videoPTSFromMS(m.positionMS - half)
	for m.videoBuffer.Size() > 0 {
		head := m.videoBuffer.Peek(0)
		if head.PTS >= videoCutoff {
			break
		}
		m.worker.EvictOldestVideo(m.videoBuffer)
	}

	if !m.hasAudio || m.audioBuffer == nil {
		return
	}
	audioCutoffPTS := m.audioPTSFromMS(m.positionMS - half)
	if audioCutoffPTS < 0 {
		audioCutoffPTS = 0
	}
	for m.audioBuffer.Size() > 0 {
		head := m.audioBuffer.Peek(0)
		endPTS := timebase.SamplesToPTS(m.demuxer.Audio.TimeBase, head.FirstSamplePosition+int64(head.NumSamples), m.sampleRate)
		if endPTS >= audioCutoffPTS {
			break
		}
		m.worker.EvictOldestAudio(m.audioBuffer)
	}
}

// GetImage scans the video buffer from its tail back for the latest frame
// whose PTS is at or before the current position. If that frame differs
// from the one last returned, its payload is returned and remembered;
// otherwise GetImage returns ok=false (the caller has already drawn this
// frame). The returned pointer is valid only until the next Update.
func GetImage(m *Movie) (frame *framepool.VideoFrame, ok bool) {
	targetPTS := m.videoPTSFromMS(m.positionMS)

	var found *framepool.VideoFrame
	for i := m.videoBuffer.Size() - 1; i >= 0; i-- {
		f := m.videoBuffer.Peek(i)
		if f.PTS <= targetPTS {
			found = f
			break
		}
	}
	if found == nil || found.ID == m.lastVideoFrameID {
		return nil, false
	}
	m.lastVideoFrameID = found.ID
	return found, true
}

// CopyAudioSamples copies up to len(out) bytes of signed-16 PCM starting
// at the movie's current audio position into out, zero-filling any
// region the buffer can't satisfy (a silent underrun). The audio position
// always advances by the full requested sample count, whether or not
// every sample was actually available.
func CopyAudioSamples(m *Movie, out []byte) {
	for i := range out {
		out[i] = 0
	}
	if m.audioPosition == unsetAudioPosition || !m.hasAudio || m.audioBuffer == nil {
		return
	}

	channels := m.audioChannels
	if channels == 0 {
		channels = 1
	}
	sampleSize := 2 * channels
	requested := len(out) / sampleSize
	if requested == 0 {
		return
	}

	pos := m.audioPosition
	destOff := 0
	remaining := len(out)
	for i := 0; i < m.audioBuffer.Size() && remaining > 0; i++ {
		f := m.audioBuffer.Peek(i)
		end := f.FirstSamplePosition + int64(f.NumSamples)
		if pos < f.FirstSamplePosition || pos >= end {
			continue
		}

		localOffset := int(pos - f.FirstSamplePosition)
		availBytes := (f.NumSamples - localOffset) * sampleSize
		n := remaining
		if availBytes < n {
			n = availBytes
		}

		srcOff := localOffset * sampleSize
		copy(out[destOff:destOff+n], f.Planes[0][srcOff:srcOff+n])

		destOff += n
		remaining -= n
		pos += int64(n / sampleSize)
	}

	m.audioPosition += int64(requested)
}

// SetImageFormat switches between RGBA and posted-image output. A no-op
// if usePosted already matches. Otherwise the worker is stopped, all
// image storage is freed, the consumer buffers are cleared, the flag is
// flipped, and a fresh worker is spawned with newly sized image storage.
func SetImageFormat(m *Movie, usePosted bool) {
	if m.usePosted == usePosted {
		return
	}

	m.worker.Stop()
	m.worker.Close()
	m.worker = nil
	m.videoBuffer = nil
	m.audioBuffer = nil
	m.lastVideoFrameID = -1
	m.usePosted = usePosted

	if err := m.spawnWorker(); err != nil {
		AbortFunc(err.Error())
	}
}
