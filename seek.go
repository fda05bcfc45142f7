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

import "github.com/sr2pkg/moviedecode/internal/timebase"

const seekLookahead int64 = 250 // ms, matches Update's "target = position + 250ms"

// updateSeeking runs once per Update: it clears a seek that has either
// landed or failed to land within MaxSeekDistanceMS, decides whether the
// current position has drifted out of the buffered range and a new seek
// is needed, and reseats the audio clock if it has drifted too far from
// the visual one.
func (m *Movie) updateSeeking() {
	if m.seeking && m.videoBuffer.Size() > 0 {
		last := m.videoBuffer.Peek(m.videoBuffer.Size() - 1)
		target := m.positionMS + seekLookahead
		targetDistMS := target - m.videoMSFromPTS(last.EndPTS())
		if targetDistMS <= 0 || targetDistMS > m.opts.MaxSeekDistanceMS {
			m.seeking = false
		}
	}

	if m.videoBuffer.Size() > 0 && !m.inBuffer() && !m.seeking && !m.worker.Flushing() {
		m.beginSeek()
	}

	if m.hasAudio && m.audioPosition != unsetAudioPosition {
		drift := timebase.SamplesToMS(m.audioPosition, m.sampleRate) - m.positionMS
		if drift < 0 {
			drift = -drift
		}
		if drift > m.opts.MaxAudioDesyncMS {
			m.audioPosition = unsetAudioPosition
		}
	}
}

// inBuffer reports whether the current position's video PTS falls within
// [first_frame.pts, last_frame.end_pts) of the consumer video buffer.
func (m *Movie) inBuffer() bool {
	if m.videoBuffer.Size() == 0 {
		return false
	}
	targetPTS := m.videoPTSFromMS(m.positionMS)
	first := m.videoBuffer.Peek(0)
	last := m.videoBuffer.Peek(m.videoBuffer.Size() - 1)
	return targetPTS >= first.PTS && targetPTS < last.EndPTS()
}

// beginSeek drains both consumer buffers back into the worker pools,
// issues a widened-window demuxer seek, and signals the worker to flush
// its decoders and resume from the new position. The widened window
// (position-5000ms .. position) tells the codec "land at position, but a
// keyframe as far back as position-5000ms is acceptable" — this is
// deliberate, not a bug, and must not be tightened.
func (m *Movie) beginSeek() {
	m.seeking = true
	m.worker.ClearAll(m.videoBuffer, m.audioBuffer)

	target := m.videoPTSFromMS(m.positionMS)
	minPTS := m.videoPTSFromMS(m.positionMS - 5000)
	if err := m.demuxer.Seek(minPTS, target, target); err != nil {
		AbortFunc(err.Error())
		return
	}
	m.worker.RequestFlush()
}
