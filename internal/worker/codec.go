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

package worker

import astiav "github.com/asticode/go-astiav"

// RawFrame carries the presentation metadata of whatever the underlying
// codec last decoded into its single reusable input frame. Pixel/sample
// payload stays behind the VideoCodec/AudioCodec interface so the worker
// state machine never touches decoded astiav frames directly (it still
// handles astiav packets), so tests can
// inject a deterministic fake that emits scripted frames with
// controlled PTS jitter.
type RawFrame struct {
	PTS      int64
	Duration int64
}

// VideoCodec wraps the four codec-library calls the worker issues for the
// video stream: send_packet, receive_frame, the RGBA scale, and the
// decoder buffer flush. Width/
// Height are the codec's reported output geometry (pools are sized
// from them).
type VideoCodec interface {
	// SendPacket feeds one demuxed packet to the decoder. A nil pkt
	// flushes (matches avcodec_send_packet(ctx, NULL)).
	SendPacket(pkt *astiav.Packet) error
	// ReceiveFrame pulls one decoded frame into the codec's single
	// reusable input frame. ok is false on EAGAIN or EOF (both normal
	// control signals); a non-nil err is fatal.
	ReceiveFrame() (frame RawFrame, ok bool, err error)
	// ScaleToRGBA scales the last frame ReceiveFrame produced into dst,
	// a tightly packed width*height*4 RGBA buffer.
	ScaleToRGBA(dst []byte) error
	// FlushBuffers resets internal decoder state after a seek, matching
	// avcodec_flush_buffers.
	FlushBuffers()
	Width() int
	Height() int
	Close()
}

// AudioCodec wraps the matching calls for the audio stream: send_packet,
// receive_frame, and the resample to signed-16.
type AudioCodec interface {
	SendPacket(pkt *astiav.Packet) error
	// ReceiveFrame returns the decoded frame's PTS/duration and its
	// input sample count (needed to size the resample output before the
	// audio pool exists).
	ReceiveFrame() (frame RawFrame, nbSamples int, ok bool, err error)
	// ResampleToS16 resamples the last received frame into planes (one
	// slice per output channel plane, or a single interleaved plane for
	// packed output), writing at most maxSamples samples per plane.
	// Returns the actual number of samples written.
	ResampleToS16(maxSamples int, planes [][]byte) (numSamples int, err error)
	InputSampleRate() int64
	// NumPlanes and Channels describe the resampled output layout, used
	// to size the audio pool once it's known.
	NumPlanes() int
	Channels() int
	FlushBuffers()
	Close()
}
