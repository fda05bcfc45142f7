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

// Package framepool defines the decoded-frame payload types and the
// pre-allocated pool constructors: every pooled frame's pixel/sample
// storage is allocated once, up front, so the decode worker's hot path
// never touches the heap.
package framepool

import "github.com/sr2pkg/moviedecode/internal/ringbuf"

// Posted-image wire-format constants; see DefaultOptions in
// internal/config for why these stay package constants instead of
// Options fields.
const (
	PostMaxHeight = 254
	PostBaseBytes = 4
)

// RGBAImage is a single-plane 32-bit RGBA surface with a line stride,
// matching the avimage_t the original scales into.
type RGBAImage struct {
	Width, Height int
	Stride        int
	Data          []byte
}

// ImageKind tags VideoFrame's payload variant.
type ImageKind int

const (
	ImageRGBA ImageKind = iota
	ImagePosted
)

// VideoFrame is one pooled decoded video frame. Image is a tagged
// variant: exactly one of RGBA/Posted is meaningful, selected by Kind —
// modeling movievideoframe_t's union without aliasing parallel fields.
type VideoFrame struct {
	ID       int64
	PTS      int64
	Duration int64
	Kind     ImageKind
	RGBA     RGBAImage
	Posted   []byte
}

// EndPTS returns PTS+Duration, matching GetVideoFrameEndPTS.
func (f *VideoFrame) EndPTS() int64 { return f.PTS + f.Duration }

// AudioFrame is one pooled decoded/resampled audio frame. Planes holds
// either a single packed interleaved buffer or one buffer per channel,
// matching the codec's advertised planar-ness for signed-16 output.
type AudioFrame struct {
	PTS                 int64
	NumSamples          int
	FirstSamplePosition int64
	Planes              [][]byte
}

// EndSample returns FirstSamplePosition+NumSamples, matching
// GetAudioFrameEndSample.
func (f *AudioFrame) EndSample() int64 {
	return f.FirstSamplePosition + int64(f.NumSamples)
}

// BytesPerPatchColumn computes the posted-image per-column byte budget:
// height plus one POST_BASE_BYTES header per post (a column taller than
// PostMaxHeight needs ceil(height/PostMaxHeight) posts) plus the
// terminator byte.
func BytesPerPatchColumn(height int) int {
	numPosts := (height + PostMaxHeight - 1) / PostMaxHeight
	return height + numPosts*PostBaseBytes + 1
}

// VideoPoolCapacity sizes the video pool so it spans streamBufferTimeMS
// (config.Options.StreamBufferTimeMS) worth of frames at the stream's
// average frame rate.
func VideoPoolCapacity(avgFPSNum, avgFPSDen, streamBufferTimeMS int64) int {
	if avgFPSDen == 0 {
		avgFPSDen = 1
	}
	capacity := streamBufferTimeMS / 1000 * avgFPSNum / avgFPSDen
	if capacity < 1 {
		capacity = 1
	}
	return int(capacity)
}

// AudioPoolCapacity sizes the audio pool from the decoder's per-frame
// sample count, once it's known (deferred until the first audio frame,
// the codec doesn't advertise this in advance).
func AudioPoolCapacity(sampleRate, samplesPerFrame, streamBufferTimeMS int64) int {
	if samplesPerFrame == 0 {
		samplesPerFrame = 1
	}
	capacity := streamBufferTimeMS / 1000 * sampleRate / samplesPerFrame
	if capacity < 1 {
		capacity = 1
	}
	return int(capacity)
}

// SamplesPerFrame mirrors GetSamplesPerFrame: the resampled buffer must
// be large enough for the worst-case ratio between input and output
// sample rate, plus one for rounding slop.
func SamplesPerFrame(inSamples, inSampleRate, outSampleRate int64) int64 {
	return inSamples*outSampleRate/inSampleRate + 1
}

// NewRGBAImage pre-allocates a width*height*4 RGBA surface with a tight
// (4*width) line stride, matching av_image_alloc(..., AV_PIX_FMT_RGBA, 1).
func NewRGBAImage(width, height int) RGBAImage {
	stride := width * 4
	return RGBAImage{
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   make([]byte, stride*height),
	}
}

// NewVideoPool allocates a ring buffer of capacity video frames, each
// pre-allocated as either an RGBA surface or a posted buffer sized
// width*(4 + BytesPerPatchColumn(height)) bytes.
func NewVideoPool(capacity, width, height int, usePosted bool) *ringbuf.Buffer[VideoFrame] {
	pool := ringbuf.New[VideoFrame](capacity)
	for i := 0; i < capacity; i++ {
		slot := pool.Enqueue()
		if usePosted {
			slot.Kind = ImagePosted
			slot.Posted = make([]byte, width*(4+BytesPerPatchColumn(height)))
		} else {
			slot.Kind = ImageRGBA
			slot.RGBA = NewRGBAImage(width, height)
		}
	}
	return pool
}

// NewAudioPool allocates a ring buffer of capacity audio frames, each
// pre-allocated with numPlanes buffers of signed-16 PCM: samplesPerFrame*2
// bytes per plane when planar (numPlanes > 1), or samplesPerFrame*2*channels
// bytes for the single interleaved plane when packed (numPlanes == 1).
func NewAudioPool(capacity int, numPlanes int, samplesPerFrame int, channels int) *ringbuf.Buffer[AudioFrame] {
	pool := ringbuf.New[AudioFrame](capacity)
	bytesPerPlane := samplesPerFrame * 2
	if numPlanes == 1 {
		bytesPerPlane *= channels
	}
	for i := 0; i < capacity; i++ {
		slot := pool.Enqueue()
		slot.Planes = make([][]byte, numPlanes)
		for p := range slot.Planes {
			slot.Planes[p] = make([]byte, bytesPerPlane)
		}
	}
	return pool
}
