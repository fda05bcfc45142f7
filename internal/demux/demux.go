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

// Package demux is the facade over astiav.FormatContext: opening the
// container from a custom in-memory byte source, picking the first video
// (mandatory) and first audio (optional) stream in container order, and issuing packet reads and
// seeks. This is the Go equivalent of InitialiseDemuxing/ReadPacket/Seek
// in the original decoder.
package demux

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/sr2pkg/moviedecode/internal/lumpsource"
	"github.com/sr2pkg/moviedecode/internal/timebase"
)

// StreamInfo describes one selected stream: its index in the container and
// its declared time base.
type StreamInfo struct {
	Index     int
	TimeBase  timebase.Rational
	AvgFPSNum int64
	AvgFPSDen int64
}

// Demuxer wraps an opened container backed by an in-memory lump.
type Demuxer struct {
	formatContext *astiav.FormatContext
	ioContext     *astiav.IOContext
	source        *lumpsource.Source

	Video StreamInfo
	Audio StreamInfo
	// HasAudio is false when the container carries no audio stream; the
	// pipeline then never initialises the audio side at all.
	HasAudio bool
}

// Open allocates a format context over lump, finds stream info, and
// selects the first video stream and (optionally) the first audio stream
// in container order; streams are not ranked against each other. A missing video
// stream is fatal: a movie with no video track cannot be played.
// ioBufferSize sizes the scratch buffer backing the custom AVIOContext
// (config.Options.IOBufferSize, 8 KiB by default, matching
// IO_BUFFER_SIZE in the original).
func Open(lump []byte, ioBufferSize int) (*Demuxer, error) {
	d := &Demuxer{source: lumpsource.New(lump)}

	d.formatContext = astiav.AllocFormatContext()
	if d.formatContext == nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate format context")
	}

	ioCtx, err := astiav.AllocIOContext(ioBufferSize, false, d.source.Read, nil, d.source.Seek)
	if err != nil || ioCtx == nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate I/O context: %w", err)
	}
	d.ioContext = ioCtx
	d.formatContext.SetPb(ioCtx)

	if err := d.formatContext.OpenInput("", nil, nil); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot open format context: %w", err)
	}

	if err := d.formatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot find stream information: %w", err)
	}

	streams := d.formatContext.Streams()

	videoIdx := -1
	audioIdx := -1
	for i, s := range streams {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if videoIdx == -1 {
				videoIdx = i
			}
		case astiav.MediaTypeAudio:
			if audioIdx == -1 {
				audioIdx = i
			}
		}
	}
	if videoIdx == -1 {
		return nil, fmt.Errorf("FFmpeg: cannot find video stream")
	}

	vs := streams[videoIdx]
	vtb := vs.TimeBase()
	fr := vs.AvgFrameRate()
	d.Video = StreamInfo{
		Index:     videoIdx,
		TimeBase:  timebase.Rational{Num: int64(vtb.Num()), Den: int64(vtb.Den())},
		AvgFPSNum: int64(fr.Num()),
		AvgFPSDen: int64(fr.Den()),
	}

	if audioIdx != -1 {
		as := streams[audioIdx]
		atb := as.TimeBase()
		d.Audio = StreamInfo{
			Index:    audioIdx,
			TimeBase: timebase.Rational{Num: int64(atb.Num()), Den: int64(atb.Den())},
		}
		d.HasAudio = true
	}

	return d, nil
}

// Streams exposes the underlying astiav stream handles for codec-context
// setup in the worker.
func (d *Demuxer) Streams() []*astiav.Stream {
	return d.formatContext.Streams()
}

// DurationMS returns the container duration converted to milliseconds,
// this uses the format context's own AV_TIME_BASE_Q duration, not
// either stream's PTS time base, since the two streams' time bases can
// disagree on rounding.
func (d *Demuxer) DurationMS() int64 {
	return timebase.FormatDurationToMS(d.formatContext.Duration())
}

// ReadPacketResult reports the outcome of a single ReadPacket call.
type ReadPacketResult struct {
	OK  bool // a packet was read into pkt
	EOF bool // the container is exhausted
}

// ReadPacket reads one packet from the container into pkt. Callers must
// check StreamIndex against Video.Index/Audio.Index themselves; unlike
// the original's ReadPacket, selecting which pool/queue the packet
// belongs in is the consumer controller's job.
func (d *Demuxer) ReadPacket(pkt *astiav.Packet) (ReadPacketResult, error) {
	err := d.formatContext.ReadFrame(pkt)
	if err == nil {
		return ReadPacketResult{OK: true}, nil
	}
	if err == astiav.ErrEof {
		return ReadPacketResult{EOF: true}, nil
	}
	return ReadPacketResult{}, fmt.Errorf("FFmpeg: cannot read packet: %w", err)
}

// Seek issues a widened-window seek: land at targetPTS (video time base),
// but accept anything as far back as minPTS if that's the nearest
// keyframe, and never overshoot past maxPTS. Preserves the
// "[position-5000ms, position, position]" tuple from the original's Seek.
func (d *Demuxer) Seek(minPTS, targetPTS, maxPTS int64) error {
	if err := d.formatContext.SeekFile(d.Video.Index, minPTS, targetPTS, maxPTS, astiav.NewSeekFlags()); err != nil {
		return fmt.Errorf("FFmpeg: cannot seek: %w", err)
	}
	return nil
}

// Close releases the format context, I/O context and its scratch buffer.
func (d *Demuxer) Close() {
	if d.formatContext != nil {
		d.formatContext.CloseInput()
	}
	if d.ioContext != nil {
		d.ioContext.Free()
	}
}
