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

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// astiavVideoCodec is the production VideoCodec, grounded on video.go's
// bgraScaler and InitialiseDecoding/InitialiseVideoConversion in the
// original decoder.
type astiavVideoCodec struct {
	ctx     *astiav.CodecContext
	scaler  *astiav.SoftwareScaleContext
	frame   *astiav.Frame // the single reusable input frame
	scaled  *astiav.Frame // reusable RGBA scale destination
	width   int
	height  int
}

// OpenVideoCodec opens a decoder for stream's codec parameters and builds
// the RGBA scaling context, matching InitialiseDecoding +
// InitialiseVideoConversion.
func OpenVideoCodec(stream *astiav.Stream) (VideoCodec, error) {
	params := stream.CodecParameters()

	decoder := astiav.FindDecoder(params.CodecID())
	if decoder == nil {
		return nil, fmt.Errorf("FFmpeg: cannot find codec")
	}
	ctx := astiav.AllocCodecContext(decoder)
	if ctx == nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate codec context")
	}
	if err := params.ToCodecContext(ctx); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot copy parameters to codec context: %w", err)
	}
	if err := ctx.Open(decoder, nil); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot open codec: %w", err)
	}

	width, height := ctx.Width(), ctx.Height()

	scaler, err := astiav.CreateSoftwareScaleContext(
		width, height, ctx.PixelFormat(),
		width, height, astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot create scaling context: %w", err)
	}

	scaled := astiav.AllocFrame()
	scaled.SetWidth(width)
	scaled.SetHeight(height)
	scaled.SetPixelFormat(astiav.PixelFormatRgba)
	if err := scaled.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate image: %w", err)
	}

	return &astiavVideoCodec{
		ctx:    ctx,
		scaler: scaler,
		frame:  astiav.AllocFrame(),
		scaled: scaled,
		width:  width,
		height: height,
	}, nil
}

func (c *astiavVideoCodec) Width() int  { return c.width }
func (c *astiavVideoCodec) Height() int { return c.height }

func (c *astiavVideoCodec) SendPacket(pkt *astiav.Packet) error {
	if err := c.ctx.SendPacket(pkt); err != nil {
		return fmt.Errorf("FFmpeg: cannot send packet to the decoder: %w", err)
	}
	return nil
}

func (c *astiavVideoCodec) ReceiveFrame() (RawFrame, bool, error) {
	err := c.ctx.ReceiveFrame(c.frame)
	if err == nil {
		return RawFrame{PTS: c.frame.Pts(), Duration: c.frame.Duration()}, true, nil
	}
	if err == astiav.ErrEof || err == astiav.ErrEagain {
		return RawFrame{}, false, nil
	}
	return RawFrame{}, false, fmt.Errorf("FFmpeg: cannot receive frame: %w", err)
}

func (c *astiavVideoCodec) ScaleToRGBA(dst []byte) error {
	if err := c.scaler.ScaleFrame(c.frame, c.scaled); err != nil {
		return fmt.Errorf("FFmpeg: cannot scale frame: %w", err)
	}
	if _, err := c.scaled.ImageCopyToBuffer(dst, 1); err != nil {
		return fmt.Errorf("FFmpeg: cannot copy scaled image: %w", err)
	}
	return nil
}

func (c *astiavVideoCodec) FlushBuffers() {
	c.ctx.FlushBuffers()
}

func (c *astiavVideoCodec) Close() {
	c.frame.Free()
	c.scaled.Free()
	c.scaler.Free()
	c.ctx.Free()
}

// astiavAudioCodec is the production AudioCodec, grounded on
// InitialiseAudioConversion/ParseAudioFrame in the original and on
// video.go's AAC-recording resample path (w.aSwr.ConvertFrame(...)).
type astiavAudioCodec struct {
	ctx        *astiav.CodecContext
	resampler  *astiav.SoftwareResampleContext
	frame      *astiav.Frame // the single reusable input frame
	resampled  *astiav.Frame // reusable resample destination
	sampleRate int64
	numPlanes  int
	channels   int
}

// OpenAudioCodec opens a decoder for stream's codec parameters and an
// S16/outputSampleRate resampling context.
func OpenAudioCodec(stream *astiav.Stream, outputSampleRate int64) (AudioCodec, error) {
	params := stream.CodecParameters()

	decoder := astiav.FindDecoder(params.CodecID())
	if decoder == nil {
		return nil, fmt.Errorf("FFmpeg: cannot find codec")
	}
	ctx := astiav.AllocCodecContext(decoder)
	if ctx == nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate codec context")
	}
	if err := params.ToCodecContext(ctx); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot copy parameters to codec context: %w", err)
	}
	if err := ctx.Open(decoder, nil); err != nil {
		return nil, fmt.Errorf("FFmpeg: cannot open codec: %w", err)
	}

	resampler := astiav.AllocSoftwareResampleContext()
	if resampler == nil {
		return nil, fmt.Errorf("FFmpeg: cannot allocate resampling context")
	}

	channels := ctx.ChannelLayout().Channels()
	numPlanes := 1
	if astiav.SampleFormatS16.IsPlanar() {
		numPlanes = channels
	}

	resampled := astiav.AllocFrame()
	resampled.SetSampleFormat(astiav.SampleFormatS16)
	resampled.SetChannelLayout(ctx.ChannelLayout())
	resampled.SetSampleRate(int(outputSampleRate))

	return &astiavAudioCodec{
		ctx:        ctx,
		resampler:  resampler,
		frame:      astiav.AllocFrame(),
		resampled:  resampled,
		sampleRate: outputSampleRate,
		numPlanes:  numPlanes,
		channels:   channels,
	}, nil
}

func (c *astiavAudioCodec) InputSampleRate() int64 { return int64(c.ctx.SampleRate()) }
func (c *astiavAudioCodec) NumPlanes() int          { return c.numPlanes }
func (c *astiavAudioCodec) Channels() int          { return c.channels }

func (c *astiavAudioCodec) SendPacket(pkt *astiav.Packet) error {
	if err := c.ctx.SendPacket(pkt); err != nil {
		return fmt.Errorf("FFmpeg: cannot send packet to the decoder: %w", err)
	}
	return nil
}

func (c *astiavAudioCodec) ReceiveFrame() (RawFrame, int, bool, error) {
	err := c.ctx.ReceiveFrame(c.frame)
	if err == nil {
		return RawFrame{PTS: c.frame.Pts(), Duration: c.frame.Duration()}, c.frame.NbSamples(), true, nil
	}
	if err == astiav.ErrEof || err == astiav.ErrEagain {
		return RawFrame{}, 0, false, nil
	}
	return RawFrame{}, 0, false, fmt.Errorf("FFmpeg: cannot receive frame: %w", err)
}

func (c *astiavAudioCodec) ResampleToS16(maxSamples int, planes [][]byte) (int, error) {
	c.resampled.SetNbSamples(maxSamples)
	if err := c.resampled.AllocBuffer(0); err != nil {
		return 0, fmt.Errorf("FFmpeg: cannot allocate samples: %w", err)
	}
	if err := c.resampler.ConvertFrame(c.frame, c.resampled); err != nil {
		return 0, fmt.Errorf("FFmpeg: cannot convert audio frame: %w", err)
	}

	n := c.resampled.NbSamples()
	for i := range planes {
		buf, err := c.resampled.Data().Bytes(i)
		if err != nil {
			return 0, fmt.Errorf("FFmpeg: cannot read resampled plane: %w", err)
		}
		copy(planes[i], buf)
	}
	return n, nil
}

func (c *astiavAudioCodec) FlushBuffers() {
	c.ctx.FlushBuffers()
}

func (c *astiavAudioCodec) Close() {
	c.frame.Free()
	c.resampled.Free()
	c.resampler.Free()
	c.ctx.Free()
}
