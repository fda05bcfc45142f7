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

// Package timebase implements the pairwise, overflow-safe conversions
// between the three time bases the pipeline juggles: a stream's declared
// PTS time base, the fixed output audio sample rate, and wall-clock
// milliseconds. It mirrors FFmpeg's av_rescale_q (round-to-nearest,
// ties away from zero, full 128-bit intermediate precision) rather than
// a naive int64 multiply-then-divide, because stream durations routinely
// overflow int64 once multiplied by an unrelated time base's denominator.
package timebase

import "math/bits"

// Rational is a rational number expressed as num/den seconds per tick,
// matching AVRational's shape without requiring a cgo round-trip for
// pure arithmetic.
type Rational struct {
	Num int64
	Den int64
}

// SampleRate-based and wall-clock time bases, used throughout the pipeline.
func Samples(sampleRate int64) Rational { return Rational{Num: 1, Den: sampleRate} }

var MS = Rational{Num: 1, Den: 1000}

// AVTimeBase is FFmpeg's internal fixed time base (AV_TIME_BASE_Q),
// used for AVFormatContext.duration.
var AVTimeBase = Rational{Num: 1, Den: 1000000}

// RescaleQ converts value from the from time base to the to time base,
// rounding to the nearest integer with ties away from zero. It is the Go
// equivalent of av_rescale_q(value, from, to).
func RescaleQ(value int64, from, to Rational) int64 {
	if from.Num == to.Num && from.Den == to.Den {
		return value
	}

	// value * from.Num * to.Den / (from.Den * to.Num), rounded to nearest,
	// ties away from zero, computed with a 128-bit intermediate product
	// and division so that long streams never overflow before truncating.
	num := from.Num * to.Den
	den := from.Den * to.Num

	neg := value < 0
	v := uint64(value)
	if neg {
		v = uint64(-value)
	}
	n := num
	if n < 0 {
		neg = !neg
		n = -n
	}
	d := den
	if d < 0 {
		neg = !neg
		d = -d
	}

	hi, lo := bits.Mul64(v, uint64(n))

	// Add den/2 for round-to-nearest before dividing; this can carry into hi.
	half := uint64(d) / 2
	var carry uint64
	lo, carry = bits.Add64(lo, half, 0)
	hi += carry

	q, _ := bits.Div64(hi, lo, uint64(d))

	result := int64(q)
	if neg {
		result = -result
	}
	return result
}

// PTSToSamples / SamplesToPTS convert between a stream's PTS time base and
// the output sample clock.
func PTSToSamples(streamTB Rational, pts, sampleRate int64) int64 {
	return RescaleQ(pts, streamTB, Samples(sampleRate))
}

func SamplesToPTS(streamTB Rational, samples, sampleRate int64) int64 {
	return RescaleQ(samples, Samples(sampleRate), streamTB)
}

// SamplesToMS / MSToSamples convert between the output sample clock and
// wall-clock milliseconds.
func SamplesToMS(samples, sampleRate int64) int64 {
	return RescaleQ(samples, Samples(sampleRate), MS)
}

func MSToSamples(ms, sampleRate int64) int64 {
	return RescaleQ(ms, MS, Samples(sampleRate))
}

// PTSToMS / MSToPTS convert between an arbitrary stream's PTS time base
// and wall-clock milliseconds.
func PTSToMS(streamTB Rational, pts int64) int64 {
	return RescaleQ(pts, streamTB, MS)
}

func MSToPTS(streamTB Rational, ms int64) int64 {
	return RescaleQ(ms, MS, streamTB)
}

// FormatDurationToMS converts an AVFormatContext.duration value (expressed
// in AV_TIME_BASE_Q, i.e. microseconds) to milliseconds.
func FormatDurationToMS(duration int64) int64 {
	return RescaleQ(duration, AVTimeBase, MS)
}
