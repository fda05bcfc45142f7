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

// Package lumpsource adapts an in-memory archive lump into the read/seek
// callbacks FFmpeg's custom AVIOContext needs, standing in for
// ReadStream/SeekStream in the original decoder.
package lumpsource

import "io"

// Whence values for Seek, matching io.Seeker plus the demuxer's "give me
// the total size without moving the cursor" query (AVSEEK_SIZE upstream).
const (
	SeekSet  = io.SeekStart
	SeekCur  = io.SeekCurrent
	SeekEnd  = io.SeekEnd
	SeekSize = 3
)

// Source is a read/seek view over a cached lump's bytes. It is not
// thread-safe; it is only ever touched from the demuxer's own call sites
// (byte-source reads happen synchronously inside av_read_frame-equivalent
// calls driven from Update, never from the worker goroutine).
type Source struct {
	data     []byte
	position int64
}

// New wraps lump in a Source starting at offset 0.
func New(lump []byte) *Source {
	return &Source{data: lump}
}

// Size returns the total lump length.
func (s *Source) Size() int64 { return int64(len(s.data)) }

// Read copies min(len(buf), remaining) bytes and advances the cursor,
// matching read(buf, n) -> bytes_read.
func (s *Source) Read(buf []byte) (int, error) {
	remaining := int64(len(s.data)) - s.position
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	copy(buf, s.data[s.position:s.position+n])
	s.position += n
	return int(n), nil
}

// Seek repositions the cursor per whence and returns the new position.
// SeekSize returns the lump length without moving the cursor.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case SeekSet:
		s.position = offset
	case SeekCur:
		s.position += offset
	case SeekEnd:
		s.position = int64(len(s.data)) + offset
	case SeekSize:
		return int64(len(s.data)), nil
	}
	return s.position, nil
}
