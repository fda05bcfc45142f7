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

// Package posted implements the RGBA→column-posted converter described in
// the engine's run-length column image format, with a
// per-column offset header followed by self-terminating posts, encoded
// against a precomputed palette LUT.
package posted

import "encoding/binary"

const (
	postMaxHeight = 254
	postBaseBytes = 4
	clutShift     = 3 // quantise each 8-bit channel down to 5 bits
	clutBits      = 5
	clutSize      = 1 << (3 * clutBits) // 32768 entries
)

// RGB is one master-palette entry.
type RGB struct {
	R, G, B byte
}

// CLUTIndex quantises an (r,g,b) triplet into the 15-bit index used by
// the palette LUT, matching the CLUTINDEX macro.
func CLUTIndex(r, g, b byte) int {
	ri := int(r) >> clutShift
	gi := int(g) >> clutShift
	bi := int(b) >> clutShift
	return (ri << (2 * clutBits)) | (gi << clutBits) | bi
}

// BuildLUT builds the 32768-entry nearest-palette-index lookup table from
// a 256-entry master palette, built once at worker init.
func BuildLUT(palette [256]RGB) []uint16 {
	lut := make([]uint16, clutSize)
	for idx := 0; idx < clutSize; idx++ {
		const chanMask = (1 << clutBits) - 1
		r := byte(((idx >> (2 * clutBits)) & chanMask) << clutShift)
		g := byte(((idx >> clutBits) & chanMask) << clutShift)
		b := byte((idx & chanMask) << clutShift)

		best := 0
		bestDist := -1
		for i, p := range palette {
			dr := int(p.R) - int(r)
			dg := int(p.G) - int(g)
			db := int(p.B) - int(b)
			dist := dr*dr + dg*dg + db*db
			if bestDist == -1 || dist < bestDist {
				bestDist = dist
				best = i
			}
		}
		lut[idx] = uint16(best)
	}
	return lut
}

// BytesPerColumn returns the per-column byte budget for a column of the
// given height: one byte per pixel, PostBaseBytes per post header, one
// terminator byte.
func BytesPerColumn(height int) int {
	numPosts := (height + postMaxHeight - 1) / postMaxHeight
	return height + numPosts*postBaseBytes + 1
}

// ConvertRGBAToPatch transforms a tightly packed RGBA image (stride
// 4*width) into the engine's column-posted format, indexing every pixel
// through lut and discarding alpha. dst must be at least
// width*(4+BytesPerColumn(height)) bytes. Deterministic: identical input
// and lut always produce byte-identical output.
func ConvertRGBAToPatch(src []byte, width, height int, lut []uint16, dst []byte) {
	stride := 4 * width
	bytesPerColumn := BytesPerColumn(height)
	headerSize := width * 4

	// Column offset header: one 32-bit offset per column, pointing
	// postBaseBytes-1 bytes past the start of that column's data, i.e.
	// past the first post's three lead bytes.
	for x := 0; x < width; x++ {
		offset := uint32(headerSize + x*bytesPerColumn + (postBaseBytes - 1))
		binary.LittleEndian.PutUint32(dst[x*4:], offset)
	}

	pos := headerSize
	for x := 0; x < width; x++ {
		y := 0
		srcBase := 4 * x
		for y < height {
			postEnd := y + postMaxHeight
			if postEnd > height {
				postEnd = height
			}

			topDelta := byte(0)
			if y != 0 {
				topDelta = postMaxHeight
			}
			dst[pos] = topDelta
			dst[pos+1] = byte(postEnd - y)
			dst[pos+2] = 0
			pos += 3

			for ; y < postEnd; y++ {
				srcOff := srcBase + y*stride
				r := src[srcOff]
				g := src[srcOff+1]
				b := src[srcOff+2]
				dst[pos] = byte(lut[CLUTIndex(r, g, b)])
				pos++
			}

			dst[pos] = 0 // unused trail byte
			pos++
		}

		dst[pos] = 0xFF // column terminator
		pos++
	}
}
