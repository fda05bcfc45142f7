package posted

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesPerColumnSinglePost(t *testing.T) {
	// height <= postMaxHeight (254): exactly one post.
	for _, h := range []int{1, 100, 254} {
		want := h + 1*postBaseBytes + 1
		require.Equal(t, want, BytesPerColumn(h), "height %d", h)
	}
}

func TestBytesPerColumnTwoPosts(t *testing.T) {
	// height in (254, 508]: exactly two posts.
	for _, h := range []int{255, 400, 508} {
		want := h + 2*postBaseBytes + 1
		require.Equal(t, want, BytesPerColumn(h), "height %d", h)
	}
}

func TestCLUTIndexRange(t *testing.T) {
	idx := CLUTIndex(255, 255, 255)
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx, clutSize)
	require.Equal(t, 0, CLUTIndex(0, 0, 0))
}

func TestBuildLUTNearestColor(t *testing.T) {
	palette := [256]RGB{}
	palette[0] = RGB{R: 0, G: 0, B: 0}
	palette[1] = RGB{R: 255, G: 0, B: 0}
	palette[2] = RGB{R: 0, G: 255, B: 0}

	lut := BuildLUT(palette)
	require.Len(t, lut, clutSize)

	// A near-black quantised bucket should map to the black palette entry.
	require.EqualValues(t, 0, lut[CLUTIndex(4, 4, 4)])
	// A near-pure-red bucket should map to the red palette entry.
	require.EqualValues(t, 1, lut[CLUTIndex(250, 2, 2)])
}

func TestConvertRGBAToPatchDeterministic(t *testing.T) {
	const w, h = 4, 3
	src := make([]byte, 4*w*h)
	for i := range src {
		src[i] = byte(i * 7 % 256)
	}
	var palette [256]RGB
	for i := range palette {
		palette[i] = RGB{R: byte(i), G: byte(i), B: byte(i)}
	}
	lut := BuildLUT(palette)

	dstSize := w * (4 + BytesPerColumn(h))
	dst1 := make([]byte, dstSize)
	dst2 := make([]byte, dstSize)
	ConvertRGBAToPatch(src, w, h, lut, dst1)
	ConvertRGBAToPatch(src, w, h, lut, dst2)
	require.Equal(t, dst1, dst2)

	// Every column must end in the 0xFF terminator.
	headerSize := w * 4
	bytesPerColumn := BytesPerColumn(h)
	for x := 0; x < w; x++ {
		term := dst1[headerSize+(x+1)*bytesPerColumn-1]
		require.EqualValues(t, 0xFF, term, "column %d terminator", x)
	}
}

func TestConvertRGBAToPatchTallColumnTwoPosts(t *testing.T) {
	const w, h = 1, 300 // taller than postMaxHeight: must split into two posts
	src := make([]byte, 4*w*h)
	var palette [256]RGB
	lut := BuildLUT(palette)

	dst := make([]byte, w*(4+BytesPerColumn(h)))
	ConvertRGBAToPatch(src, w, h, lut, dst)

	headerSize := w * 4
	require.EqualValues(t, 0, dst[headerSize], "first post topDelta")
	require.EqualValues(t, postMaxHeight, dst[headerSize+1], "first post count")

	secondPostStart := headerSize + 3 + postMaxHeight + 1
	require.EqualValues(t, postMaxHeight, dst[secondPostStart], "second post topDelta")
	require.EqualValues(t, h-postMaxHeight, dst[secondPostStart+1], "second post count")
}
