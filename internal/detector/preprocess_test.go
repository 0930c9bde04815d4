package detector

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImagePNG(t *testing.T) {
	data := solidPNG(t, 8, 8, color.White)
	img, format, err := DecodeImage(data)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 8, img.Bounds().Dx())
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, _, err := DecodeImage([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestPreprocessShapeAndLayout(t *testing.T) {
	meta := Metadata{
		ImageSize: 4,
		Mean:      [3]float32{0, 0, 0},
		Std:       [3]float32{1, 1, 1},
	}

	img, _, err := DecodeImage(solidPNG(t, 16, 16, color.White))
	require.NoError(t, err)

	data := Preprocess(img, meta)
	require.Len(t, data, 3*4*4)

	// White pixels normalize to 1.0 in every channel.
	for i, v := range data {
		require.InDelta(t, 1.0, float64(v), 1e-3, "index %d", i)
	}
}

func TestPreprocessAppliesNormalization(t *testing.T) {
	meta := Metadata{
		ImageSize: 2,
		Mean:      [3]float32{0.485, 0.456, 0.406},
		Std:       [3]float32{0.229, 0.224, 0.225},
	}

	img, _, err := DecodeImage(solidPNG(t, 2, 2, color.Black))
	require.NoError(t, err)

	data := Preprocess(img, meta)
	require.Len(t, data, 3*2*2)

	plane := 4
	require.InDelta(t, -0.485/0.229, float64(data[0]), 1e-3)
	require.InDelta(t, -0.456/0.224, float64(data[plane]), 1e-3)
	require.InDelta(t, -0.406/0.225, float64(data[2*plane]), 1e-3)
}
