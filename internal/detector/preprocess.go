package detector

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DecodeImage decodes JPEG, PNG, TIFF, or BMP bytes into an image.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Preprocess resizes the image to the model's square input size and
// returns normalized CHW float32 pixel data.
func Preprocess(img image.Image, meta Metadata) []float32 {
	size := uint(meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*width + x
			data[idx] = (float32(r)/65535.0 - meta.Mean[0]) / meta.Std[0]
			data[plane+idx] = (float32(g)/65535.0 - meta.Mean[1]) / meta.Std[1]
			data[2*plane+idx] = (float32(b)/65535.0 - meta.Mean[2]) / meta.Std[2]
		}
	}

	return data
}
