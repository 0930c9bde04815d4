//go:build gocv
// +build gocv

package regions

import (
	"gocv.io/x/gocv"
	"image"
)

// FromMask finds external contours of the mask with OpenCV and returns
// one region per contour. mask is row-major, width*height pixels.
func FromMask(mask []uint8, width, height int) []Region {
	if width <= 0 || height <= 0 || len(mask) < width*height {
		return nil
	}

	totalArea := 0
	bin := make([]byte, width*height)
	for i, v := range mask[:width*height] {
		if v != 0 {
			bin[i] = 255
			totalArea++
		}
	}
	if totalArea == 0 {
		return nil
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, bin)
	if err != nil {
		return nil
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	out := make([]Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		rect := gocv.BoundingRect(c)
		area := countMaskPixels(mask, width, rect)
		if area == 0 {
			continue
		}
		out = append(out, Region{
			Coordinates: [2][2]int{{rect.Min.X, rect.Min.Y}, {rect.Max.X, rect.Max.Y}},
			Confidence:  float64(area) / float64(totalArea),
			Area:        area,
		})
	}

	return out
}

func countMaskPixels(mask []uint8, width int, rect image.Rectangle) int {
	area := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if mask[y*width+x] != 0 {
				area++
			}
		}
	}
	return area
}
