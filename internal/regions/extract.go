//go:build !gocv
// +build !gocv

package regions

// FromMask labels 4-connected components of the mask and returns one
// region per component. mask is row-major, width*height pixels.
func FromMask(mask []uint8, width, height int) []Region {
	if width <= 0 || height <= 0 || len(mask) < width*height {
		return nil
	}

	totalArea := 0
	for _, v := range mask[:width*height] {
		if v != 0 {
			totalArea++
		}
	}
	if totalArea == 0 {
		return nil
	}

	visited := make([]bool, width*height)
	var out []Region
	queue := make([]int, 0, 64)

	for start := 0; start < width*height; start++ {
		if mask[start] == 0 || visited[start] {
			continue
		}

		// Flood fill one component, tracking its bounding box.
		minX, minY := start%width, start/width
		maxX, maxY := minX, minY
		area := 0

		visited[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			area++

			x, y := idx%width, idx/width
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for _, n := range [4]int{idx - 1, idx + 1, idx - width, idx + width} {
				if n < 0 || n >= width*height {
					continue
				}
				// Reject horizontal neighbours that wrap across rows.
				if (n == idx-1 || n == idx+1) && n/width != y {
					continue
				}
				if mask[n] != 0 && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}

		out = append(out, Region{
			Coordinates: [2][2]int{{minX, minY}, {maxX + 1, maxY + 1}},
			Confidence:  float64(area) / float64(totalArea),
			Area:        area,
		})
	}

	return out
}
