//go:build !gocv
// +build !gocv

package regions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func maskFromRows(rows []string) ([]uint8, int, int) {
	height := len(rows)
	width := len(rows[0])
	mask := make([]uint8, width*height)
	for y, row := range rows {
		for x := 0; x < width; x++ {
			if row[x] == '1' {
				mask[y*width+x] = 1
			}
		}
	}
	return mask, width, height
}

func TestFromMaskEmpty(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"0000",
		"0000",
	})
	require.Nil(t, FromMask(mask, w, h))
}

func TestFromMaskSingleComponent(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"0000",
		"0110",
		"0110",
		"0000",
	})
	got := FromMask(mask, w, h)
	require.Len(t, got, 1)
	require.Equal(t, [2][2]int{{1, 1}, {3, 3}}, got[0].Coordinates)
	require.Equal(t, 4, got[0].Area)
	require.InDelta(t, 1.0, got[0].Confidence, 1e-9)
}

func TestFromMaskTwoComponents(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"1100000",
		"1100000",
		"0000011",
		"0000011",
	})
	got := FromMask(mask, w, h)
	require.Len(t, got, 2)

	totalArea := got[0].Area + got[1].Area
	require.Equal(t, 8, totalArea)
	for _, r := range got {
		require.InDelta(t, 0.5, r.Confidence, 1e-9)
	}
}

func TestFromMaskDiagonalNotConnected(t *testing.T) {
	// Diagonal touch is not 4-connected, so two regions.
	mask, w, h := maskFromRows([]string{
		"10",
		"01",
	})
	got := FromMask(mask, w, h)
	require.Len(t, got, 2)
}

func TestFromMaskRowWrapNotConnected(t *testing.T) {
	// Last pixel of row 0 and first pixel of row 1 are adjacent in the
	// flat slice but not in the image.
	mask, w, h := maskFromRows([]string{
		"001",
		"100",
	})
	got := FromMask(mask, w, h)
	require.Len(t, got, 2)
}

func TestFromMaskLShape(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"100",
		"100",
		"111",
	})
	got := FromMask(mask, w, h)
	require.Len(t, got, 1)
	require.Equal(t, [2][2]int{{0, 0}, {3, 3}}, got[0].Coordinates)
	require.Equal(t, 5, got[0].Area)
}
