// Package rle implements the run-length encoding used for segmentation
// mask submissions: space-separated "start length" pairs over the
// flattened row-major mask, with 1-indexed starts.
package rle

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode converts a binary mask (0/1 per pixel, row-major) to its
// run-length encoded string. An all-zero mask encodes to "".
func Encode(mask []uint8) string {
	var b strings.Builder
	runStart := -1

	for i, v := range mask {
		if v != 0 {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			writeRun(&b, runStart, i-runStart)
			runStart = -1
		}
	}
	if runStart >= 0 {
		writeRun(&b, runStart, len(mask)-runStart)
	}

	return b.String()
}

// Decode parses an encoded string back into a binary mask of n pixels.
// Runs must be ordered, non-overlapping, and stay within bounds.
func Decode(encoded string, n int) ([]uint8, error) {
	mask := make([]uint8, n)
	if strings.TrimSpace(encoded) == "" {
		return mask, nil
	}

	fields := strings.Fields(encoded)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("rle: odd number of values (%d)", len(fields))
	}

	prevEnd := 0 // 1-indexed position just past the previous run
	for i := 0; i < len(fields); i += 2 {
		start, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("rle: invalid start %q: %w", fields[i], err)
		}
		length, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("rle: invalid length %q: %w", fields[i+1], err)
		}
		if start < 1 || length < 1 {
			return nil, fmt.Errorf("rle: run %d/%d out of range", start, length)
		}
		if start <= prevEnd {
			return nil, fmt.Errorf("rle: run at %d overlaps previous run", start)
		}
		if start-1+length > n {
			return nil, fmt.Errorf("rle: run %d+%d exceeds mask size %d", start, length, n)
		}
		for j := start - 1; j < start-1+length; j++ {
			mask[j] = 1
		}
		prevEnd = start - 1 + length
	}

	return mask, nil
}

func writeRun(b *strings.Builder, startIdx, length int) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(strconv.Itoa(startIdx + 1))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(length))
}
