// Package regions extracts connected suspicious regions from a binary
// segmentation mask. Two implementations are provided: an OpenCV-backed
// one (build tag "gocv") and a pure-Go fallback so the service runs on
// hosts without the OpenCV runtime.
package regions

// Region is one connected area of the mask flagged as duplicated.
// Coordinates hold the top-left and bottom-right corners of the
// bounding box. Confidence is the region's share of all flagged pixels.
type Region struct {
	Coordinates [2][2]int `json:"coordinates"`
	Confidence  float64   `json:"confidence"`
	Area        int       `json:"area"`
}
