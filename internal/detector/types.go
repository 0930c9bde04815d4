package detector

import (
	"context"

	"github.com/cavotieno/forgery-analyzer/internal/regions"
)

const (
	LabelAuthentic = "authentic"
	LabelForged    = "forged"
)

// Detection is the outcome of running the forgery model on one image.
// Mask is the run-length-encoded duplicated-region mask, empty when the
// image is classified authentic.
type Detection struct {
	Result     string           `json:"result"`
	Confidence float64          `json:"confidence"`
	Mask       string           `json:"mask"`
	Regions    []regions.Region `json:"regions"`
}

// Detector analyzes raw image bytes for copy-move forgeries.
type Detector interface {
	Analyze(ctx context.Context, imageData []byte) (*Detection, error)
}

// Metadata describes the model artifact: tensor shapes, the square
// input size, and the normalization constants applied before inference.
type Metadata struct {
	InputShape  []int64    `json:"input_shape"`
	OutputShape []int64    `json:"output_shape"`
	ImageSize   int        `json:"image_size"`
	Mean        [3]float32 `json:"mean"`
	Std         [3]float32 `json:"std"`
}
