package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/cavotieno/forgery-analyzer/internal/regions"
	"github.com/cavotieno/forgery-analyzer/internal/rle"
)

// ONNXDetector runs the pretrained copy-move forgery model through
// ONNX Runtime. The session owns fixed input/output tensors, so
// inference is serialized behind a mutex; callers may still prepare
// inputs concurrently.
type ONNXDetector struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	meta      Metadata
	threshold float64
	input     *ort.Tensor[float32]
	score     *ort.Tensor[float32]
	seg       *ort.Tensor[float32]
	logger    *slog.Logger
}

// NewONNXDetector loads the model checkpoint and its metadata sidecar,
// allocates tensors, and creates the inference session. Close must be
// called when the detector is no longer needed.
func NewONNXDetector(modelPath, metadataPath string, threshold float64, logger *slog.Logger) (*ONNXDetector, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	meta, err := loadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	scoreTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create score tensor: %w", err)
	}

	segTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		scoreTensor.Destroy()
		return nil, fmt.Errorf("failed to create segmentation tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"detection", "segmentation"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{scoreTensor, segTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		scoreTensor.Destroy()
		segTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXDetector{
		session:   session,
		meta:      meta,
		threshold: threshold,
		input:     inputTensor,
		score:     scoreTensor,
		seg:       segTensor,
		logger:    logger,
	}, nil
}

func loadMetadata(path string) (Metadata, error) {
	var meta Metadata

	raw, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read model metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse model metadata: %w", err)
	}

	if meta.ImageSize <= 0 {
		return meta, fmt.Errorf("model metadata: image_size must be positive")
	}
	if len(meta.InputShape) != 4 || len(meta.OutputShape) != 4 {
		return meta, fmt.Errorf("model metadata: input and output shapes must be rank 4")
	}
	// ImageNet defaults when the sidecar omits normalization constants.
	if meta.Std == [3]float32{} {
		meta.Mean = [3]float32{0.485, 0.456, 0.406}
		meta.Std = [3]float32{0.229, 0.224, 0.225}
	}

	return meta, nil
}

// Metadata returns the loaded model metadata.
func (d *ONNXDetector) Metadata() Metadata {
	return d.meta
}

// Analyze classifies one image and, when it is flagged as forged,
// extracts the duplicated-region mask and its connected regions.
func (d *ONNXDetector) Analyze(ctx context.Context, imageData []byte) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}
	input := Preprocess(img, d.meta)

	start := time.Now()
	score, segMap, err := d.run(input)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("inference complete",
		"format", format,
		"score", score,
		"duration_ms", time.Since(start).Milliseconds())

	confidence := float64(score)
	if confidence < d.threshold {
		return &Detection{
			Result:     LabelAuthentic,
			Confidence: confidence,
			Mask:       "",
		}, nil
	}

	width := int(d.meta.OutputShape[3])
	height := int(d.meta.OutputShape[2])
	mask := make([]uint8, width*height)
	for i, v := range segMap {
		if float64(v) > d.threshold {
			mask[i] = 1
		}
	}

	return &Detection{
		Result:     LabelForged,
		Confidence: confidence,
		Mask:       rle.Encode(mask),
		Regions:    regions.FromMask(mask, width, height),
	}, nil
}

// run copies the input into the session tensor, executes the forward
// pass, and returns the detection score plus a copy of the
// segmentation map. The copies let callers work outside the lock.
func (d *ONNXDetector) run(input []float32) (float32, []float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.input.GetData(), input)
	if err := d.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("inference failed: %w", err)
	}

	score := d.score.GetData()[0]
	segData := d.seg.GetData()
	segMap := make([]float32, len(segData))
	copy(segMap, segData)

	return score, segMap, nil
}

// Close releases the session and its tensors.
func (d *ONNXDetector) Close() {
	if d.input != nil {
		d.input.Destroy()
	}
	if d.score != nil {
		d.score.Destroy()
	}
	if d.seg != nil {
		d.seg.Destroy()
	}
	if d.session != nil {
		d.session.Destroy()
	}
	ort.DestroyEnvironment()
}
