// Package yolo implements vision.Processor with a YOLOv8 ONNX model run
// through OpenCV's DNN module.
//
// Recognised options:
//
//	model_path      path to the .onnx file (required)
//	confidence      minimum class score before NMS (default 0.5)
//	nms             NMS IoU threshold (default 0.45)
//	input_size      square network input size in pixels (default 640)
//	aliases         map of COCO label → class name, e.g. {"potted plant": "plant"}
//
// Class names default to the COCO labels with a small alias table applied so
// that common labels line up with the built-in mapping table.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const (
	defaultConfidence = 0.5
	defaultNMS        = 0.45
	defaultInputSize  = 640
)

// defaultAliases maps COCO labels onto the shorter names the mapper knows.
var defaultAliases = map[string]string{
	"potted plant": "plant",
	"cell phone":   "phone",
	"wine glass":   "cup",
	"tv":           "screen",
}

// Detector is a YOLOv8 vision processor. Detect serialises on an internal
// mutex because gocv.Net is not safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	net        gocv.Net
	loaded     bool
	modelPath  string
	confidence float32
	nms        float32
	inputSize  image.Point
	aliases    map[string]string
}

// New returns an uninitialised Detector.
func New() *Detector {
	return &Detector{}
}

// Initialize validates opts and loads the ONNX model.
func (d *Detector) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("model_path", "confidence", "nms", "input_size", "aliases"); err != nil {
		return fmt.Errorf("yolo: %w", err)
	}
	path, err := opts.String("model_path", "")
	if err != nil {
		return fmt.Errorf("yolo: %w", err)
	}
	if path == "" {
		return errors.New("yolo: model_path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("yolo: model file: %w", err)
	}
	conf, err := opts.Float("confidence", defaultConfidence)
	if err != nil {
		return fmt.Errorf("yolo: %w", err)
	}
	nms, err := opts.Float("nms", defaultNMS)
	if err != nil {
		return fmt.Errorf("yolo: %w", err)
	}
	size, err := opts.Int("input_size", defaultInputSize)
	if err != nil {
		return fmt.Errorf("yolo: %w", err)
	}
	aliases, err := parseAliases(opts["aliases"])
	if err != nil {
		return err
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return fmt.Errorf("yolo: failed to load model from %s", path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return fmt.Errorf("yolo: set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return fmt.Errorf("yolo: set target: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.net.Close()
	}
	d.net = net
	d.loaded = true
	d.modelPath = path
	d.confidence = float32(conf)
	d.nms = float32(nms)
	d.inputSize = image.Pt(size, size)
	d.aliases = aliases
	return nil
}

func parseAliases(v any) (map[string]string, error) {
	out := make(map[string]string, len(defaultAliases))
	for k, a := range defaultAliases {
		out[k] = a
	}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("yolo: aliases must be a mapping, got %T", v)
	}
	for k, a := range m {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("yolo: alias for %q must be a string, got %T", k, a)
		}
		out[k] = s
	}
	return out, nil
}

// Detect runs the network on frame and returns detections sorted by
// descending confidence.
func (d *Detector) Detect(_ context.Context, frame types.Frame) ([]types.DetectedObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, errors.New("yolo: detector not initialised")
	}

	img, swapRB, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("yolo: empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), swapRB, false)
	defer blob.Close()
	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, img.Cols(), img.Rows(), frame.Metadata), nil
}

// toMat decodes the frame into a Mat. OpenCV decodes to BGR, so swapRB is
// true for encoded input and false for Go images, which convert to RGB.
func toMat(frame types.Frame) (mat gocv.Mat, swapRB bool, err error) {
	if len(frame.Encoded) > 0 {
		mat, err = gocv.IMDecode(frame.Encoded, gocv.IMReadColor)
		if err != nil {
			return gocv.Mat{}, false, fmt.Errorf("yolo: decode image: %w", err)
		}
		return mat, true, nil
	}
	if frame.Image == nil {
		return gocv.Mat{}, false, errors.New("yolo: frame has no image data")
	}
	mat, err = gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return gocv.Mat{}, false, fmt.Errorf("yolo: convert image: %w", err)
	}
	return mat, false, nil
}

// parse decodes the [1, 4+classes, anchors] YOLOv8 output tensor.
func (d *Detector) parse(output gocv.Mat, imgW, imgH int, meta types.FrameMetadata) []types.DetectedObject {
	dims := output.Size()
	if len(dims) != 3 {
		return nil
	}
	table := output.Reshape(1, dims[1])
	defer table.Close()

	cols := table.Rows() // 4 + classes
	rows := table.Cols() // anchors
	data, err := table.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	scaleX := float32(imgW) / float32(d.inputSize.X)
	scaleY := float32(imgH) / float32(d.inputSize.Y)
	for i := range rows {
		best, bestID := float32(0), 0
		for c := 4; c < cols; c++ {
			if s := data[c*rows+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if best < d.confidence {
			continue
		}
		cx, cy := data[i], data[rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*scaleX), int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX), int((cy+h/2)*scaleY),
		).Intersect(image.Rect(0, 0, imgW, imgH)))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestID)
	}
	if len(boxes) == 0 {
		return []types.DetectedObject{}
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.confidence, d.nms)
	out := make([]types.DetectedObject, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		if box.Empty() || classIDs[idx] >= len(COCOClasses) {
			continue
		}
		out = append(out, types.DetectedObject{
			ID:         uuid.NewString(),
			ClassName:  d.className(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			BBox: types.BoundingBox{
				X: box.Min.X, Y: box.Min.Y, Width: box.Dx(), Height: box.Dy(),
			},
			Timestamp: meta.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (d *Detector) className(id int) string {
	label := COCOClasses[id]
	if alias, ok := d.aliases[label]; ok {
		return alias
	}
	return label
}

// SupportedClasses returns the aliased COCO label set.
func (d *Detector) SupportedClasses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(COCOClasses))
	for i := range COCOClasses {
		out[i] = d.className(i)
	}
	return out
}

// Info describes the loaded model.
func (d *Detector) Info() vision.ModelInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vision.ModelInfo{
		Name:       "yolov8",
		Version:    d.modelPath,
		InputSize:  d.inputSize.X,
		NumClasses: len(COCOClasses),
	}
}

// Cleanup releases the network.
func (d *Detector) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.net.Close()
		d.loaded = false
	}
	return nil
}

// COCOClasses contains the 80 COCO class names in model output order.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

var _ vision.Processor = (*Detector)(nil)
