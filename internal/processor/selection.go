package processor

import "github.com/MrWong99/sonoscope/pkg/types"

// reliable returns the valid detections at or above threshold, in input
// order, and how many were filtered out. A box must lie inside the frame
// when meta carries its size.
func reliable(dets []types.DetectedObject, threshold float64, meta types.FrameMetadata) ([]types.DetectedObject, int) {
	sized := meta.Width > 0 && meta.Height > 0
	out := make([]types.DetectedObject, 0, len(dets))
	for _, d := range dets {
		if d.Validate() != nil || !d.IsReliable(threshold) {
			continue
		}
		if sized && !d.BBox.Within(meta.Width, meta.Height) {
			continue
		}
		out = append(out, d)
	}
	return out, len(dets) - len(out)
}

// dominant picks the object that drives the music: highest confidence,
// then larger box, then earliest in input order. The rest are returned in
// input order. dets must not be empty.
func dominant(dets []types.DetectedObject) (types.DetectedObject, []types.DetectedObject) {
	best := 0
	for i := 1; i < len(dets); i++ {
		if outranks(dets[i], dets[best]) {
			best = i
		}
	}
	others := make([]types.DetectedObject, 0, len(dets)-1)
	others = append(others, dets[:best]...)
	others = append(others, dets[best+1:]...)
	return dets[best], others
}

// outranks reports whether a strictly beats b. Equal objects never
// outrank, which keeps the earlier one.
func outranks(a, b types.DetectedObject) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.BBox.Area() > b.BBox.Area()
}
