package normalize

import "nexus/internal/model"

// IoU returns the intersection-over-union of two rectangles, in [0, 1].
// Two empty-area rectangles (or non-overlapping ones) have an IoU of 0.
func IoU(a, b model.Rect) float64 {
	ix1, iy1 := max(a.X, b.X), max(a.Y, b.Y)
	ix2, iy2 := min(a.X+a.W, b.X+b.W), min(a.Y+a.H, b.Y+b.H)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := float64(iw * ih)

	union := float64(a.W*a.H+b.W*b.H) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// overlapThreshold is the IoU above which an OCR/vision fallback element is
// considered a duplicate of one the primary backend already reported.
const overlapThreshold = 0.5

// MergeFallback appends fallback elements (from OCR-text or Vision-detect)
// to primary, dropping any fallback element whose bounds overlap an
// existing primary element by more than overlapThreshold IoU — the
// control is already represented and the fallback detection is redundant.
// primary is returned unmodified when it already has enough elements; the
// <5-element gate lives in the caller, which decides whether to invoke the
// fallback backend at all.
func MergeFallback(primary, fallback []model.Element) []model.Element {
	if len(fallback) == 0 {
		return primary
	}
	merged := make([]model.Element, len(primary), len(primary)+len(fallback))
	copy(merged, primary)

	for _, fe := range fallback {
		dup := false
		for _, pe := range primary {
			if IoU(fe.Bounds, pe.Bounds) > overlapThreshold {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, fe)
		}
	}
	return merged
}
