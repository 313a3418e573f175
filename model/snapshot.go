package model

// DetectionSummary is the per-frame output of the detection collaborator.
// One instance per frame; it is discarded after the frame is processed.
type DetectionSummary struct {
	PersonPresent        bool              `json:"person_present"`
	GazeOnTarget         bool              `json:"gaze_on_target"`
	DistressSignalActive bool              `json:"distress_signal_active"`
	ActivePersonCount    int               `json:"active_person_count"`
	AdminVerified        bool              `json:"admin_verified"`
	DeviceDetections     []DeviceDetection `json:"device_detections,omitempty"`
}

// DeviceDetection is one recording device seen in the frame.
type DeviceDetection struct {
	BoundingBoxAreaRatio float64 `json:"area_ratio"` // box area / frame area, 0-1
	Confidence           float64 `json:"confidence"` // 0-1
}

// Box is a raw detector box in pixel coordinates.
type Box struct {
	Class      int     `json:"class"`
	Confidence float64 `json:"conf"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
}

// Area returns the box area in pixels. Inverted boxes have zero area.
func (b Box) Area() int {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// CenterX returns the horizontal centroid of the box.
func (b Box) CenterX() float64 {
	return float64(b.X1+b.X2) / 2
}
