package engine

import (
	"fmt"

	"github.com/ftahirops/xguard/model"
)

// Thresholds configures how raw detector boxes become a DetectionSummary
// and how device detections are classified.
type Thresholds struct {
	PersonClass      int
	DeviceClass      int
	PersonConfidence float64 // boxes must score strictly above this
	DeviceConfidence float64
	DeviceAreaRatio  float64 // above this a device is an exfiltration attempt
}

// DefaultThresholds returns the stock detector calibration (COCO person / cell phone).
func DefaultThresholds() Thresholds {
	return Thresholds{
		PersonClass:      0,
		DeviceClass:      67,
		PersonConfidence: 0.45,
		DeviceConfidence: 0.35,
		DeviceAreaRatio:  0.10,
	}
}

// gaze band and distress line as fractions of the frame
const (
	gazeBandLow   = 0.3
	gazeBandHigh  = 0.7
	distressLineY = 0.1
)

// Summarize reduces raw boxes for a width x height frame to a DetectionSummary.
func Summarize(boxes []model.Box, width, height int, th Thresholds) model.DetectionSummary {
	var s model.DetectionSummary
	if width <= 0 || height <= 0 {
		return s
	}
	w, h := float64(width), float64(height)
	for _, b := range boxes {
		switch {
		case b.Class == th.PersonClass && b.Confidence > th.PersonConfidence:
			s.PersonPresent = true
			s.ActivePersonCount++
			if cx := b.CenterX(); cx > w*gazeBandLow && cx < w*gazeBandHigh {
				s.GazeOnTarget = true
			}
			if float64(b.Y1) < h*distressLineY {
				s.DistressSignalActive = true
			}
		case b.Class == th.DeviceClass && b.Confidence > th.DeviceConfidence:
			s.DeviceDetections = append(s.DeviceDetections, model.DeviceDetection{
				BoundingBoxAreaRatio: float64(b.Area()) / (w * h),
				Confidence:           b.Confidence,
			})
		}
	}
	return s
}

// Qualifies reports whether a device detection is confident enough to alert on.
func (th Thresholds) Qualifies(d model.DeviceDetection) bool {
	return d.Confidence > th.DeviceConfidence
}

// ClassifyDevice maps a device detection to its alert. Pure.
func (th Thresholds) ClassifyDevice(d model.DeviceDetection) Request {
	if d.BoundingBoxAreaRatio > th.DeviceAreaRatio {
		return Request{
			Type:        model.AlertExfiltrationRisk,
			Description: "Direct phone capture attempt",
			Severity:    model.SeverityCritical,
		}
	}
	return Request{
		Type:        model.AlertHardwareBreach,
		Description: "Unauthorized recording device",
		Severity:    model.SeverityHigh,
	}
}

// attention, distress and proximity alerts raised by the frame loop
var (
	attentionLapse = Request{
		Type:        model.AlertAttentionLapse,
		Description: "Monitor focus lost",
		Severity:    model.SeverityMedium,
	}
	personnelDistress = Request{
		Type:        model.AlertPersonnelDistress,
		Description: "Confirmed SOS gesture",
		Severity:    model.SeverityUrgent,
	}
)

func visualBreach(count int) Request {
	return Request{
		Type:        model.AlertVisualBreach,
		Description: fmt.Sprintf("PROXIMITY_ALERT: %d persons", count),
		Severity:    model.SeverityHigh,
	}
}
