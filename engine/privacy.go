package engine

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/ftahirops/xguard/model"
)

// DefaultBlurSigma approximates a 99px Gaussian kernel at sigma 30.
const DefaultBlurSigma = 30.0

// BlurPersons returns a copy of img with every qualifying person box
// Gaussian-blurred. img itself is never modified, and is returned as is
// when nothing needs blurring. Overlapping boxes blur cumulatively.
func BlurPersons(img image.Image, boxes []model.Box, th Thresholds, sigma float64) image.Image {
	if img == nil || sigma <= 0 {
		return img
	}
	b := img.Bounds()
	frameRect := image.Rect(0, 0, b.Dx(), b.Dy())

	var out *image.NRGBA
	for _, box := range boxes {
		if box.Class != th.PersonClass || box.Confidence <= th.PersonConfidence || box.Area() == 0 {
			continue
		}
		r := image.Rect(box.X1, box.Y1, box.X2, box.Y2).Intersect(frameRect)
		if r.Empty() {
			continue
		}
		if out == nil {
			out = imaging.Clone(img) // origin (0,0)
		}
		zone := imaging.Blur(imaging.Crop(out, r), sigma)
		out = imaging.Paste(out, zone, r.Min)
	}
	if out == nil {
		return img
	}
	return out
}
