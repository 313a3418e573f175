package engine

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// EvidenceCapture writes alert frames to disk and encodes them for transport.
type EvidenceCapture struct {
	Dir     string
	Quality int // JPEG quality for both outputs

	dirReady bool
}

// NewEvidenceCapture creates a capture rooted at dir. The directory is
// created on first use.
func NewEvidenceCapture(dir string) *EvidenceCapture {
	return &EvidenceCapture{Dir: dir, Quality: jpeg.DefaultQuality}
}

// EvidenceFileName returns breach_<TYPE>_<YYYYMMDD_HHMMSS>.jpg in local time,
// matching the audit row.
func EvidenceFileName(t model.AlertType, now time.Time) string {
	return fmt.Sprintf("breach_%s_%s.jpg", t, now.Local().Format("20060102_150405"))
}

// Capture persists frame and returns its path and base64 JPEG encoding.
// The two outputs fail independently; a failed one is returned empty.
func (c *EvidenceCapture) Capture(t model.AlertType, frame image.Image, now time.Time) (path, encoded string) {
	if frame == nil {
		return "", ""
	}

	if p, err := c.write(t, frame, now); err != nil {
		logging.Warn().Err(err).Str("type", t.String()).Msg("EVIDENCE_WRITE_FAILURE")
		evidenceFailures.WithLabelValues("file").Inc()
	} else {
		path = p
	}

	if enc, err := EncodeFrame(frame, c.Quality); err != nil {
		logging.Warn().Err(err).Str("type", t.String()).Msg("EVIDENCE_ENCODE_FAILURE")
		evidenceFailures.WithLabelValues("encode").Inc()
	} else {
		encoded = enc
	}
	return path, encoded
}

func (c *EvidenceCapture) write(t model.AlertType, frame image.Image, now time.Time) (string, error) {
	if !c.dirReady {
		if err := os.MkdirAll(c.Dir, 0700); err != nil {
			return "", fmt.Errorf("create evidence dir: %w", err)
		}
		c.dirReady = true
	}
	path := filepath.Join(c.Dir, EvidenceFileName(t, now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, frame, &jpeg.Options{Quality: c.Quality}); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// EncodeFrame JPEG-encodes img at quality and returns it as standard base64.
func EncodeFrame(img image.Image, quality int) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
