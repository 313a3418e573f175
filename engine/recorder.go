package engine

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for recorded frame images
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// Record is one line of a detection recording. Either Summary or Boxes
// describes the frame; Boxes are summarized on replay.
type Record struct {
	TS            time.Time               `json:"ts,omitempty"`
	Width         int                     `json:"width,omitempty"`
	Height        int                     `json:"height,omitempty"`
	Image         string                  `json:"image,omitempty"` // JPEG or PNG path
	Summary       *model.DetectionSummary `json:"summary,omitempty"`
	Boxes         []model.Box             `json:"boxes,omitempty"`
	AdminVerified bool                    `json:"admin_verified,omitempty"`
}

// PlayerOptions configures replay.
type PlayerOptions struct {
	Width      int // frame size for summarizing boxes when a record has none
	Height     int
	Thresholds Thresholds
	Pace       bool   // sleep between records to match recorded time
	BaseDir    string // relative image paths resolve against this
}

// Player is a DetectionSource reading JSON lines from a file or stdin.
type Player struct {
	opts    PlayerOptions
	scanner *bufio.Scanner
	line    int
	lastTS  time.Time
}

// NewPlayer creates a player over r. Records are read lazily.
func NewPlayer(r io.Reader, opts PlayerOptions) *Player {
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB line limit
	return &Player{opts: opts, scanner: sc}
}

// Next returns the next frame, or io.EOF when the input is exhausted.
// Malformed lines are skipped.
func (p *Player) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("read recording line %d: %w", p.line+1, err)
			}
			return Frame{}, io.EOF
		}
		p.line++
		data := p.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			logging.Warn().Err(err).Int("line", p.line).Msg("skipping malformed record")
			continue
		}
		if err := p.pace(ctx, rec.TS); err != nil {
			return Frame{}, err
		}
		return p.frame(rec), nil
	}
}

func (p *Player) pace(ctx context.Context, ts time.Time) error {
	if !p.opts.Pace || ts.IsZero() {
		return nil
	}
	prev := p.lastTS
	p.lastTS = ts
	if prev.IsZero() || !ts.After(prev) {
		return nil
	}
	t := time.NewTimer(ts.Sub(prev))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Player) frame(rec Record) Frame {
	w, h := rec.Width, rec.Height
	if w <= 0 || h <= 0 {
		w, h = p.opts.Width, p.opts.Height
	}

	// no image means no evidence and no stream for this frame
	var img image.Image
	if rec.Image != "" {
		var err error
		if img, err = p.loadImage(rec.Image); err != nil {
			logging.Warn().Err(err).Int("line", p.line).Msg("frame image unreadable")
		} else {
			w, h = img.Bounds().Dx(), img.Bounds().Dy()
		}
	}

	var s model.DetectionSummary
	if rec.Summary != nil {
		s = *rec.Summary
	} else {
		s = Summarize(rec.Boxes, w, h, p.opts.Thresholds)
	}
	s.AdminVerified = s.AdminVerified || rec.AdminVerified

	return Frame{Image: img, Summary: s, Boxes: rec.Boxes, Timestamp: rec.TS}
}

func (p *Player) loadImage(path string) (image.Image, error) {
	if !filepath.IsAbs(path) && p.opts.BaseDir != "" {
		path = filepath.Join(p.opts.BaseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Recorder wraps a DetectionSource and writes every frame it yields as a
// Record, so a live session can be replayed later.
type Recorder struct {
	inner DetectionSource
	enc   *json.Encoder
	mu    sync.Mutex
	clock func() time.Time
}

// NewRecorder creates a recorder that writes JSON lines to w.
func NewRecorder(inner DetectionSource, w io.Writer) *Recorder {
	return &Recorder{inner: inner, enc: json.NewEncoder(w), clock: time.Now}
}

// Next reads from the wrapped source and records the frame.
func (r *Recorder) Next(ctx context.Context) (Frame, error) {
	f, err := r.inner.Next(ctx)
	if err != nil {
		return f, err
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = r.clock()
	}
	rec := Record{
		TS:            f.Timestamp,
		Summary:       &f.Summary,
		Boxes:         f.Boxes,
		AdminVerified: f.Summary.AdminVerified,
	}
	if f.Image != nil {
		rec.Width, rec.Height = f.Image.Bounds().Dx(), f.Image.Bounds().Dy()
	}

	r.mu.Lock()
	err = r.enc.Encode(rec)
	r.mu.Unlock()
	if err != nil {
		// recording is secondary to detection
		logging.Warn().Err(err).Msg("record write failed")
	}
	return f, nil
}
