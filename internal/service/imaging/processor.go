// Package imaging turns user-supplied avatar images into bounded JPEG data URLs.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register gif
	"image/jpeg"
	_ "image/png" // register png

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register webp
	"golang.org/x/sync/semaphore"
)

// DataURLPrefix precedes the base64 payload of every processed image.
const DataURLPrefix = "data:image/jpeg;base64,"

const (
	DefaultMaxDimension  = 512
	DefaultMaxBytes      = 10 << 20
	DefaultMaxInputBytes = 20 << 20
	DefaultWorkers       = 4

	maxQuality    = 90
	minQuality    = 40
	qualityStep   = 10
	minDimension  = 16
	maxPixelCount = 64 << 20
)

var (
	ErrEmpty       = errors.New("image is empty")
	ErrInputTooBig = errors.New("image exceeds the maximum upload size")
	ErrUnsupported = errors.New("image format is not supported")
	ErrCannotFit   = errors.New("image cannot be reduced below the size limit")
)

// Options bounds the processor's output and concurrency.
type Options struct {
	MaxDimension  int
	MaxBytes      int
	MaxInputBytes int
	Workers       int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxInputBytes <= 0 {
		o.MaxInputBytes = DefaultMaxInputBytes
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// Processor decodes, resizes and re-encodes images off the caller's goroutine.
// At most Options.Workers images are processed at once.
type Processor struct {
	opts Options
	sem  *semaphore.Weighted
}

// NewProcessor creates a Processor; zero option fields take their defaults.
func NewProcessor(opts Options) *Processor {
	opts = opts.withDefaults()
	return &Processor{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.Workers)),
	}
}

// Options returns the effective options.
func (p *Processor) Options() Options {
	return p.opts
}

type result struct {
	payload string
	err     error
}

// Process returns a JPEG data URL no longer than MaxBytes whose larger
// dimension is at most MaxDimension. The caller stops waiting when ctx ends;
// the background encode then finishes and is discarded.
func (p *Processor) Process(ctx context.Context, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmpty
	}
	if len(raw) > p.opts.MaxInputBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooBig, len(raw), p.opts.MaxInputBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}

	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		payload, err := p.compress(raw)
		done <- result{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.payload, r.err
	}
}

func (p *Processor) compress(raw []byte) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixelCount {
		return "", fmt.Errorf("%w: %dx%d pixels", ErrUnsupported, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), p.opts.MaxDimension)
	for {
		dst := resize(src, w, h)
		for q := maxQuality; q >= minQuality; q -= qualityStep {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
				return "", fmt.Errorf("encoding jpeg: %w", err)
			}
			payload := EncodeDataURL(buf.Bytes())
			if len(payload) <= p.opts.MaxBytes {
				return payload, nil
			}
		}
		w, h = w*3/4, h*3/4
		if w < minDimension || h < minDimension {
			return "", ErrCannotFit
		}
	}
}

// fit scales w x h so that the larger side is at most limit, keeping the aspect ratio.
func fit(w, h, limit int) (int, int) {
	longest := max(w, h)
	if longest <= limit {
		return w, h
	}
	nw := max(1, w*limit/longest)
	nh := max(1, h*limit/longest)
	return nw, nh
}

// resize draws src onto a white w x h canvas so transparent areas do not turn black.
func resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// EncodeDataURL wraps JPEG bytes in a data URL.
func EncodeDataURL(jpegBytes []byte) string {
	return DataURLPrefix + base64.StdEncoding.EncodeToString(jpegBytes)
}
