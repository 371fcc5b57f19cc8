package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

// AssetStore fetches and stores binary assets. References are either store
// keys or absolute URLs.
type AssetStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Lookup returns the public URL of key if it was stored before.
	Lookup(ctx context.Context, key string) (string, bool, error)
	URL(ref string) string
}

var ErrMissingHalves = errors.New("catalog: half images missing")

// Compositor renders split pizzas: b's right half is the canvas and a's left
// half is drawn over it at the same extent.
type Compositor struct {
	assets AssetStore
	logger *slog.Logger
}

func NewCompositor(assets AssetStore, logger *slog.Logger) (*Compositor, error) {
	if assets == nil {
		return nil, errors.New("catalog: asset store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{assets: assets, logger: logger}, nil
}

// CompositeKey is the store key of the rendered composite of a and b.
func CompositeKey(a, b string) string {
	return "composites/" + a + "__" + b + ".png"
}

// Compose returns the URL of the composite image of a and b, rendering and
// storing it on first use.
func (c *Compositor) Compose(ctx context.Context, a, b domain.MenuItem) (string, error) {
	if a.Images.LeftHalf == "" || b.Images.RightHalf == "" {
		return "", ErrMissingHalves
	}
	key := CompositeKey(a.Identifier, b.Identifier)
	if url, ok, err := c.assets.Lookup(ctx, key); err == nil && ok {
		return url, nil
	} else if err != nil {
		c.logger.Warn("catalog: composite lookup failed", "key", key, "err", err)
	}

	base, err := c.decode(ctx, b.Images.RightHalf)
	if err != nil {
		return "", fmt.Errorf("catalog: right half of %s: %w", b.Identifier, err)
	}
	overlay, err := c.decode(ctx, a.Images.LeftHalf)
	if err != nil {
		return "", fmt.Errorf("catalog: left half of %s: %w", a.Identifier, err)
	}

	data, err := Overlay(base, overlay)
	if err != nil {
		return "", err
	}
	url, err := c.assets.Put(ctx, key, "image/png", data)
	if err != nil {
		return "", fmt.Errorf("catalog: store composite: %w", err)
	}
	return url, nil
}

func (c *Compositor) decode(ctx context.Context, ref string) (image.Image, error) {
	raw, err := c.assets.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return img, nil
}

// Overlay draws base full-frame, then overlay on top scaled to base's
// extent, and returns the PNG encoding.
func Overlay(base, overlay image.Image) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("catalog: overlay panicked: %v", r)
		}
	}()

	bb := base.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	draw.Draw(canvas, canvas.Bounds(), base, bb.Min, draw.Src)

	ob := overlay.Bounds()
	if ob.Dx() == bb.Dx() && ob.Dy() == bb.Dy() {
		draw.Draw(canvas, canvas.Bounds(), overlay, ob.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), overlay, ob, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("catalog: encode composite: %w", err)
	}
	return buf.Bytes(), nil
}
