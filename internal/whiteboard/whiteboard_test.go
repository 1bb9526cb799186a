package whiteboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"strings"
	"testing"
	"time"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func TestNewBoardIsWhite(t *testing.T) {
	b := New()
	for _, p := range []image.Point{{0, 0}, {Width - 1, Height - 1}, {600, 400}} {
		if got := b.At(p.X, p.Y); got != white {
			t.Fatalf("pixel %v = %v, want white", p, got)
		}
	}
}

func TestDrawBrushAndEraser(t *testing.T) {
	b := New()
	red, _ := LookupColor("red")

	if err := b.Draw(Stroke{Tool: ToolBrush, Color: "Red", Points: []Point{{X: 100, Y: 100}, {X: 200, Y: 100}}}); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if got := b.At(150, 100); got != red {
		t.Fatalf("expected red along the stroke, got %v", got)
	}
	if got := b.At(150, 110); got != white {
		t.Fatalf("brush should be thin, got %v at 10px offset", got)
	}

	if err := b.Draw(Stroke{Tool: ToolEraser, Points: []Point{{X: 150, Y: 100}}}); err != nil {
		t.Fatalf("Draw eraser err: %v", err)
	}
	if got := b.At(150, 100); got != white {
		t.Fatalf("eraser should paint white, got %v", got)
	}
	if got := b.At(145, 100); got != white {
		t.Fatalf("eraser radius should cover nearby pixels, got %v", got)
	}
	if got := b.At(190, 100); got != red {
		t.Fatalf("eraser should not reach far pixels, got %v", got)
	}
}

func TestDrawRejectsUnknownColor(t *testing.T) {
	b := New()
	err := b.Draw(Stroke{Tool: ToolBrush, Color: "Purple", Points: []Point{{X: 1, Y: 1}}})
	if !errors.Is(err, ErrUnknownColor) {
		t.Fatalf("expected ErrUnknownColor, got %v", err)
	}
}

func TestDrawDefaultsToBlack(t *testing.T) {
	b := New()
	if err := b.Draw(Stroke{Points: []Point{{X: 10, Y: 10}}}); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if got := b.At(10, 10); got != Palette[0].Color {
		t.Fatalf("expected default color, got %v", got)
	}
}

func TestClear(t *testing.T) {
	b := New()
	_ = b.Draw(Stroke{Tool: ToolBrush, Color: "Blue", Points: []Point{{X: 50, Y: 50}}})
	b.Clear()
	if got := b.At(50, 50); got != white {
		t.Fatalf("expected white after clear, got %v", got)
	}
}

func TestSnapshotIsJPEGDataURLAndReadOnly(t *testing.T) {
	b := New()
	_ = b.Draw(Stroke{Tool: ToolBrush, Color: "Green", Points: []Point{{X: 300, Y: 300}, {X: 400, Y: 350}}})
	before := b.Image()

	url, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot err: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected data URL prefix: %.40s", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("invalid jpeg: %v", err)
	}
	if img.Bounds().Dx() != Width || img.Bounds().Dy() != Height {
		t.Fatalf("unexpected snapshot size: %v", img.Bounds())
	}

	after := b.Image()
	if !bytes.Equal(before.Pix, after.Pix) {
		t.Fatal("snapshot must not modify the board")
	}
}

func TestLoadReplacesBoard(t *testing.T) {
	b := New()
	_ = b.Draw(Stroke{Tool: ToolBrush, Color: "Red", Points: []Point{{X: 500, Y: 500}}})

	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	orange, _ := LookupColor("Orange")
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = orange.R, orange.G, orange.B, orange.A
	}
	b.Load(src)

	if got := b.At(5, 5); got != orange {
		t.Fatalf("expected loaded pixel, got %v", got)
	}
	if got := b.At(500, 500); got != white {
		t.Fatalf("previous strokes should be replaced, got %v", got)
	}
}

func TestDrawClipsOffCanvasSegments(t *testing.T) {
	b := New()
	black := Palette[0].Color

	done := make(chan error, 1)
	go func() {
		done <- b.Draw(Stroke{Points: []Point{{X: 0, Y: 400}, {X: 1e12, Y: 400}}})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Draw err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("off-canvas segment should be clipped to the canvas")
	}
	if got := b.At(Width-1, 400); got != black {
		t.Fatalf("visible part of the segment should be drawn, got %v", got)
	}

	if err := b.Draw(Stroke{Points: []Point{{X: -1e15, Y: -1e15}, {X: -1e15, Y: 1e15}}}); err != nil {
		t.Fatalf("fully off-canvas stroke err: %v", err)
	}
	if got := b.At(0, 0); got != white {
		t.Fatalf("fully off-canvas stroke must not paint, got %v", got)
	}
}

func TestDrawRejectsInvalidStrokes(t *testing.T) {
	b := New()

	if err := b.Draw(Stroke{Points: []Point{{X: math.NaN(), Y: 1}}}); !errors.Is(err, ErrInvalidStroke) {
		t.Fatalf("expected ErrInvalidStroke for NaN, got %v", err)
	}
	if err := b.Draw(Stroke{Points: []Point{{X: 1, Y: 1}, {X: math.Inf(1), Y: 1}}}); !errors.Is(err, ErrInvalidStroke) {
		t.Fatalf("expected ErrInvalidStroke for Inf, got %v", err)
	}
	if err := b.Draw(Stroke{Points: make([]Point, MaxStrokePoints+1)}); !errors.Is(err, ErrInvalidStroke) {
		t.Fatalf("expected ErrInvalidStroke for an oversized stroke, got %v", err)
	}
	if got := b.At(1, 1); got != white {
		t.Fatalf("rejected strokes must not paint, got %v", got)
	}
}
