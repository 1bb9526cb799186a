package whiteboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"strings"
	"sync"
)

// 画布尺寸与笔刷参数
const (
	Width        = 1200
	Height       = 800
	BrushWidth   = 3
	EraserWidth  = 24
	JPEGQuality  = 85
	snapshotMIME = "image/jpeg"

	// MaxStrokePoints 单笔画最多的点数
	MaxStrokePoints = 4096
)

// Tool 绘制工具
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

var (
	// ErrUnknownColor 调色板中没有该颜色
	ErrUnknownColor = errors.New("unknown palette color")
	// ErrInvalidStroke 笔画点数过多或坐标不是有限数
	ErrInvalidStroke = errors.New("invalid stroke")
)

// Swatch 调色板中的一种颜色
type Swatch struct {
	Name  string
	Color color.RGBA
}

// Palette 可选的笔刷颜色，第一项为默认色。
var Palette = []Swatch{
	{Name: "Black", Color: color.RGBA{R: 13, G: 13, B: 13, A: 255}},
	{Name: "Red", Color: color.RGBA{R: 230, G: 26, B: 26, A: 255}},
	{Name: "Blue", Color: color.RGBA{R: 26, G: 94, B: 230, A: 255}},
	{Name: "Orange", Color: color.RGBA{R: 243, G: 114, B: 22, A: 255}},
	{Name: "Green", Color: color.RGBA{R: 41, G: 163, B: 82, A: 255}},
}

// LookupColor 按名称查找调色板颜色（不区分大小写）；空名称返回默认色。
func LookupColor(name string) (color.RGBA, error) {
	if name == "" {
		return Palette[0].Color, nil
	}
	for _, swatch := range Palette {
		if strings.EqualFold(swatch.Name, name) {
			return swatch.Color, nil
		}
	}
	return color.RGBA{}, fmt.Errorf("%w: %s", ErrUnknownColor, name)
}

// Point 画布坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 一次连续的笔画
type Stroke struct {
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color,omitempty"`
	Points []Point `json:"points"`
}

// Board 白板画布，可并发读写。截图不会修改画布。
type Board struct {
	mu  sync.RWMutex
	img *image.RGBA
}

// New 创建白色背景的空白画布
func New() *Board {
	b := &Board{img: image.NewRGBA(image.Rect(0, 0, Width, Height))}
	b.fillWhite()
	return b
}

// Draw 在画布上绘制一次笔画，线帽与连接处均为圆形。
func (b *Board) Draw(s Stroke) error {
	if len(s.Points) == 0 {
		return nil
	}
	if len(s.Points) > MaxStrokePoints {
		return fmt.Errorf("%w: %d points exceeds %d", ErrInvalidStroke, len(s.Points), MaxStrokePoints)
	}
	for _, p := range s.Points {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: non-finite point", ErrInvalidStroke)
		}
	}

	ink := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	width := float64(EraserWidth)
	switch s.Tool {
	case ToolEraser:
	case ToolBrush, "":
		c, err := LookupColor(s.Color)
		if err != nil {
			return err
		}
		ink = c
		width = BrushWidth
	default:
		return fmt.Errorf("unknown tool: %s", s.Tool)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	radius := width / 2
	prev := s.Points[0]
	b.stamp(prev, radius, ink)
	for _, p := range s.Points[1:] {
		b.segment(prev, p, radius, ink)
		prev = p
	}
	return nil
}

// Clear 将画布恢复为纯白
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillWhite()
}

// Load 用一张图片覆盖画布（白底，左上角对齐，超出部分裁掉）。
func (b *Board) Load(src image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillWhite()
	draw.Draw(b.img, b.img.Bounds(), src, src.Bounds().Min, draw.Over)
}

// Image 返回画布的副本
func (b *Board) Image() *image.RGBA {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := image.NewRGBA(b.img.Bounds())
	copy(out.Pix, b.img.Pix)
	return out
}

// At 返回某像素的颜色
func (b *Board) At(x, y int) color.RGBA {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.img.RGBAAt(x, y)
}

// Snapshot 将当前画布编码为 JPEG data URL
func (b *Board) Snapshot() (string, error) {
	b.mu.RLock()
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, b.img, &jpeg.Options{Quality: JPEGQuality})
	b.mu.RUnlock()
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return "data:" + snapshotMIME + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (b *Board) fillWhite() {
	draw.Draw(b.img, b.img.Bounds(), image.White, image.Point{}, draw.Src)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// segment 沿线段按半径步长盖印圆点；先裁剪到画布外扩 radius 的范围，画布外的部分不盖印。
func (b *Board) segment(from, to Point, radius float64, ink color.RGBA) {
	bounds := b.img.Bounds()
	from, to, ok := clip(from, to,
		float64(bounds.Min.X)-radius, float64(bounds.Min.Y)-radius,
		float64(bounds.Max.X)+radius, float64(bounds.Max.Y)+radius)
	if !ok {
		return
	}

	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)
	step := math.Max(radius/2, 0.5)
	n := int(math.Ceil(dist / step))
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		b.stamp(Point{X: from.X + dx*t, Y: from.Y + dy*t}, radius, ink)
	}
}

// clip Liang-Barsky 线段裁剪；线段与矩形不相交时返回 false。
func clip(a, b Point, minX, minY, maxX, maxY float64) (Point, Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return Point{X: a.X + dx*t0, Y: a.Y + dy*t0}, Point{X: a.X + dx*t1, Y: a.Y + dy*t1}, true
}

func (b *Board) stamp(center Point, radius float64, ink color.RGBA) {
	bounds := b.img.Bounds()
	if center.X+radius < float64(bounds.Min.X) || center.X-radius > float64(bounds.Max.X) ||
		center.Y+radius < float64(bounds.Min.Y) || center.Y-radius > float64(bounds.Max.Y) {
		return
	}
	minX := int(math.Floor(center.X - radius))
	maxX := int(math.Ceil(center.X + radius))
	minY := int(math.Floor(center.Y - radius))
	maxY := int(math.Ceil(center.Y + radius))
	r2 := radius * radius

	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			px, py := float64(x)+0.5-center.X, float64(y)+0.5-center.Y
			if px*px+py*py <= r2 {
				b.img.SetRGBA(x, y, ink)
			}
		}
	}
}
