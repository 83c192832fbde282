package image

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// BlendMode specifies how layers are composited.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendOverlay:
		return "Overlay"
	case BlendDifference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ParseBlendMode accepts the names produced by String, case-insensitively.
func ParseBlendMode(s string) (BlendMode, error) {
	for m := BlendNormal; m <= BlendDifference; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
}

// Composite flattens placed layers into a single image.
type Composite struct {
	Width     int
	Height    int
	Layers    []*Layer
	BackColor color.Color
	Interp    xdraw.Interpolator
}

// NewComposite creates a transparent Composite with the specified dimensions.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.Transparent,
		Interp:    xdraw.BiLinear,
	}
}

// AddLayer adds a layer on top of the stack.
func (c *Composite) AddLayer(layer *Layer) {
	c.Layers = append(c.Layers, layer)
}

// Render produces the final composited image.
func (c *Composite) Render() *image.RGBA {
	result := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	xdraw.Draw(result, result.Bounds(), &image.Uniform{C: c.BackColor}, image.Point{}, xdraw.Src)

	for _, l := range c.Layers {
		if l == nil || l.Image == nil || !l.Visible || l.Opacity <= 0 {
			continue
		}
		c.compositeLayer(result, l)
	}
	return result
}

// compositeLayer renders the layer through its transform, then blends it.
func (c *Composite) compositeLayer(dst *image.RGBA, l *Layer) {
	placed := l.Image
	if xf := l.Transform.Transform(); !xf.IsIdentity() {
		placed = image.NewRGBA(dst.Bounds())
		c.Interp.Transform(placed, xf.Aff3(), l.Image, l.Image.Bounds(), xdraw.Src, nil)
	}

	if l.BlendMode == BlendNormal && l.Opacity >= 1 {
		xdraw.Draw(dst, dst.Bounds(), placed, image.Point{}, xdraw.Over)
		return
	}

	area := dst.Bounds().Intersect(placed.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dst.Set(x, y, blend(dst.At(x, y), placed.At(x, y), l.BlendMode, l.Opacity))
		}
	}
}

// blend performs the blend operation between two colors.
func blend(dst, src color.Color, mode BlendMode, opacity float64) color.Color {
	sr, sg, sb, sa := src.RGBA()
	dr, dg, db, da := dst.RGBA()
	if sa == 0 {
		return dst
	}

	// un-premultiply to 0-1 range
	sf := [4]float64{float64(sr) / float64(sa), float64(sg) / float64(sa), float64(sb) / float64(sa), float64(sa) / 65535.0}
	df := [4]float64{}
	if da > 0 {
		df = [4]float64{float64(dr) / float64(da), float64(dg) / float64(da), float64(db) / float64(da), float64(da) / 65535.0}
	}

	var rf [3]float64
	switch mode {
	case BlendMultiply:
		for i := 0; i < 3; i++ {
			rf[i] = sf[i] * df[i]
		}
	case BlendScreen:
		for i := 0; i < 3; i++ {
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		}
	case BlendOverlay:
		for i := 0; i < 3; i++ {
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		}
	case BlendDifference:
		for i := 0; i < 3; i++ {
			rf[i] = math.Abs(sf[i] - df[i])
		}
	default:
		copy(rf[:], sf[:3])
	}

	alpha := sf[3] * opacity
	outA := alpha + df[3]*(1-alpha)
	if outA == 0 {
		return color.Transparent
	}
	channel := func(i int) uint8 {
		v := (rf[i]*alpha + df[i]*df[3]*(1-alpha)) / outA
		return uint8(clamp(v, 0, 1)*255 + 0.5)
	}
	return color.NRGBA{R: channel(0), G: channel(1), B: channel(2), A: uint8(clamp(outA, 0, 1)*255 + 0.5)}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
