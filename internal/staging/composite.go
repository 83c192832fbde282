package staging

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// CompositeSketch draws sketch over base with alpha blending. When hasSketch
// is false, or there is no sketch, base is returned as is. The sketch is
// expected to match the size of base.
func CompositeSketch(base, sketch image.Image, hasSketch bool) image.Image {
	if !hasSketch || sketch == nil {
		return base
	}
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), base, b.Min, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), sketch, sketch.Bounds().Min, xdraw.Over)
	return dst
}

// RestoreUnmasked keeps generated pixels only where mask is painted and the
// original everywhere else. A positive feather radius softens the mask edge
// with a box blur. All three images must have the same size.
func RestoreUnmasked(original, generated, mask image.Image, feather int) *image.RGBA {
	ob := original.Bounds()
	gb := generated.Bounds()
	w, h := ob.Dx(), ob.Dy()
	alpha := maskAlpha(mask, w, h)
	if feather > 0 {
		alpha = boxBlur(alpha, feather)
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint32(alpha.Pix[y*alpha.Stride+x])
			or, og, obl, oa := original.At(ob.Min.X+x, ob.Min.Y+y).RGBA()
			gr, gg, gbl, ga := generated.At(gb.Min.X+x, gb.Min.Y+y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: mix(or, gr, a),
				G: mix(og, gg, a),
				B: mix(obl, gbl, a),
				A: mix(oa, ga, a),
			})
		}
	}
	return out
}

// mix blends two 16-bit channels by an 8-bit weight toward b.
func mix(a, b, weight uint32) uint8 {
	v := (a*(255-weight) + b*weight) / 255
	return uint8(v >> 8)
}

// MaskPlane returns the coverage of mask as an alpha plane anchored at
// (0, 0), reading gray masks by luminance.
func MaskPlane(mask image.Image) *image.Alpha {
	if mask == nil {
		return image.NewAlpha(image.Rectangle{})
	}
	b := mask.Bounds()
	return maskAlpha(mask, b.Dx(), b.Dy())
}

func maskAlpha(mask image.Image, w, h int) *image.Alpha {
	out := image.NewAlpha(image.Rect(0, 0, w, h))
	if mask == nil {
		return out
	}
	mb := mask.Bounds()
	for y := 0; y < min(h, mb.Dy()); y++ {
		for x := 0; x < min(w, mb.Dx()); x++ {
			out.Pix[y*out.Stride+x] = alphaAt(mask, mb.Min.X+x, mb.Min.Y+y)
		}
	}
	return out
}

// boxBlur is a separable box blur on an alpha plane.
func boxBlur(src *image.Alpha, radius int) *image.Alpha {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]uint8, w*h)
	out := image.NewAlpha(b)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for k := max(0, x-radius); k <= min(w-1, x+radius); k++ {
				sum += int(src.Pix[y*src.Stride+k])
				n++
			}
			tmp[y*w+x] = uint8(sum / n)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for k := max(0, y-radius); k <= min(h-1, y+radius); k++ {
				sum += int(tmp[k*w+x])
				n++
			}
			out.Pix[y*out.Stride+x] = uint8(sum / n)
		}
	}
	return out
}
