package staging

import (
	"image"
	"image/color"
)

// MaskHasContent reports whether any pixel of mask is not fully transparent.
// For *image.Gray masks, black counts as transparent.
func MaskHasContent(mask image.Image) bool {
	if mask == nil {
		return false
	}
	_, ok := contentBounds(mask)
	return ok
}

// contentBounds returns the tight bounds of non-transparent pixels.
func contentBounds(mask image.Image) (image.Rectangle, bool) {
	b := mask.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if alphaAt(mask, x, y) == 0 {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func alphaAt(img image.Image, x, y int) uint8 {
	switch m := img.(type) {
	case *image.Alpha:
		return m.AlphaAt(x, y).A
	case *image.NRGBA:
		return m.NRGBAAt(x, y).A
	case *image.RGBA:
		return m.RGBAAt(x, y).A
	case *image.Gray:
		// Binary masks mark the masked area in white.
		return m.GrayAt(x, y).Y
	default:
		_, _, _, a := img.At(x, y).RGBA()
		return uint8(a >> 8)
	}
}

// GenerationBounds returns the area of mask that a backend should see: the
// tight bounds of painted pixels, grown by padding, then widened or heightened
// to the mask's own aspect ratio. Growth that would cross an edge is moved to
// the opposite side. ok is false for an empty mask.
func GenerationBounds(mask image.Image, padding int) (r image.Rectangle, ok bool) {
	if mask == nil {
		return image.Rectangle{}, false
	}
	tight, ok := contentBounds(mask)
	if !ok {
		return image.Rectangle{}, false
	}
	full := mask.Bounds()
	left := max(full.Min.X, tight.Min.X-padding)
	top := max(full.Min.Y, tight.Min.Y-padding)
	right := min(full.Max.X, tight.Max.X+padding)
	bottom := min(full.Max.Y, tight.Max.Y+padding)
	width, height := right-left, bottom-top

	imageRatio := float64(full.Dx()) / float64(full.Dy())
	boundsRatio := float64(width) / float64(height)

	if imageRatio > boundsRatio {
		add := max(0, int(imageRatio*float64(height))-width)
		before, after := distribute(add, left-full.Min.X, full.Max.X-right)
		left -= before
		right += after
	} else {
		add := max(0, int(float64(width)/imageRatio)-height)
		before, after := distribute(add, top-full.Min.Y, full.Max.Y-bottom)
		top -= before
		bottom += after
	}
	return image.Rect(left, top, right, bottom), true
}

// distribute splits add between two sides with roomBefore and roomAfter
// available, half to each where possible.
func distribute(add, roomBefore, roomAfter int) (before, after int) {
	before = min(roomBefore, add/2)
	add -= before
	after = min(roomAfter, add)
	add -= after
	if add > 0 {
		before = min(roomBefore, before+add)
	}
	return before, after
}

// BinaryMask converts a painted mask to the white-on-black form backends
// expect: white where any paint exists.
func BinaryMask(mask image.Image) *image.Gray {
	b := mask.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if alphaAt(mask, x, y) > 0 {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return out
}
