// Package staging prepares selection, mask and sketch pixels for a
// generation backend and maps generated images back onto the selection.
package staging

import (
	"fmt"
	"image"
	"sort"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Resampling policy names accepted by LookupPolicy.
const (
	PolicyNearest        = "nearest"
	PolicyApproxBiLinear = "approx-bilinear"
	PolicyBiLinear       = "bilinear"
	PolicyCatmullRom     = "catmull-rom"
)

var (
	policyMu sync.RWMutex
	policies = map[string]xdraw.Scaler{
		PolicyNearest:        xdraw.NearestNeighbor,
		PolicyApproxBiLinear: xdraw.ApproxBiLinear,
		PolicyBiLinear:       xdraw.BiLinear,
		PolicyCatmullRom:     xdraw.CatmullRom,
	}
)

// RegisterPolicy adds or replaces a named resampler.
func RegisterPolicy(name string, s xdraw.Scaler) {
	policyMu.Lock()
	defer policyMu.Unlock()
	policies[name] = s
}

// LookupPolicy returns the resampler registered under name.
func LookupPolicy(name string) (xdraw.Scaler, error) {
	policyMu.RLock()
	defer policyMu.RUnlock()
	s, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown resampling policy %q (have %v)", name, policyNamesLocked())
	}
	return s, nil
}

// PolicyNames lists the registered policies, sorted.
func PolicyNames() []string {
	policyMu.RLock()
	defer policyMu.RUnlock()
	return policyNamesLocked()
}

func policyNamesLocked() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resize scales img to w x h. The image is returned unchanged when it already
// has that size. up is used when either dimension grows, down otherwise.
func Resize(img image.Image, w, h int, up, down xdraw.Scaler) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	if dst.Bounds().Empty() || b.Empty() {
		return dst
	}
	scaler := down
	if w > b.Dx() || h > b.Dy() {
		scaler = up
	}
	scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// crop copies r out of img into a new image anchored at (0, 0).
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, r.Min, xdraw.Src)
	return dst
}

// paste returns a copy of base with img drawn at r.
func paste(base, img image.Image, r image.Rectangle) *image.RGBA {
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), base, b.Min, xdraw.Src)
	xdraw.Draw(dst, r, img, img.Bounds().Min, xdraw.Src)
	return dst
}
