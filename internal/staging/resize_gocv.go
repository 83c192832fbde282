//go:build gocv

package staging

import (
	"image"

	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"
)

// OpenCV resamplers, available when built with -tags gocv.
const (
	PolicyCVArea    = "cv-area"
	PolicyCVCubic   = "cv-cubic"
	PolicyCVLanczos = "cv-lanczos"
)

func init() {
	RegisterPolicy(PolicyCVArea, cvScaler{interp: gocv.InterpolationArea})
	RegisterPolicy(PolicyCVCubic, cvScaler{interp: gocv.InterpolationCubic})
	RegisterPolicy(PolicyCVLanczos, cvScaler{interp: gocv.InterpolationLanczos4})
}

// cvScaler adapts gocv.Resize to the x/image/draw Scaler interface. It falls
// back to Catmull-Rom if the Mat conversion fails.
type cvScaler struct {
	interp gocv.InterpolationFlags
}

func (s cvScaler) Scale(dst xdraw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle, op xdraw.Op, opts *xdraw.Options) {
	rgba := image.NewRGBA(image.Rect(0, 0, sr.Dx(), sr.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), src, sr.Min, xdraw.Src)

	mat, err := gocv.NewMatFromBytes(sr.Dy(), sr.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		xdraw.CatmullRom.Scale(dst, dr, src, sr, op, opts)
		return
	}
	defer mat.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Point{X: dr.Dx(), Y: dr.Dy()}, 0, 0, s.interp)

	out := image.NewRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	copy(out.Pix, resized.ToBytes())
	xdraw.Draw(dst, dr, out, image.Point{}, op)
}
