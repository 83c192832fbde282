package staging

// DefaultStride is the dimension multiple most diffusion models require.
const DefaultStride = 64

// QuantizeDimension rounds v+1 down to a multiple of stride, never going
// below one stride. 130 becomes 128; 20 becomes 64.
func QuantizeDimension(v, stride int) int {
	if stride <= 0 {
		stride = DefaultStride
	}
	n := v + 1
	return max(stride, n-n%stride)
}

// ScaleToEditSize scales w x h so the larger side is close to maxDim,
// keeping the aspect ratio as well as stride quantization allows.
func ScaleToEditSize(w, h, maxDim, stride int) (int, int) {
	largest := max(w, h)
	if largest <= 0 || maxDim <= 0 {
		return QuantizeDimension(0, stride), QuantizeDimension(0, stride)
	}
	scale := float64(maxDim) / float64(largest)
	return QuantizeDimension(int(float64(w)*scale), stride),
		QuantizeDimension(int(float64(h)*scale), stride)
}
