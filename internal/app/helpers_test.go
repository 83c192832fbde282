package app

import "intrapaint/pkg/geometry"

func transformPoint(x, y float64) geometry.Point2D {
	return geometry.Point2D{X: x, Y: y}
}
