package routes

import "math"

// Bounds is the minimal enclosing bounding box of a route geometry, used to
// fit a map viewport around the line.
type Bounds struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// LineBounds computes the bounding box over all (lng, lat) points in the
// geometry. Callers must not pass an empty geometry.
func LineBounds(geometry [][2]float64) Bounds {
	b := Bounds{
		MinLng: math.Inf(1), MinLat: math.Inf(1),
		MaxLng: math.Inf(-1), MaxLat: math.Inf(-1),
	}
	for _, p := range geometry {
		b.MinLng = math.Min(b.MinLng, p[0])
		b.MinLat = math.Min(b.MinLat, p[1])
		b.MaxLng = math.Max(b.MaxLng, p[0])
		b.MaxLat = math.Max(b.MaxLat, p[1])
	}
	return b
}
