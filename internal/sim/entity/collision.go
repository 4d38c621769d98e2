package entity

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"roomsync.ai/internal/sim/catalogs"
)

type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Overlaps reports whether the boxes intersect. Touching faces count as overlap.
func (a AABB) Overlaps(b AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

func boxBounds(box catalogs.BoxDef, pos mgl64.Vec3, rot mgl64.Quat) AABB {
	c := mgl64.Vec3(box.Center)
	h := mgl64.Vec3(box.HalfExtents)
	out := AABB{
		Min: mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i < 8; i++ {
		corner := mgl64.Vec3{h[0], h[1], h[2]}
		if i&1 != 0 {
			corner[0] = -corner[0]
		}
		if i&2 != 0 {
			corner[1] = -corner[1]
		}
		if i&4 != 0 {
			corner[2] = -corner[2]
		}
		w := rot.Rotate(c.Add(corner)).Add(pos)
		for k := 0; k < 3; k++ {
			out.Min[k] = math.Min(out.Min[k], w[k])
			out.Max[k] = math.Max(out.Max[k], w[k])
		}
	}
	return out
}
