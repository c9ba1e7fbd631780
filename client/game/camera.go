package game

type Camera struct {
	X float64
	Y float64
}

// Follow moves the camera exponentially toward the target and clamps
// it so the viewport never shows outside the map bounds.
func (c Camera) Follow(targetX, targetY, viewW, viewH float64, lerp float64) Camera {
	cx := c.X + (targetX-c.X)*lerp
	cy := c.Y + (targetY-c.Y)*lerp

	return Camera{
		X: clamp(cx, viewW/2, max(viewW/2, MapWidth-viewW/2)),
		Y: clamp(cy, viewH/2, max(viewH/2, MapHeight-viewH/2)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
