package game

import "math"

// ClampX keeps a player center inside the horizontal stage bounds.
func ClampX(x float64) float64 {
	if x < PlayerRadius {
		return PlayerRadius
	}
	if x > StageWidth-PlayerRadius {
		return StageWidth - PlayerRadius
	}
	return x
}

// restingY is the center height of a player standing on the platform.
func restingY(pf Platform) float64 {
	return pf.Y - PlayerRadius
}

// overPlatform reports whether x is within the platform's horizontal span,
// inclusive of player radius padding.
func overPlatform(pf Platform, x float64) bool {
	return x >= pf.X-PlayerRadius && x <= pf.X+pf.Width+PlayerRadius
}

// Grounded reports whether a player centered at (x, y) is standing on the
// floor or on a platform top. Positions are snapped on landing, so a small
// tolerance is enough.
func Grounded(x, y float64) bool {
	if y >= GroundY {
		return true
	}
	for _, pf := range DefaultPlatforms {
		if overPlatform(pf, x) && math.Abs(y-restingY(pf)) < 0.5 {
			return true
		}
	}
	return false
}

// landingSurface returns the resting height of the first surface a player
// falling from oldY to newY crosses this tick, if any. Platforms are
// one-way: rising players pass through.
func landingSurface(x, oldY, newY float64) (float64, bool) {
	if newY >= GroundY {
		return GroundY, true
	}
	for _, pf := range DefaultPlatforms {
		rest := restingY(pf)
		if overPlatform(pf, x) && oldY <= rest && newY >= rest {
			return rest, true
		}
	}
	return 0, false
}
