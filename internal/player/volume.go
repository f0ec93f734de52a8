package player

import "math"

// ClampVolume limits a volume level to [0, 100].
func ClampVolume(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// levelToVolume converts a 0-100 level to beep's Volume value.
// beep uses a logarithmic scale where Volume is in "decibels" with base 2.
// Volume = 0 means no change, -1 = half volume, -2 = quarter, etc.
// We map: 100 -> 0, 50 -> -1, 25 -> -2, 0 -> silent
func levelToVolume(level int) (volume float64, silent bool) {
	level = ClampVolume(level)
	if level == 0 {
		return 0, true
	}
	return math.Log2(float64(level) / 100), false
}
