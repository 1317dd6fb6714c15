package util

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count in the largest unit that keeps the value
// at or above one, with up to three decimals and trailing zeros trimmed.
func FormatSize(size int64) string {
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	value = math.Floor(value*1000) / 1000
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[unit]
}
