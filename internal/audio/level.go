package audio

import "math"

// MinDB is the floor used when converting levels to decibels.
const MinDB = -60.0

// MeanLevel returns the arithmetic mean of bins divided by 255. An empty
// buffer yields 0.
func MeanLevel(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

// LevelToDB converts a normalized level to dB, floored at MinDB.
func LevelToDB(level float64) float64 {
	if level <= 0 {
		return MinDB
	}
	return max(20*math.Log10(level), MinDB)
}
