// Package lttb implements Largest-Triangle-Three-Buckets downsampling,
// grounded on the teacher repo's internal/monitoring lttb helper. The
// dashboard query path (spec §4.6 rendering) uses it to reduce a
// metric series to a target point count while preserving visual
// features (peaks, valleys) that naive decimation would smooth away.
package lttb

import "time"

// Point is one sample in a time series.
type Point struct {
	Value     float64
	Timestamp time.Time
}

// Downsample reduces data to at most target points using the
// Largest-Triangle-Three-Buckets algorithm. If len(data) <= target or
// target < 3, data is returned unchanged since there is nothing
// meaningful to downsample to.
func Downsample(data []Point, target int) []Point {
	if target < 3 || len(data) <= target {
		return data
	}

	out := make([]Point, 0, target)
	out = append(out, data[0])

	// Bucket size for the inner points (excludes the fixed first/last).
	bucketSize := float64(len(data)-2) / float64(target-2)

	anchor := 0
	for i := 0; i < target-2; i++ {
		bucketStart := int(float64(i)*bucketSize) + 1
		bucketEnd := int(float64(i+1)*bucketSize) + 1
		if bucketEnd > len(data)-1 {
			bucketEnd = len(data) - 1
		}

		nextStart := int(float64(i+1)*bucketSize) + 1
		nextEnd := int(float64(i+2)*bucketSize) + 1
		if nextEnd > len(data) {
			nextEnd = len(data)
		}
		if nextStart >= len(data) {
			nextStart = len(data) - 1
		}
		avgX, avgY := average(data[nextStart:nextEnd])

		maxArea := -1.0
		maxIdx := bucketStart
		ax, ay := timeToFloat(data[anchor].Timestamp), data[anchor].Value
		for j := bucketStart; j < bucketEnd; j++ {
			area := triangleArea(ax, ay, timeToFloat(data[j].Timestamp), data[j].Value, avgX, avgY)
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}

		out = append(out, data[maxIdx])
		anchor = maxIdx
	}

	out = append(out, data[len(data)-1])
	return out
}

func average(pts []Point) (float64, float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	var sumX, sumY float64
	for _, p := range pts {
		sumX += timeToFloat(p.Timestamp)
		sumY += p.Value
	}
	n := float64(len(pts))
	return sumX / n, sumY / n
}

func triangleArea(ax, ay, bx, by, cx, cy float64) float64 {
	return abs((ax-cx)*(by-ay)-(ax-bx)*(cy-ay)) / 2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano())
}
