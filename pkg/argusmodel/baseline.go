package argusmodel

import "time"

// Baseline is a per-metric rolling statistical profile computed over a
// 7-day window, requiring at least 10 samples.
type Baseline struct {
	MetricName  string
	Mean        float64
	StdDev      float64
	P50         float64
	P95         float64
	P99         float64
	SampleCount int
	AsOf        time.Time
}
