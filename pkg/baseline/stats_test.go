package baseline

import "testing"

func TestMeanStdDev(t *testing.T) {
	mean, stddev := meanStdDev([]float64{10, 20, 30, 40, 50})
	if mean != 30 {
		t.Fatalf("expected mean 30, got %v", mean)
	}
	if stddev < 14.1 || stddev > 14.2 {
		t.Fatalf("expected stddev ~14.14, got %v", stddev)
	}
}

func TestMeanStdDev_Empty(t *testing.T) {
	mean, stddev := meanStdDev(nil)
	if mean != 0 || stddev != 0 {
		t.Fatalf("expected zero values for empty input, got mean=%v stddev=%v", mean, stddev)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if p := percentile(values, 0.5); p < 5.4 || p > 5.6 {
		t.Fatalf("expected p50 ~5.5, got %v", p)
	}
	if p := percentile(values, 0); p != 1 {
		t.Fatalf("expected p0 == min == 1, got %v", p)
	}
	if p := percentile(values, 1); p != 10 {
		t.Fatalf("expected p100 == max == 10, got %v", p)
	}
}

func TestPercentile_SingleValue(t *testing.T) {
	if p := percentile([]float64{42}, 0.95); p != 42 {
		t.Fatalf("expected 42, got %v", p)
	}
}
