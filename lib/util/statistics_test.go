package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", s.Mean)
	}
	if s.StdDeviation != 2 {
		t.Errorf("Expected std deviation 2, got %f", s.StdDeviation)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Expected min 2 and max 9, got %f and %f", s.Min, s.Max)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("Expected zero stats for no values, got %+v", empty)
	}
}

func TestDistributionBalance(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10})
	if math.Abs(even.Balance-1) > 1e-9 {
		t.Errorf("Expected balance 1 for even distribution, got %f", even.Balance)
	}
	skewed := NewDistributionStats([]float64{1, 100})
	if skewed.Balance >= even.Balance {
		t.Errorf("Expected skewed balance below %f, got %f", even.Balance, skewed.Balance)
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.Percentile(50) != 0 || h.Average() != 0 {
		t.Error("Expected zero estimates for empty histogram")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(10)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(1000)
	}

	if h.Count() != 100 {
		t.Errorf("Expected 100 samples, got %d", h.Count())
	}
	if h.Total() != 90*10+10*1000 {
		t.Errorf("Expected total %d, got %d", 90*10+10*1000, h.Total())
	}
	if got := h.Percentile(50); got != 8 {
		t.Errorf("Expected median estimate 8, got %d", got)
	}
	if got := h.Percentile(99); got != (256+1024)/2 {
		t.Errorf("Expected p99 estimate %d, got %d", (256+1024)/2, got)
	}

	bounds, shares := h.Distribution()
	if len(shares) != len(bounds)+1 {
		t.Errorf("Expected one share per bucket plus overflow, got %d shares for %d bounds", len(shares), len(bounds))
	}
	if shares[0] != 90 {
		t.Errorf("Expected 90%% in first bucket, got %f", shares[0])
	}
}
