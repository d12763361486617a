package feature

import (
	"math"
	"testing"

	"github.com/linuxmatters/eegmonitor/internal/config"
)

func TestExtractEmptyFrameReturnsEmptySet(t *testing.T) {
	set := Extract(nil, config.DefaultFeatureConfig(256))
	if set.BandPower != nil || set.Ratio != nil {
		t.Fatalf("expected zero-value Set for empty frame, got %+v", set)
	}
}

func TestExtractProducesAllBandsAndRatios(t *testing.T) {
	const n, ch = 1024, 2
	data := make([][]float64, n)
	for i := range data {
		data[i] = make([]float64, ch)
		for c := 0; c < ch; c++ {
			data[i][c] = math.Sin(2 * math.Pi * 10 * float64(i) / 256)
		}
	}
	set := Extract(data, config.DefaultFeatureConfig(256))

	for _, name := range []string{"delta", "theta", "alpha", "beta", "gamma"} {
		if _, ok := set.BandPower[name]; !ok {
			t.Fatalf("missing band %q", name)
		}
		if len(set.BandPower[name]) != ch {
			t.Fatalf("band %q: expected %d channels, got %d", name, ch, len(set.BandPower[name]))
		}
	}
	for _, name := range []string{"theta_alpha", "beta_alpha", "alpha_beta"} {
		if _, ok := set.Ratio[name]; !ok {
			t.Fatalf("missing ratio %q", name)
		}
	}
}

func TestExtractConcentratesPowerInAlphaForTenHzTone(t *testing.T) {
	const n, ch = 2048, 1
	data := make([][]float64, n)
	for i := range data {
		data[i] = []float64{math.Sin(2 * math.Pi * 10 * float64(i) / 256)}
	}
	set := Extract(data, config.DefaultFeatureConfig(256))

	alpha := set.BandPower["alpha"][0]
	delta := set.BandPower["delta"][0]
	if alpha <= delta {
		t.Fatalf("expected a 10Hz tone to concentrate power in alpha over delta: alpha=%v delta=%v", alpha, delta)
	}
}

func TestRatiosAvoidDivisionByZero(t *testing.T) {
	bandPower := map[string][]float64{
		"theta": {0}, "alpha": {0}, "beta": {0}, "delta": {0}, "gamma": {0},
	}
	ratios := computeRatios(bandPower)
	for name, vals := range ratios {
		if math.IsNaN(vals[0]) || math.IsInf(vals[0], 0) {
			t.Fatalf("ratio %q produced non-finite value from all-zero bands: %v", name, vals[0])
		}
	}
}
