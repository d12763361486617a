package cognitive

import (
	"math"
	"testing"

	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/feature"
)

func ratioSet(thetaAlpha, betaAlpha, alphaBeta, alphaPower, betaPower, thetaPower float64) feature.Set {
	return feature.Set{
		BandPower: map[string][]float64{
			"alpha": {alphaPower},
			"beta":  {betaPower},
			"theta": {thetaPower},
		},
		Ratio: map[string][]float64{
			"theta_alpha": {thetaAlpha},
			"beta_alpha":  {betaAlpha},
			"alpha_beta":  {alphaBeta},
		},
	}
}

func TestAnalyzeEmptyFeaturesIsUnknown(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	result := a.Analyze(feature.Set{}, 1.0)
	if result.State != StateUnknown || result.Confidence != 0.0 {
		t.Fatalf("expected unknown/0 for empty features, got %+v", result)
	}
}

func TestAnalyzeLowQualityIsUnknown(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	result := a.Analyze(ratioSet(1.8, 1.0, 1.0, 1.0, 1.0, 1.0), 0.1)
	if result.State != StateUnknown {
		t.Fatalf("expected unknown below the quality gate, got %+v", result)
	}
}

// theta_alpha=1.8, beta_alpha=1.0, alpha_beta=1.0, quality 1.0, neutral
// baseline -> state=fatigue, confidence = min(0.5+(1.8-1.4)*0.5,1.0)*1.0
// = 0.70.
func TestAnalyzeFatigueDominance(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	result := a.Analyze(ratioSet(1.8, 1.0, 1.0, 1.0, 1.0, 1.0), 1.0)
	if result.State != StateFatigue {
		t.Fatalf("expected fatigue, got %s", result.State)
	}
	want := 0.70
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %.2f, got %v", want, result.Confidence)
	}
}

func TestCalibrationCompletesAtFiveSamples(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	a.StartCalibration()
	for i := 0; i < 4; i++ {
		if done := a.AddCalibrationSample(ratioSet(1.0, 1.0, 1.0, 1.0, 1.0, 1.0)); done {
			t.Fatalf("calibration completed early at sample %d", i)
		}
	}
	if !a.AddCalibrationSample(ratioSet(1.0, 1.0, 1.0, 1.0, 1.0, 1.0)) {
		t.Fatalf("expected calibration to complete at the 5th sample")
	}
	if !a.calibrated {
		t.Fatalf("expected calibrated flag set")
	}
}

func TestCalibrationClampsNearZeroBaseline(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	a.StartCalibration()
	for i := 0; i < 5; i++ {
		a.AddCalibrationSample(ratioSet(0.001, 0.001, 0.001, 0.001, 0.001, 0.001))
	}
	for _, key := range baselineKeys {
		if a.baseline[key] < 0.01 {
			t.Fatalf("expected baseline[%s] clamped to >= 0.01, got %v", key, a.baseline[key])
		}
	}
}

func TestStateTotalityAlwaysReturnsAKnownLabel(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	cases := [][6]float64{
		{1.8, 1.0, 1.0, 1.0, 1.0, 1.0},
		{0.5, 2.5, 1.0, 1.0, 1.0, 1.0},
		{0.5, 1.5, 1.0, 1.0, 1.0, 1.0},
		{0.5, 1.0, 2.0, 1.0, 1.0, 1.0},
		{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
	}
	valid := map[State]bool{
		StateFatigue: true, StateStress: true, StateFocused: true,
		StateRelaxed: true, StateNormal: true,
	}
	for _, c := range cases {
		result := a.Analyze(ratioSet(c[0], c[1], c[2], c[3], c[4], c[5]), 1.0)
		if !valid[result.State] {
			t.Fatalf("unexpected state %s for inputs %v", result.State, c)
		}
	}
}

func TestMajorityVoteStabilizesAgainstSingleFlicker(t *testing.T) {
	a := New(config.DefaultAnalyzerConfig())
	// Two relaxed calls establish a majority; a single differing
	// (focused-like) call should not flip the reported state.
	a.Analyze(ratioSet(0.5, 0.5, 2.0, 1.0, 1.0, 1.0), 1.0)
	a.Analyze(ratioSet(0.5, 0.5, 2.0, 1.0, 1.0, 1.0), 1.0)
	result := a.Analyze(ratioSet(1.0, 1.5, 0.67, 1.0, 1.0, 1.0), 1.0)
	if result.State != StateRelaxed {
		t.Fatalf("expected relaxed to persist by majority vote, got %s", result.State)
	}
}
