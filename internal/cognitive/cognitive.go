// Package cognitive scores a feature set into a cognitive state: fatigue,
// stress, focused, relaxed, or normal. It carries baseline calibration,
// temporal smoothing, and majority-vote state stabilization across calls.
// An Analyzer is stateful and single-owner: it is not safe for concurrent
// use by more than one session.
package cognitive

import (
	"math"
	"sort"

	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/feature"
)

// State is one of the five cognitive labels, or Unknown when the analyzer
// is given an empty feature set or a signal below the quality gate.
type State string

const (
	StateUnknown State = "unknown"
	StateFatigue State = "fatigue"
	StateStress  State = "stress"
	StateFocused State = "focused"
	StateRelaxed State = "relaxed"
	StateNormal  State = "normal"
)

// thresholds holds the relative cutoffs applied after baseline
// normalization.
type thresholds struct {
	fatigueThetaAlphaMin float64
	stressBetaAlphaMin   float64
	stressThetaAlphaMax  float64
	stressVariabilityMin float64
	focusedBetaAlphaMin  float64
	focusedBetaAlphaMax  float64
	focusedThetaAlphaMax float64
	focusedStabilityMin  float64
	relaxedAlphaBetaMin  float64
	relaxedThetaAlphaMax float64
}

var defaultThresholds = thresholds{
	fatigueThetaAlphaMin: 1.4,
	stressBetaAlphaMin:   1.8,
	stressThetaAlphaMax:  1.2,
	stressVariabilityMin: 0.15,
	focusedBetaAlphaMin:  1.2,
	focusedBetaAlphaMax:  1.8,
	focusedThetaAlphaMax: 1.3,
	focusedStabilityMin:  0.7,
	relaxedAlphaBetaMin:  1.3,
	relaxedThetaAlphaMax: 1.2,
}

var baselineKeys = []string{"theta_alpha", "beta_alpha", "alpha_beta", "alpha_power", "beta_power", "theta_power"}

// Result is the outcome of one Analyze call.
type Result struct {
	State       State
	Confidence  float64
	Metrics     map[string]float64 // theta_alpha, beta_alpha, alpha_beta (smoothed, normalized)
	Scores      map[string]float64 // per-state scores before selection
	Quality     float64
	Variability float64
	Stability   float64
	Calibrated  bool
}

// Analyzer holds calibration state, ratio history for smoothing, and state
// history for majority-vote stabilization across successive frames of one
// session.
type Analyzer struct {
	cfg        config.AnalyzerConfig
	thresholds thresholds

	baseline   map[string]float64
	calibrated bool

	calibrating bool
	calibration []map[string]float64

	ratioHistory map[string][]float64 // bounded to cfg.HistorySize, FIFO
	stateHistory []State              // bounded to cfg.HistorySize, FIFO

	variabilityHistory []float64 // bounded to cfg.VariabilityWindow, FIFO
}

// New constructs an Analyzer with a neutral (all-1.0) baseline, usable
// before any calibration has run.
func New(cfg config.AnalyzerConfig) *Analyzer {
	baseline := make(map[string]float64, len(baselineKeys))
	for _, k := range baselineKeys {
		baseline[k] = 1.0
	}
	return &Analyzer{
		cfg:          cfg,
		thresholds:   defaultThresholds,
		baseline:     baseline,
		ratioHistory: map[string][]float64{"theta_alpha": nil, "beta_alpha": nil, "alpha_beta": nil},
	}
}

// StartCalibration clears the calibration buffer and begins collecting
// samples.
func (a *Analyzer) StartCalibration() {
	a.calibration = nil
	a.calibrating = true
}

// AddCalibrationSample contributes the channel-mean of one feature set to
// the active calibration, finalizing the baseline once at least
// CalibrationMinSamples have been collected. Returns true exactly when
// calibration completes on this call.
func (a *Analyzer) AddCalibrationSample(set feature.Set) bool {
	if !a.calibrating {
		return false
	}
	if set.BandPower == nil && set.Ratio == nil {
		return false
	}

	sample := map[string]float64{
		"theta_alpha": meanOrDefault(set.Ratio["theta_alpha"], 1.0),
		"beta_alpha":  meanOrDefault(set.Ratio["beta_alpha"], 1.0),
		"alpha_beta":  meanOrDefault(set.Ratio["alpha_beta"], 1.0),
		"alpha_power": meanOrDefault(set.BandPower["alpha"], 1.0),
		"beta_power":  meanOrDefault(set.BandPower["beta"], 1.0),
		"theta_power": meanOrDefault(set.BandPower["theta"], 1.0),
	}
	a.calibration = append(a.calibration, sample)

	if len(a.calibration) >= a.cfg.CalibrationMinSamples {
		a.finalizeCalibration()
		return true
	}
	return false
}

// finalizeCalibration sets the baseline to the elementwise median of the
// collected samples, clamping values below 0.01 up to 1.0.
func (a *Analyzer) finalizeCalibration() {
	if len(a.calibration) == 0 {
		return
	}
	for _, key := range baselineKeys {
		values := make([]float64, len(a.calibration))
		for i, s := range a.calibration {
			values[i] = s[key]
		}
		median := medianOf(values)
		if median < 0.01 {
			median = 1.0
		}
		a.baseline[key] = median
	}
	a.calibrated = true
	a.calibrating = false
}

// Analyze scores one feature set into a Result. An empty feature set or a
// quality below the analyzer's gate short-circuits to StateUnknown with
// zero confidence.
func (a *Analyzer) Analyze(set feature.Set, quality float64) Result {
	if (set.BandPower == nil && set.Ratio == nil) || quality < a.cfg.QualityGate {
		return Result{
			State:      StateUnknown,
			Confidence: 0.0,
			Metrics:    map[string]float64{"theta_alpha": 0, "beta_alpha": 0, "alpha_beta": 0},
			Scores:     map[string]float64{},
			Quality:    quality,
		}
	}

	metrics := a.normalizeByBaseline(set)
	metrics = a.applyTemporalSmoothing(metrics)

	variability := a.computeVariability(metrics["beta_alpha"])
	stability := a.computeStability()

	scores := a.computeStateScores(metrics, variability, stability)
	state, confidence := a.selectState(scores)
	confidence *= quality

	return Result{
		State:      state,
		Confidence: confidence,
		Metrics: map[string]float64{
			"theta_alpha": metrics["theta_alpha"],
			"beta_alpha":  metrics["beta_alpha"],
			"alpha_beta":  metrics["alpha_beta"],
		},
		Scores:      scores,
		Quality:     quality,
		Variability: variability,
		Stability:   stability,
		Calibrated:  a.calibrated,
	}
}

// normalizeByBaseline divides the channel-mean of each ratio by the
// corresponding baseline.
func (a *Analyzer) normalizeByBaseline(set feature.Set) map[string]float64 {
	normalized := make(map[string]float64, 6)
	for _, key := range []string{"theta_alpha", "beta_alpha", "alpha_beta"} {
		raw := meanOrDefault(set.Ratio[key], 1.0)
		baseline := a.baseline[key]
		if baseline > 0 {
			normalized[key] = raw / baseline
		} else {
			normalized[key] = raw
		}
	}
	for _, band := range []string{"alpha", "beta", "theta"} {
		normalized[band+"_power"] = meanOrDefault(set.BandPower[band], 0.0)
	}
	return normalized
}

// applyTemporalSmoothing pushes each ratio into its bounded history and
// returns the running median.
func (a *Analyzer) applyTemporalSmoothing(metrics map[string]float64) map[string]float64 {
	smoothed := make(map[string]float64, 6)
	for _, key := range []string{"theta_alpha", "beta_alpha", "alpha_beta"} {
		a.ratioHistory[key] = pushBounded(a.ratioHistory[key], metrics[key], a.cfg.HistorySize)
		smoothed[key] = medianOf(a.ratioHistory[key])
	}
	for _, key := range []string{"alpha_power", "beta_power", "theta_power"} {
		smoothed[key] = metrics[key]
	}
	return smoothed
}

// computeVariability returns the standard deviation of the last (up to
// cfg.VariabilityWindow) beta_alpha values, or 0 until at least 3 samples
// have accumulated.
func (a *Analyzer) computeVariability(betaAlpha float64) float64 {
	a.variabilityHistory = pushBounded(a.variabilityHistory, betaAlpha, a.cfg.VariabilityWindow)
	if len(a.variabilityHistory) < 3 {
		return 0.0
	}
	return stdDev(a.variabilityHistory)
}

// computeStability returns 1.0 minus the fraction of adjacent state
// transitions in the bounded state history, or 0.5 until at least 3
// states have accumulated.
func (a *Analyzer) computeStability() float64 {
	if len(a.stateHistory) < 3 {
		return 0.5
	}
	changes := 0
	for i := 1; i < len(a.stateHistory); i++ {
		if a.stateHistory[i] != a.stateHistory[i-1] {
			changes++
		}
	}
	maxChanges := len(a.stateHistory) - 1
	if maxChanges <= 0 {
		return 1.0
	}
	return 1.0 - float64(changes)/float64(maxChanges)
}

// computeStateScores computes the five per-state scores.
func (a *Analyzer) computeStateScores(metrics map[string]float64, variability, stability float64) map[string]float64 {
	th := a.thresholds
	thetaAlpha := metrics["theta_alpha"]
	betaAlpha := metrics["beta_alpha"]
	alphaBeta := metrics["alpha_beta"]

	scores := make(map[string]float64, 5)

	fatigueScore := 0.0
	if thetaAlpha > th.fatigueThetaAlphaMin {
		excess := thetaAlpha - th.fatigueThetaAlphaMin
		fatigueScore = math.Min(0.5+excess*0.5, 1.0)
	}
	scores["fatigue"] = fatigueScore

	stressScore := 0.0
	if betaAlpha > th.stressBetaAlphaMin {
		excess := betaAlpha - th.stressBetaAlphaMin
		stressScore = math.Min(0.4+excess*0.3, 0.8)
		if variability > th.stressVariabilityMin {
			stressScore = math.Min(stressScore+0.2, 1.0)
		}
	}
	scores["stress"] = stressScore

	focusedScore := 0.0
	if betaAlpha >= th.focusedBetaAlphaMin && betaAlpha <= th.focusedBetaAlphaMax && thetaAlpha < th.focusedThetaAlphaMax {
		focusedScore = 0.5
		if stability > th.focusedStabilityMin {
			focusedScore += 0.3
		}
		if variability < 0.1 {
			focusedScore += 0.2
		}
	}
	scores["focused"] = math.Min(focusedScore, 1.0)

	relaxedScore := 0.0
	if alphaBeta > th.relaxedAlphaBetaMin && thetaAlpha < th.relaxedThetaAlphaMax {
		excess := alphaBeta - th.relaxedAlphaBetaMin
		relaxedScore = math.Min(0.5+excess*0.3, 1.0)
	}
	scores["relaxed"] = relaxedScore

	normalScore := 1.0 - math.Max(fatigueScore, math.Max(stressScore*0.8, math.Max(focusedScore*0.6, relaxedScore*0.6)))

	balanceScore := 1.0
	for _, ratio := range []float64{thetaAlpha, betaAlpha, alphaBeta} {
		balanceScore -= math.Abs(ratio-1.0) * 0.2
	}

	scores["normal"] = math.Max(0.0, math.Min(normalScore, balanceScore))

	return scores
}

// selectState applies the safety-priority rule (fatigue, then stress, then
// highest score) followed by majority-vote stabilization over the last
// three selections.
func (a *Analyzer) selectState(scores map[string]float64) (State, float64) {
	var best State
	switch {
	case scores["fatigue"] > 0.6:
		best = StateFatigue
	case scores["stress"] > 0.7:
		best = StateStress
	default:
		best = argmaxState(scores)
	}
	confidence := scores[string(best)]

	a.stateHistory = append(a.stateHistory, best)
	if len(a.stateHistory) > a.cfg.HistorySize {
		a.stateHistory = a.stateHistory[len(a.stateHistory)-a.cfg.HistorySize:]
	}

	if len(a.stateHistory) >= 3 {
		recent := a.stateHistory[len(a.stateHistory)-3:]
		voted, count := majorityVote(recent)
		if count >= 2 {
			best = voted
		}
	}

	return best, confidence
}

func argmaxState(scores map[string]float64) State {
	order := []State{StateFatigue, StateStress, StateFocused, StateRelaxed, StateNormal}
	best := order[0]
	bestScore := scores[string(best)]
	for _, s := range order[1:] {
		if scores[string(s)] > bestScore {
			best = s
			bestScore = scores[string(s)]
		}
	}
	return best
}

func majorityVote(states []State) (State, int) {
	counts := make(map[State]int, len(states))
	order := make([]State, 0, len(states))
	for _, s := range states {
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	best := order[0]
	bestCount := counts[best]
	for _, s := range order[1:] {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best, bestCount
}

func pushBounded(history []float64, value float64, max int) []float64 {
	history = append(history, value)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

func meanOrDefault(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
