// This file turns attenuator and cognitive-analyzer measurements into a
// prioritized, mutually-exclusive, capped list of operator-facing tips.

package logging

import (
	"fmt"
	"sort"

	"github.com/linuxmatters/eegmonitor/internal/attenuate"
	"github.com/linuxmatters/eegmonitor/internal/cognitive"
)

// SignalTip is one actionable suggestion surfaced to the person wearing the
// headset, ranked by Priority (higher fires first) and tagged with a RuleID
// so applyExclusions can reason about which tips conflict.
type SignalTip struct {
	Priority int
	Message  string
	RuleID   string
}

// MaxSignalTips bounds how many tips are shown per analysis cycle.
const MaxSignalTips = 3

// GenerateSignalTips runs every rule against the current quality breakdown
// and cognitive result, resolves mutual exclusions, and returns at most
// MaxSignalTips tips ordered by descending priority.
func GenerateSignalTips(q attenuate.QualityBreakdown, result cognitive.Result) []SignalTip {
	rules := []func(attenuate.QualityBreakdown, cognitive.Result) *SignalTip{
		tipFlatChannel,
		tipHighNoise,
		tipMotionArtifact,
		tipUncalibrated,
		tipLowQuality,
		tipGoodSignal,
	}

	var tips []SignalTip
	fired := make(map[string]bool)
	for _, rule := range rules {
		if tip := rule(q, result); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}

	tips = applySignalExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})
	if len(tips) > MaxSignalTips {
		tips = tips[:MaxSignalTips]
	}
	return tips
}

// applySignalExclusions suppresses lower-value tips that a higher-priority
// one already explains. A flat channel is almost always an electrode-contact
// problem, so it preempts the generic low-quality tip; a specific
// motion-artifact tip preempts the generic one too.
func applySignalExclusions(tips []SignalTip, fired map[string]bool) []SignalTip {
	if !fired["flat_channel"] && !fired["motion_artifact"] {
		return tips
	}
	out := tips[:0:0]
	for _, t := range tips {
		if t.RuleID == "low_quality" && (fired["flat_channel"] || fired["motion_artifact"]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func tipFlatChannel(q attenuate.QualityBreakdown, _ cognitive.Result) *SignalTip {
	if q.FlatRatio <= 0 {
		return nil
	}
	priority := 9
	if q.FlatRatio >= 0.5 {
		priority = 10
	}
	return &SignalTip{
		Priority: priority,
		Message:  "One or more channels are reading nearly flat. Check electrode contact and reseat the headset.",
		RuleID:   "flat_channel",
	}
}

func tipHighNoise(q attenuate.QualityBreakdown, _ cognitive.Result) *SignalTip {
	if q.NoiseRatio <= 0.25 {
		return nil
	}
	priority := 6
	if q.NoiseRatio > 0.6 {
		priority = 8
	}
	return &SignalTip{
		Priority: priority,
		Message:  "Signal noise is above the expected envelope for this channel set. Move away from nearby electronics or unshielded cabling.",
		RuleID:   "high_noise",
	}
}

func tipMotionArtifact(q attenuate.QualityBreakdown, _ cognitive.Result) *SignalTip {
	if q.OutlierRatio <= 0.05 {
		return nil
	}
	priority := 7
	if q.OutlierRatio > 0.15 {
		priority = 9
	}
	return &SignalTip{
		Priority: priority,
		Message:  "Frequent large-amplitude spikes suggest movement or jaw clenching. Hold still for a clean baseline read.",
		RuleID:   "motion_artifact",
	}
}

func tipUncalibrated(_ attenuate.QualityBreakdown, result cognitive.Result) *SignalTip {
	if result.Calibrated {
		return nil
	}
	return &SignalTip{
		Priority: 5,
		Message:  "Baseline calibration is still in progress. Stay relaxed and still until it completes.",
		RuleID:   "uncalibrated",
	}
}

func tipLowQuality(q attenuate.QualityBreakdown, result cognitive.Result) *SignalTip {
	if !result.Calibrated || q.Score >= 0.5 {
		return nil
	}
	return &SignalTip{
		Priority: 4,
		Message:  fmt.Sprintf("Overall signal quality is low (%.0f%%). Recheck the fit before trusting the cognitive-state readout.", q.Score*100),
		RuleID:   "low_quality",
	}
}

func tipGoodSignal(q attenuate.QualityBreakdown, result cognitive.Result) *SignalTip {
	if !result.Calibrated || q.Score < 0.85 {
		return nil
	}
	return &SignalTip{
		Priority: 1,
		Message:  "Signal quality is excellent.",
		RuleID:   "good_signal",
	}
}
