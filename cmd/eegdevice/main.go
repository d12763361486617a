// Command eegdevice is the producer-side CLI: it pulls chunks from a
// headset source (device.SyntheticSource absent real hardware), runs the
// filter bank, attenuator, feature extractor, and cognitive analyzer
// in-process, then posts each record to a running eegserver.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/linuxmatters/eegmonitor/internal/attenuate"
	"github.com/linuxmatters/eegmonitor/internal/cli"
	"github.com/linuxmatters/eegmonitor/internal/cognitive"
	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/device"
	"github.com/linuxmatters/eegmonitor/internal/feature"
	"github.com/linuxmatters/eegmonitor/internal/filterbank"
	"github.com/linuxmatters/eegmonitor/internal/logging"
	"github.com/linuxmatters/eegmonitor/internal/mains"
)

var version = "dev"

// CLI defines the eegdevice command-line interface.
type CLI struct {
	Version         bool          `short:"v" help:"Show version information"`
	SessionID       string        `help:"Session identifier to tag every record with" required:""`
	BackendURL      string        `help:"Base URL of the eegserver ingestion endpoint" default:"http://localhost:8080"`
	SaveDB          bool          `help:"Ask the backend to persist this session's records"`
	NoCalibrate     bool          `help:"Skip baseline calibration; use the analyzer's default baseline"`
	CalibrationTime time.Duration `help:"How long to collect calibration samples for" default:"10s"`
	ChunkDuration   time.Duration `help:"Duration of each pulled chunk" default:"1s"`
	SampleRate      float64       `help:"Device sample rate in Hz" default:"256"`
	ChannelCount    int           `help:"Number of channels" default:"4"`
}

func main() {
	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("eegdevice"),
		kong.Description("EEG cognitive-state monitoring producer"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	cli.PrintBanner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliArgs); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// run drives the producer loop until ctx is cancelled (SIGINT/SIGTERM).
// An unreachable backend at startup is an error only after the final
// retry; an interrupt mid-session is a clean exit.
func run(ctx context.Context, c *CLI) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}

	if err := waitForBackend(ctx, httpClient, c.BackendURL); err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	cli.PrintSuccess(fmt.Sprintf("connected to %s", c.BackendURL))

	notchHz := float64(mains.Frequency())
	filterCfg := config.DrivingModeFilterConfig(c.SampleRate, notchHz)
	bank, err := filterbank.New(filterCfg.SampleRate, filterCfg.LowCutHz, filterCfg.HighCutHz, filterCfg.Order, filterCfg.NotchHz)
	if err != nil {
		return fmt.Errorf("filter bank: %w", err)
	}

	attCfg := attenuate.DefaultConfig()
	featCfg := config.DefaultFeatureConfig(c.SampleRate)
	analyzer := cognitive.New(config.DefaultAnalyzerConfig())

	src := device.NewSyntheticSource(c.ChannelCount, c.SampleRate, time.Now().UnixNano())
	defer src.Close()

	stats := &sessionStats{start: time.Now()}

	if !c.NoCalibrate {
		if err := calibrate(ctx, src, bank, attCfg, featCfg, analyzer, c.CalibrationTime); err != nil {
			cli.PrintWarning(fmt.Sprintf("calibration interrupted: %v", err))
		} else {
			cli.PrintSuccess("baseline calibrated")
		}
	}

	summaryTicker := time.NewTicker(5 * time.Second)
	defer summaryTicker.Stop()
	chunkTicker := time.NewTicker(c.ChunkDuration)
	defer chunkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			stats.finish(c.SessionID)
			return nil
		case <-summaryTicker.C:
			stats.printSummary()
			continue
		case <-chunkTicker.C:
		}

		frame, err := src.PullChunk(ctx, c.ChunkDuration)
		if err != nil {
			if ctx.Err() != nil {
				stats.finish(c.SessionID)
				return nil
			}
			stats.errors++
			continue
		}

		result, set, meanChannels, breakdown := processFrame(frame, bank, attCfg, featCfg, analyzer)
		stats.observe(result, set, breakdown)

		if err := postRecord(ctx, httpClient, c.BackendURL, c.SessionID, frame, meanChannels, set, result, breakdown.Score, c.SaveDB); err != nil {
			stats.errors++
			continue
		}
		stats.sent++
	}
}

// cleanFrame runs the full attenuator chain on a filtered frame: soft-clip
// attenuation, temporal smoothing, then robust median/MAD baseline
// correction and normalization, so the feature extractor always sees the
// same normalized scale the analyzer's thresholds were tuned against.
func cleanFrame(filtered [][]float64, attCfg attenuate.Config) [][]float64 {
	smoothed := attenuate.Smooth(attenuate.Attenuate(filtered, attCfg), attCfg)
	return attenuate.RobustNormalize(attenuate.RobustBaselineCorrect(smoothed))
}

// calibrate runs the pipeline through the filter/attenuate/feature stages
// for calibrationTime and feeds each frame's features to the analyzer's
// calibration collector until the deadline passes or the baseline
// finalizes, whichever comes first.
func calibrate(ctx context.Context, src device.Source, bank *filterbank.Bank, attCfg attenuate.Config, featCfg config.FeatureConfig, analyzer *cognitive.Analyzer, calibrationTime time.Duration) error {
	analyzer.StartCalibration()
	deadline := time.Now().Add(calibrationTime)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := src.PullChunk(ctx, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		filtered := bank.Apply(frame.Samples)
		attenuated := cleanFrame(filtered, attCfg)
		set := feature.Extract(attenuated, featCfg)
		if analyzer.AddCalibrationSample(set) {
			return nil
		}
	}
	return nil
}

// processFrame runs one frame through the filter bank, attenuator, and
// feature extractor, analyzes the result, and reduces the cleaned frame
// to a per-chunk channel mean, the only per-channel shape the wire
// contract carries.
func processFrame(frame device.Frame, bank *filterbank.Bank, attCfg attenuate.Config, featCfg config.FeatureConfig, analyzer *cognitive.Analyzer) (cognitive.Result, feature.Set, [4]float64, attenuate.QualityBreakdown) {
	filtered := bank.Apply(frame.Samples)
	breakdown := attenuate.QualityDetailed(filtered, attCfg)
	attenuated := cleanFrame(filtered, attCfg)

	set := feature.Extract(attenuated, featCfg)
	result := analyzer.Analyze(set, breakdown.Score)

	var means [4]float64
	if len(attenuated) > 0 {
		nCh := len(attenuated[0])
		for ch := 0; ch < nCh && ch < 4; ch++ {
			var sum float64
			for _, row := range attenuated {
				sum += row[ch]
			}
			means[ch] = sum / float64(len(attenuated))
		}
	}

	return result, set, means, breakdown
}

// meanAcrossChannels averages a per-channel band-power vector into the
// single scalar the wire contract's "processed" bundle expects.
func meanAcrossChannels(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

type streamPayload struct {
	SessionID  string             `json:"session_id"`
	Timestamp  time.Time          `json:"timestamp"`
	SampleRate int                `json:"sample_rate"`
	Channels   map[string]float64 `json:"channels"`
	Processed  *processedPayload  `json:"processed,omitempty"`
	SaveToDB   bool               `json:"save_to_db"`
}

type processedPayload struct {
	ThetaPower      float64 `json:"theta_power"`
	AlphaPower      float64 `json:"alpha_power"`
	BetaPower       float64 `json:"beta_power"`
	GammaPower      float64 `json:"gamma_power"`
	ThetaAlphaRatio float64 `json:"theta_alpha_ratio"`
	BetaAlphaRatio  float64 `json:"beta_alpha_ratio"`
	EEGFatigueScore float64 `json:"eeg_fatigue_score"`
	SignalQuality   float64 `json:"signal_quality"`
	CognitiveState  string  `json:"cognitive_state"`
}

// postRecord posts one record to backendURL + "/eeg/stream" with a short
// request timeout so a stalled backend never blocks the pull loop.
func postRecord(ctx context.Context, client *http.Client, backendURL, sessionID string, frame device.Frame, means [4]float64, set feature.Set, result cognitive.Result, quality float64, saveDB bool) error {
	payload := streamPayload{
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		SampleRate: int(frame.SampleRate),
		Channels: map[string]float64{
			"TP9": means[0], "AF7": means[1], "AF8": means[2], "TP10": means[3],
		},
		Processed: &processedPayload{
			ThetaPower:      meanAcrossChannels(set.BandPower["theta"]),
			AlphaPower:      meanAcrossChannels(set.BandPower["alpha"]),
			BetaPower:       meanAcrossChannels(set.BandPower["beta"]),
			GammaPower:      meanAcrossChannels(set.BandPower["gamma"]),
			ThetaAlphaRatio: result.Metrics["theta_alpha"],
			BetaAlphaRatio:  result.Metrics["beta_alpha"],
			EEGFatigueScore: result.Scores["fatigue"] * 100,
			SignalQuality:   quality,
			CognitiveState:  string(result.State),
		},
		SaveToDB: saveDB,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, backendURL+"/eeg/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post record: backend returned %s", resp.Status)
	}
	return nil
}

// waitForBackend probes the backend's status endpoint with a short
// exponential backoff, returning an error only after the final retry.
func waitForBackend(ctx context.Context, client *http.Client, backendURL string) error {
	const maxAttempts = 5
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, backendURL+"/eeg/status", nil)
		if err != nil {
			cancel()
			return err
		}
		resp, err := client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// sessionStats accumulates the periodic summary line: fatigue %, quality,
// sent, errors, printed roughly every 5s, plus the inputs for the
// end-of-session report.
type sessionStats struct {
	start         time.Time
	sent          int
	errors        int
	lastFatigue   float64
	lastBreakdown attenuate.QualityBreakdown
	lastResult    cognitive.Result
	lastFeatures  feature.Set
	stateCounts   map[cognitive.State]int
}

func (s *sessionStats) observe(result cognitive.Result, set feature.Set, breakdown attenuate.QualityBreakdown) {
	s.lastFatigue = result.Scores["fatigue"]
	s.lastBreakdown = breakdown
	s.lastResult = result
	s.lastFeatures = set
	if s.stateCounts == nil {
		s.stateCounts = make(map[cognitive.State]int)
	}
	s.stateCounts[result.State]++
}

// finish writes the full session report (band power, state scores, signal
// tips) followed by the boxed recap.
func (s *sessionStats) finish(sessionID string) {
	if s.sent > 0 {
		logging.WriteSessionReport(os.Stdout, logging.SessionReport{
			SessionID: sessionID,
			Started:   s.start,
			Samples:   s.sent,
			Features:  s.lastFeatures,
			Result:    s.lastResult,
			Tips:      logging.GenerateSignalTips(s.lastBreakdown, s.lastResult),
		})
	}
	cli.PrintSessionSummary(s.sent, cli.FormatDuration(time.Since(s.start)), string(s.dominantState()))
}

func (s *sessionStats) dominantState() cognitive.State {
	var best cognitive.State = cognitive.StateUnknown
	bestCount := -1
	for state, count := range s.stateCounts {
		if count > bestCount {
			best, bestCount = state, count
		}
	}
	return best
}

func (s *sessionStats) printSummary() {
	cli.PrintInfo("fatigue", fmt.Sprintf("%.0f%%", s.lastFatigue*100))
	cli.PrintInfo("quality", fmt.Sprintf("%.2f", s.lastBreakdown.Score))
	cli.PrintInfo("sent", fmt.Sprintf("%d", s.sent))
	cli.PrintInfo("errors", fmt.Sprintf("%d", s.errors))
}
