package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/linuxmatters/eegmonitor/internal/cognitive"
	"github.com/linuxmatters/eegmonitor/internal/feature"
)

// SessionReport is the snapshot a caller writes out at the end of a
// recording session (or on demand via the CLI): band power and ratios from
// the most recent feature extraction, plus the cognitive analyzer's latest
// result and signal tips.
type SessionReport struct {
	SessionID string
	Started   time.Time
	Samples   int
	Features  feature.Set
	Result    cognitive.Result
	Tips      []SignalTip
}

// WriteSessionReport renders a SessionReport as plain, column-aligned
// text: a header block, then one section per table, then tips.
func WriteSessionReport(w io.Writer, r SessionReport) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "EEG SESSION: %s\n", r.SessionID)
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Started:  %s\n", r.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "Samples:  %d\n", r.Samples)
	fmt.Fprintln(w)

	writeSignalSection(w, "COGNITIVE STATE")
	fmt.Fprintf(w, "  State:       %s\n", r.Result.State)
	fmt.Fprintf(w, "  Confidence:  %.2f\n", r.Result.Confidence)
	fmt.Fprintf(w, "  Quality:     %.2f\n", r.Result.Quality)
	fmt.Fprintf(w, "  Calibrated:  %t\n", r.Result.Calibrated)
	fmt.Fprintln(w)

	if table := bandPowerTable(r.Features); table != nil {
		writeSignalSection(w, "BAND POWER")
		fmt.Fprint(w, table.String())
		fmt.Fprintln(w)
	}

	if len(r.Result.Scores) > 0 {
		writeSignalSection(w, "STATE SCORES")
		fmt.Fprint(w, scoreTable(r.Result.Scores).String())
		fmt.Fprintln(w)
	}

	if len(r.Tips) > 0 {
		writeSignalSection(w, "TIPS")
		for _, tip := range r.Tips {
			fmt.Fprintf(w, "  - %s\n", tip.Message)
		}
		fmt.Fprintln(w)
	}
}

func writeSignalSection(w io.Writer, title string) {
	fmt.Fprintf(w, "--- %s ---\n", title)
}

// bandPowerTable builds one row per channel with one column per band,
// returning nil when there is nothing to show.
func bandPowerTable(set feature.Set) *MetricTable {
	if len(set.BandPower) == 0 {
		return nil
	}
	bands := sortedKeys(set.BandPower)
	table := NewMetricTable(bands...)

	nCh := 0
	for _, powers := range set.BandPower {
		if len(powers) > nCh {
			nCh = len(powers)
		}
	}
	for ch := 0; ch < nCh; ch++ {
		values := make([]float64, len(bands))
		for i, band := range bands {
			powers := set.BandPower[band]
			if ch < len(powers) {
				values[i] = powers[ch]
			}
		}
		table.AddMetricRow(fmt.Sprintf("ch%d", ch), 3, "", "", values...)
	}
	return table
}

func scoreTable(scores map[string]float64) *MetricTable {
	table := NewMetricTable("Score")
	for _, state := range sortedKeys2(scores) {
		table.AddMetricRow(state, 3, "", "", scores[state])
	}
	return table
}

func sortedKeys2(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
