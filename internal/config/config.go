// Package config centralizes the default tuning parameters for every stage
// of the pipeline (filter cutoffs, spectral bands, analyzer history and
// quality gate, batch-writer triggers, ingest windows, server addresses):
// one struct per concern, each with a Default constructor. The attenuator
// keeps its constants in attenuate.DefaultConfig.
package config

import (
	"os"
	"strconv"
	"time"
)

// FilterConfig parameterizes the filter bank.
type FilterConfig struct {
	SampleRate float64 // Hz
	LowCutHz   float64 // bandpass low edge
	HighCutHz  float64 // bandpass high edge
	Order      int     // Butterworth order
	NotchHz    float64 // powerline notch frequency; 0 disables
	NotchQ     float64 // notch quality factor; filterbank.New does not take it and always designs the notch with Q=30
}

// DrivingModeFilterConfig returns the tighter passband used in driving
// mode (1-30Hz).
func DrivingModeFilterConfig(sampleRate float64, notchHz float64) FilterConfig {
	return FilterConfig{
		SampleRate: sampleRate,
		LowCutHz:   1.0,
		HighCutHz:  30.0,
		Order:      4,
		NotchHz:    notchHz,
		NotchQ:     30.0,
	}
}

// LabModeFilterConfig returns the wider passband (1-40Hz) used outside
// driving mode.
func LabModeFilterConfig(sampleRate float64, notchHz float64) FilterConfig {
	cfg := DrivingModeFilterConfig(sampleRate, notchHz)
	cfg.HighCutHz = 40.0
	return cfg
}

// Band is a named frequency interval used by the feature extractor.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// FeatureConfig parameterizes the Welch PSD feature extractor.
type FeatureConfig struct {
	SampleRate float64
	NPerSeg    int
	Bands      []Band
}

// DefaultFeatureConfig returns the five canonical bands at nperseg=256.
func DefaultFeatureConfig(sampleRate float64) FeatureConfig {
	return FeatureConfig{
		SampleRate: sampleRate,
		NPerSeg:    256,
		Bands: []Band{
			{Name: "delta", LowHz: 1, HighHz: 4},
			{Name: "theta", LowHz: 4, HighHz: 8},
			{Name: "alpha", LowHz: 8, HighHz: 13},
			{Name: "beta", LowHz: 13, HighHz: 30},
			{Name: "gamma", LowHz: 30, HighHz: 45},
		},
	}
}

// AnalyzerConfig parameterizes the cognitive analyzer.
type AnalyzerConfig struct {
	HistorySize           int // bounded FIFO for ratio smoothing and state history
	VariabilityWindow     int // max samples retained for variability
	CalibrationMinSamples int
	QualityGate           float64 // below this, result is forced to unknown
}

// DefaultAnalyzerConfig returns the analyzer defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		HistorySize:           5,
		VariabilityWindow:     10,
		CalibrationMinSamples: 5,
		QualityGate:           0.2,
	}
}

// BufferConfig parameterizes the batch writer.
type BufferConfig struct {
	MaxSize     int
	MaxTime     time.Duration
	TickerEvery time.Duration
}

// DefaultBufferConfig returns the batch-writer defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxSize:     100,
		MaxTime:     1 * time.Second,
		TickerEvery: 100 * time.Millisecond,
	}
}

// IngestConfig parameterizes the ingestion endpoint.
type IngestConfig struct {
	MaxPastSkew    time.Duration
	MaxFutureSkew  time.Duration
	RequestTimeout time.Duration
}

// DefaultIngestConfig accepts records up to 60s old and tolerates 10s of
// forward clock skew from the producer.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		MaxPastSkew:    60 * time.Second,
		MaxFutureSkew:  10 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

// ServerConfig holds process-wide addresses and knobs read from the
// environment at startup, constructed once in main and threaded down.
type ServerConfig struct {
	ListenAddr  string
	DatabaseURL string
	Buffer      BufferConfig
	Ingest      IngestConfig
}

// DefaultServerConfig returns defaults overridable by environment variables,
// read once at process startup.
func DefaultServerConfig() ServerConfig {
	cfg := ServerConfig{
		ListenAddr:  getEnv("EEGMONITOR_LISTEN_ADDR", ":8080"),
		DatabaseURL: getEnv("EEGMONITOR_DATABASE_URL", "postgres://localhost:5432/eegmonitor"),
		Buffer:      DefaultBufferConfig(),
		Ingest:      DefaultIngestConfig(),
	}
	if n, err := strconv.Atoi(os.Getenv("EEGMONITOR_BUFFER_MAX_SIZE")); err == nil && n > 0 {
		cfg.Buffer.MaxSize = n
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
