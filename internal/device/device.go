// Package device models the headset transport the producer pulls frames
// from. The real transport (LSL/Muse 2) is out of scope; Source is the
// narrow interface the rest of the pipeline depends on, plus a
// SyntheticSource used by the CLI in absence of real hardware and by
// tests.
package device

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/linuxmatters/eegmonitor/internal/eegerr"
)

// Frame is one chunk of raw samples pulled from the device: Samples is
// laid out [samples][channels], Timestamps carries one wall-clock time
// per sample.
type Frame struct {
	Samples    [][]float64
	Timestamps []time.Time
	SampleRate float64
}

// Source is the narrow interface the producer depends on. PullChunk
// returns a frame holding duration worth of samples, or ctx's error if ctx
// is cancelled first.
type Source interface {
	PullChunk(ctx context.Context, duration time.Duration) (Frame, error)
	Close() error
}

// SyntheticSource generates synthetic multi-channel EEG-like samples at a
// fixed sample rate, standing in for a Muse 2 LSL stream. It mixes a
// handful of sinusoids near the canonical band centers plus noise, so
// downstream band-power/ratio computations produce non-degenerate output
// in tests and demos.
type SyntheticSource struct {
	ChannelCount int
	SampleRate   float64
	rng          *rand.Rand
	closed       bool
}

// NewSyntheticSource constructs a source with the given channel count and
// sample rate (the Muse 2 layout is four channels at 256Hz), seeding its
// noise generator with seed.
func NewSyntheticSource(channelCount int, sampleRate float64, seed int64) *SyntheticSource {
	return &SyntheticSource{
		ChannelCount: channelCount,
		SampleRate:   sampleRate,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// PullChunk synthesizes duration worth of samples at SampleRate. It
// checks ctx between samples so cancellation returns a partial frame
// promptly.
func (s *SyntheticSource) PullChunk(ctx context.Context, duration time.Duration) (Frame, error) {
	if s.closed {
		return Frame{}, eegerr.NewDevice(errDeviceClosed)
	}

	n := int(duration.Seconds() * s.SampleRate)
	if n <= 0 {
		n = 1
	}

	samples := make([][]float64, n)
	timestamps := make([]time.Time, n)
	now := time.Now()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return Frame{
				Samples:    samples[:i],
				Timestamps: timestamps[:i],
				SampleRate: s.SampleRate,
			}, ctx.Err()
		default:
		}

		t := float64(i) / s.SampleRate
		row := make([]float64, s.ChannelCount)
		for ch := range row {
			row[ch] = 10*math.Sin(2*math.Pi*10*t) + // alpha-band component
				5*math.Sin(2*math.Pi*20*t) + // beta-band component
				s.rng.NormFloat64()*2 // sensor noise
		}
		samples[i] = row
		timestamps[i] = now.Add(time.Duration(t * float64(time.Second)))
	}

	return Frame{Samples: samples, Timestamps: timestamps, SampleRate: s.SampleRate}, nil
}

// Close marks the source closed; subsequent PullChunk calls fail.
func (s *SyntheticSource) Close() error {
	s.closed = true
	return nil
}

var errDeviceClosed = deviceClosedError{}

type deviceClosedError struct{}

func (deviceClosedError) Error() string { return "device: source is closed" }
