// Package filterbank implements the bandpass + notch filter stage of the
// pipeline: a Butterworth bandpass design and an IIR notch, both applied
// zero-phase (forward-backward, matching scipy.signal.filtfilt) along the
// time axis of a per-channel sample matrix.
package filterbank

import (
	"math"
	"math/cmplx"

	"github.com/linuxmatters/eegmonitor/internal/eegerr"
)

// Bank holds the designed bandpass and notch filter coefficients for a
// fixed sample rate and passband: filters are designed once at
// construction and reused for every frame.
type Bank struct {
	sampleRate float64
	bpB, bpA   []float64
	notchB     []float64
	notchA     []float64
	hasNotch   bool
}

// New designs a Butterworth bandpass of the given order between lowHz and
// highHz, plus an optional notch at notchHz (Q=30; notchHz<=0 disables
// it). Invalid cutoffs fail here, at construction, not per frame.
func New(sampleRate, lowHz, highHz float64, order int, notchHz float64) (*Bank, error) {
	nyq := 0.5 * sampleRate
	if lowHz <= 0 {
		return nil, eegerr.NewConfig("filterbank: low cutoff must be positive")
	}
	if highHz >= nyq {
		return nil, eegerr.NewConfig("filterbank: high cutoff must be below nyquist")
	}
	if lowHz >= highHz {
		return nil, eegerr.NewConfig("filterbank: low cutoff must be below high cutoff")
	}
	if order < 1 {
		return nil, eegerr.NewConfig("filterbank: order must be positive")
	}

	bpB, bpA := designButterBandpass(order, lowHz/nyq, highHz/nyq)

	b := &Bank{
		sampleRate: sampleRate,
		bpB:        bpB,
		bpA:        bpA,
	}

	if notchHz > 0 {
		if notchHz >= nyq {
			return nil, eegerr.NewConfig("filterbank: notch frequency must be below nyquist")
		}
		notchB, notchA := designIIRNotch(notchHz/nyq, 30.0)
		b.notchB, b.notchA = notchB, notchA
		b.hasNotch = true
	}

	return b, nil
}

// Apply runs the bandpass, then (if configured) the notch, zero-phase, over
// data laid out as [samples][channels]. An empty frame passes through
// unchanged.
func (b *Bank) Apply(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	out := filtfiltChannels(data, b.bpB, b.bpA)
	if b.hasNotch {
		out = filtfiltChannels(out, b.notchB, b.notchA)
	}
	return out
}

// designButterBandpass builds a digital Butterworth bandpass via the
// classic analog-prototype + bilinear-transform route (poles on the unit
// circle of the low-pass prototype, lowpass-to-bandpass frequency
// transform, then the bilinear transform to the z-plane), producing the
// same normalized [b, a] direct-form-II coefficients scipy.signal.butter
// returns for a bandpass design.
func designButterBandpass(order int, lowNorm, highNorm float64) (b, a []float64) {
	// Prewarp the band edges (digital -> analog frequency with fs=1, half of
	// scipy's fs=2 values; the bilinear transform below uses the matching
	// fs2=2, so the digital filter is the same).
	warpedLow := 2.0 * math.Tan(math.Pi*lowNorm/2.0)
	warpedHigh := 2.0 * math.Tan(math.Pi*highNorm/2.0)
	bw := warpedHigh - warpedLow
	w0 := math.Sqrt(warpedLow * warpedHigh)

	// Analog lowpass prototype poles (Butterworth, cutoff 1 rad/s).
	protoPoles := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * (2*float64(k) + 1) / (2 * float64(order))
		protoPoles[k] = complex(-math.Sin(theta), math.Cos(theta))
	}

	// Lowpass-to-bandpass transform: each prototype pole maps to two
	// bandpass poles, solving p_bp^2 - p_lp*bw*p_bp + w0^2 = 0.
	bpPoles := make([]complex128, 0, 2*order)
	for _, p := range protoPoles {
		pBw := p * complex(bw, 0)
		disc := cmplx.Sqrt(pBw*pBw - 4*complex(w0*w0, 0))
		bpPoles = append(bpPoles, (pBw+disc)/2, (pBw-disc)/2)
	}
	// order zeros at s=0 (bandpass prototype has order zeros at the origin).
	bpZeros := make([]complex128, order)

	// The prototype's unit gain is scaled by bw^order by the
	// lowpass-to-bandpass transform (one factor per excess pole).
	gain := math.Pow(bw, float64(order))

	zDig, pDig, kDig := bilinearTransform(bpZeros, bpPoles, gain, 2.0)
	return realPart(polyFromRoots(zDig, kDig)), realPart(polyFromRoots(pDig, 1.0))
}

// designIIRNotch matches scipy.signal.iirnotch(freq, Q): a 2nd-order IIR
// notch at the normalized frequency w0 (0..1, 1=nyquist) with quality
// factor Q.
func designIIRNotch(w0Norm, q float64) (b, a []float64) {
	w0 := math.Pi * w0Norm
	bw := w0 / q
	gb := 1.0 / math.Sqrt2 // -3dB gain at the notch bandwidth edges

	beta := math.Sqrt(1-gb*gb) / gb * math.Tan(bw/2)
	gain := 1.0 / (1.0 + beta)

	b = []float64{gain, -2 * gain * math.Cos(w0), gain}
	a = []float64{1.0, -2 * gain * math.Cos(w0), 2*gain - 1}
	return b, a
}

// bilinearTransform maps analog zeros/poles/gain to the digital domain
// using fs2 = 2*fs of the analog design (designButterBandpass passes 2.0,
// i.e. fs=1, to match its prewarp), returning the z-plane zeros, poles and
// overall gain.
func bilinearTransform(zeros, poles []complex128, gain, fs2 float64) (zDig, pDig []complex128, kDig float64) {
	fs2c := complex(fs2, 0)
	zDig = make([]complex128, len(zeros))
	for i, z := range zeros {
		zDig[i] = (fs2c + z) / (fs2c - z)
	}
	pDig = make([]complex128, len(poles))
	for i, p := range poles {
		pDig[i] = (fs2c + p) / (fs2c - p)
	}

	numProd := complex(1, 0)
	denProd := complex(1, 0)
	for _, z := range zeros {
		numProd *= fs2c - z
	}
	for _, p := range poles {
		denProd *= fs2c - p
	}
	degreeDiff := len(poles) - len(zeros)
	for i := 0; i < degreeDiff; i++ {
		zDig = append(zDig, -1)
	}
	kDig = gain * real(numProd/denProd)
	return zDig, pDig, kDig
}

// polyFromRoots expands (x - r0)(x - r1)...(x - rn) * k into coefficients,
// highest degree first, matching numpy.poly's convention.
func polyFromRoots(roots []complex128, k float64) []complex128 {
	coeffs := []complex128{complex(k, 0)}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	return coeffs
}

func realPart(c []complex128) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}
