// Package feature computes per-channel band power via Welch PSD and the
// three cognitive ratio features derived from it.
package feature

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/linuxmatters/eegmonitor/internal/config"
)

// epsilon avoids division by zero in the ratio features.
const epsilon = 1e-8

// Set holds per-channel band powers (one vector per band, one element per
// channel) plus the three per-channel ratio vectors.
type Set struct {
	BandPower map[string][]float64 // delta, theta, alpha, beta, gamma
	Ratio     map[string][]float64 // theta_alpha, beta_alpha, alpha_beta
}

// Extract runs the full pipeline: per-channel Welch PSD, five-band
// trapezoidal integration, then the three ratio features. An empty frame
// returns a zero-value Set, not an error.
func Extract(data [][]float64, cfg config.FeatureConfig) Set {
	if len(data) == 0 {
		return Set{}
	}
	nCh := len(data[0])

	bandPower := make(map[string][]float64, len(cfg.Bands))
	for _, band := range cfg.Bands {
		bandPower[band.Name] = make([]float64, nCh)
	}

	for ch := 0; ch < nCh; ch++ {
		col := column(data, ch)
		freqs, psd := welchPSD(col, cfg.SampleRate, cfg.NPerSeg)
		for _, band := range cfg.Bands {
			bandPower[band.Name][ch] = trapezoidBandPower(freqs, psd, band.LowHz, band.HighHz)
		}
	}

	ratio := computeRatios(bandPower)

	return Set{BandPower: bandPower, Ratio: ratio}
}

// computeRatios derives theta_alpha, beta_alpha, alpha_beta elementwise
// across channels.
func computeRatios(bandPower map[string][]float64) map[string][]float64 {
	theta := bandPower["theta"]
	alpha := bandPower["alpha"]
	beta := bandPower["beta"]

	n := len(alpha)
	thetaAlpha := make([]float64, n)
	betaAlpha := make([]float64, n)
	alphaBeta := make([]float64, n)

	for i := 0; i < n; i++ {
		thetaAlpha[i] = theta[i] / (alpha[i] + epsilon)
		betaAlpha[i] = beta[i] / (alpha[i] + epsilon)
		alphaBeta[i] = alpha[i] / (beta[i] + epsilon)
	}

	return map[string][]float64{
		"theta_alpha": thetaAlpha,
		"beta_alpha":  betaAlpha,
		"alpha_beta":  alphaBeta,
	}
}

// trapezoidBandPower integrates psd over the samples whose frequency
// falls in [lowHz, highHz] using the trapezoidal rule.
func trapezoidBandPower(freqs, psd []float64, lowHz, highHz float64) float64 {
	var xs, ys []float64
	for i, f := range freqs {
		if f >= lowHz && f <= highHz {
			xs = append(xs, f)
			ys = append(ys, psd[i])
		}
	}
	if len(xs) < 2 {
		return 0
	}
	var area float64
	for i := 1; i < len(xs); i++ {
		area += (ys[i] + ys[i-1]) / 2 * (xs[i] - xs[i-1])
	}
	return area
}

// welchPSD computes Welch's power spectral density estimate: the signal is
// split into 50%-overlapping segments of length nperseg, each windowed
// with a Hann window, FFT'd, and the periodograms are averaged, with
// scipy.signal.welch's one-sided density scaling. Segments are not
// detrended and the Hann window is gonum's symmetric form, so values differ
// from scipy.signal.welch's defaults (constant detrend, periodic Hann).
func welchPSD(x []float64, fs float64, nperseg int) (freqs, psd []float64) {
	n := len(x)
	if nperseg > n {
		nperseg = n
	}
	if nperseg < 1 {
		return nil, nil
	}
	step := nperseg / 2
	if step < 1 {
		step = 1
	}

	win := window.Hann(ones(nperseg))
	winSumSq := sumSquares(win)

	fft := fourier.NewFFT(nperseg)
	nFreq := nperseg/2 + 1
	acc := make([]float64, nFreq)

	segCount := 0
	for start := 0; start+nperseg <= n; start += step {
		seg := make([]float64, nperseg)
		for i := 0; i < nperseg; i++ {
			seg[i] = x[start+i] * win[i]
		}
		coeffs := fft.Coefficients(nil, seg)
		for k := 0; k < nFreq; k++ {
			mag := coeffs[k]
			power := real(mag)*real(mag) + imag(mag)*imag(mag)
			acc[k] += power
		}
		segCount++
	}

	scale := 1.0 / (fs * winSumSq)
	psd = make([]float64, nFreq)
	for k := range acc {
		v := acc[k] / float64(segCount) * scale
		if k != 0 && !(nperseg%2 == 0 && k == nFreq-1) {
			v *= 2 // fold the negative-frequency half back in, one-sided PSD
		}
		psd[k] = v
	}

	freqs = make([]float64, nFreq)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nperseg)
	}

	return freqs, psd
}

// ones returns a length-n slice of 1s for the in-place gonum window
// functions to scale into window coefficients.
func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func column(data [][]float64, ch int) []float64 {
	col := make([]float64, len(data))
	for i, row := range data {
		col[i] = row[ch]
	}
	return col
}
