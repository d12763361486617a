package filterbank

// filtfiltChannels applies the IIR filter [b, a] forward then backward,
// independently per channel, matching scipy.signal.filtfilt(..., axis=0)
// with odd-order edge padding to damp the transient at each boundary.
func filtfiltChannels(data [][]float64, b, a []float64) [][]float64 {
	n := len(data)
	if n == 0 {
		return data
	}
	nCh := len(data[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, nCh)
	}

	padLen := 3 * max(len(a), len(b))
	if padLen >= n {
		padLen = n - 1
	}

	for ch := 0; ch < nCh; ch++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = data[i][ch]
		}

		padded := oddExtend(col, padLen)
		forward := lfilter(b, a, padded)
		reverse(forward)
		backward := lfilter(b, a, forward)
		reverse(backward)

		for i := 0; i < n; i++ {
			out[i][ch] = backward[padLen+i]
		}
	}
	return out
}

// oddExtend mirrors scipy's odd reflection padding: pad[k] = 2*x[0] - x[padLen-k]
// on the left and symmetric on the right, reducing step discontinuities at
// the boundaries before filtering.
func oddExtend(x []float64, padLen int) []float64 {
	n := len(x)
	if padLen <= 0 {
		return append([]float64(nil), x...)
	}
	out := make([]float64, n+2*padLen)
	for i := 0; i < padLen; i++ {
		out[i] = 2*x[0] - x[padLen-i]
	}
	copy(out[padLen:padLen+n], x)
	for i := 0; i < padLen; i++ {
		out[padLen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	return out
}

// lfilter applies the direct-form-II transposed recursion
// a[0]*y[n] = b[0]*x[n] + ... + b[M]*x[n-M] - a[1]*y[n-1] - ... - a[N]*y[n-N].
func lfilter(b, a []float64, x []float64) []float64 {
	n := len(x)
	y := make([]float64, n)
	a0 := a[0]
	for i := 0; i < n; i++ {
		var acc float64
		for j, bj := range b {
			if i-j >= 0 {
				acc += bj * x[i-j]
			}
		}
		for j := 1; j < len(a); j++ {
			if i-j >= 0 {
				acc -= a[j] * y[i-j]
			}
		}
		y[i] = acc / a0
	}
	return y
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
