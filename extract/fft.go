package extract

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrum returns the centred magnitude spectrum of a square plane:
// index [v*n+u] holds frequency (u-n/2, v-n/2).
func spectrum(p *plane) []float64 {
	n := p.w
	fft := fourier.NewCmplxFFT(n)

	data := make([]complex128, n*n)
	for i, v := range p.v {
		data[i] = complex(v, 0)
	}
	line := make([]complex128, n)
	out := make([]complex128, n)
	for y := 0; y < n; y++ {
		row := data[y*n : (y+1)*n]
		copy(line, row)
		copy(row, fft.Coefficients(out, line))
	}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			line[y] = data[y*n+x]
		}
		fft.Coefficients(out, line)
		for y := 0; y < n; y++ {
			data[y*n+x] = out[y]
		}
	}

	mag := make([]float64, n*n)
	half := n / 2
	for y := 0; y < n; y++ {
		sy := (y + half) % n
		for x := 0; x < n; x++ {
			sx := (x + half) % n
			mag[y*n+x] = cmplx.Abs(data[sy*n+sx])
		}
	}
	return mag
}
