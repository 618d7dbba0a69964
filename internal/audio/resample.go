package audio

import "math"

// Width of the sinc kernel in zero crossings per side.
const zeroCrossings = 16

// Resample converts samples from one rate to another with a Hann-windowed
// sinc kernel, cut off at the lower of the two Nyquist frequencies. The
// result is deterministic for identical input. Equal rates return the input
// slice untouched.
func Resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	fc := 0.5 * math.Min(1.0, ratio) // cycles per input sample
	width := float64(zeroCrossings) / (2 * fc)

	outLen := int(float64(len(in)) * ratio)
	out := make([]float32, outLen)
	for i := range out {
		center := float64(i) / ratio
		lo := int(math.Ceil(center - width))
		hi := int(math.Floor(center + width))
		if lo < 0 {
			lo = 0
		}
		if hi > len(in)-1 {
			hi = len(in) - 1
		}
		var acc, norm float64
		for j := lo; j <= hi; j++ {
			t := float64(j) - center
			w := sinc(2*fc*t) * hann(t/width)
			acc += float64(in[j]) * w
			norm += w
		}
		if norm != 0 {
			out[i] = float32(acc / norm)
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(x float64) float64 {
	if x <= -1 || x >= 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*x))
}
