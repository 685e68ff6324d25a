package audio

import (
	"encoding/binary"
	"math"
)

// STTSampleRate is the sample rate every transcriber in this module expects.
const STTSampleRate = 16000

// ToMono16k converts 16-bit little-endian PCM at rate/channels to 16 kHz mono.
// Downmixing happens before resampling so only one channel is interpolated.
func ToMono16k(pcm []byte, rate, channels int) []byte {
	if channels > 1 {
		pcm = Downmix(pcm, channels)
	}
	return ResampleMono16(pcm, rate, STTSampleRate)
}

// Downmix averages interleaved channels into mono. Uses int32 arithmetic and
// clamps to the int16 range.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			off := i*frameBytes + ch*2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		avg := clamp16(sum / int32(channels))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(avg))
	}
	return out
}

// StereoToMono is Downmix for two channels.
func StereoToMono(pcm []byte) []byte {
	return Downmix(pcm, 2)
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(interpolated))
	}
	return out
}

// Float32 converts 16-bit mono PCM to float32 samples normalised to
// [-1.0, 1.0]. A trailing odd byte is ignored.
func Float32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return samples
}

// RMS returns the root-mean-square energy of 16-bit PCM in sample units
// (0–32767). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
