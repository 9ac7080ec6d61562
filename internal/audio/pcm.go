package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS returns the root-mean-square amplitude of 16-bit PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns how long n bytes of 16-bit mono PCM play at
// sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}

// Bytes returns the PCM size of d at sampleRate, rounded down to whole
// samples.
func Bytes(d time.Duration, sampleRate int) int {
	return int(int64(sampleRate)*int64(d)/int64(time.Second)) * 2
}
