// Package beep plays the short ticks that mark a session becoming ready
// and stopping.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const (
	sampleRate = 44100

	// start: high pitch, snappy
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// end: a little lower, slower decay
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40
)

// tick renders an exponentially decaying sine, interleaved over channels.
func tick(freq, duration, volume, decay float64, channels int) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * math.Exp(-t*decay))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return samples
}
