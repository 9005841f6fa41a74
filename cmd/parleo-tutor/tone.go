package main

import (
	"math"
	"time"

	"github.com/parleo-app/parleo/sdk"
)

// testTone renders a short sine sweep for checking the output device
// without opening a session.
func testTone(freq float64, dur time.Duration) []byte {
	n := int(float64(sdk.OutputSampleRate) * dur.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(sdk.OutputSampleRate)
		// fade in/out over 20ms to avoid clicks
		env := 1.0
		edge := 0.02
		if t < edge {
			env = t / edge
		} else if rest := dur.Seconds() - t; rest < edge {
			env = rest / edge
		}
		samples[i] = float32(0.4 * env * math.Sin(2*math.Pi*freq*t))
	}
	return sdk.EncodePCM16(samples)
}
