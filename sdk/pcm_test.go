package sdk

import (
	"math"
	"testing"
	"time"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.99, -0.99}
	out, err := DecodePCM16(EncodePCM16(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > 1.0/32768 {
			t.Fatalf("sample %d: %v -> %v, error %v", i, in[i], out[i], d)
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	out, err := DecodePCM16(EncodePCM16([]float32{2.5, -3.0}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out[0] < 0.999 {
		t.Fatalf("positive overflow clamped to %v", out[0])
	}
	if out[1] > -0.999 {
		t.Fatalf("negative overflow clamped to %v", out[1])
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for odd-length payload")
	}
}

func TestDecodePCM16Channels(t *testing.T) {
	// two frames of stereo: L0 R0 L1 R1
	interleaved := EncodePCM16([]float32{0.1, -0.1, 0.2, -0.2})
	chans, err := DecodePCM16Channels(interleaved, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chans) != 2 || len(chans[0]) != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", len(chans), len(chans[0]))
	}
	want := [][]float32{{0.1, 0.2}, {-0.1, -0.2}}
	for c := range want {
		for f := range want[c] {
			if d := math.Abs(float64(chans[c][f] - want[c][f])); d > 1.0/32768 {
				t.Fatalf("channel %d frame %d off by %v", c, f, d)
			}
		}
	}

	if _, err := DecodePCM16Channels(interleaved[:6], 2); err == nil {
		t.Fatal("expected error for partial frame")
	}
	if _, err := DecodePCM16Channels(interleaved, 0); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestAudioChunkRoundTrip(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3}
	out, err := DecodeAudioChunk(EncodeAudioChunk(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > 1.0/32768 {
			t.Fatalf("sample %d off by %v", i, d)
		}
	}
}

func TestDecodeAudioChunkBadBase64(t *testing.T) {
	if _, err := DecodeAudioChunk("%%%"); err == nil {
		t.Fatal("expected base64 error")
	}
}

func TestPCMDuration(t *testing.T) {
	// 24000 Hz mono 16-bit: 48000 bytes per second
	if got := PCMDuration(48000, OutputSampleRate); got != time.Second {
		t.Fatalf("duration = %v, want 1s", got)
	}
	if got := PCMDuration(4800, OutputSampleRate); got != 100*time.Millisecond {
		t.Fatalf("duration = %v, want 100ms", got)
	}
	if got := PCMDuration(0, OutputSampleRate); got != 0 {
		t.Fatalf("duration = %v, want 0", got)
	}
}
