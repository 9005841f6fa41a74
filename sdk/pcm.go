// Package sdk is the client-side voice pipeline: audio codec, playback
// scheduling, microphone capture, and the transports that connect a
// tutoring client either to the gateway or straight to the provider.
package sdk

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// InputSampleRate is the microphone stream rate sent upstream.
	InputSampleRate = 16000
	// OutputSampleRate is the tutor speech rate received from upstream.
	OutputSampleRate = 24000

	bytesPerSample = 2
)

// EncodePCM16 converts float samples in [-1, 1] to little-endian PCM16
// bytes. Out-of-range samples are clamped, not wrapped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes back to float samples.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
	}
	out := make([]float32, len(data)/bytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// DecodePCM16Channels de-interleaves a multi-channel PCM16 buffer into
// one float slice per channel.
func DecodePCM16Channels(data []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count %d out of range", channels)
	}
	frameSize := channels * bytesPerSample
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("pcm16 payload length %d is not a multiple of the %d-byte frame", len(data), frameSize)
	}
	interleaved, err := DecodePCM16(data)
	if err != nil {
		return nil, err
	}
	frames := len(interleaved) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
		for f := 0; f < frames; f++ {
			out[c][f] = interleaved[f*channels+c]
		}
	}
	return out, nil
}

// EncodeAudioChunk packages float samples as the base64 payload used on
// the wire.
func EncodeAudioChunk(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodeAudioChunk is the inverse of EncodeAudioChunk.
func DecodeAudioChunk(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio chunk: %w", err)
	}
	return DecodePCM16(raw)
}

// PCMDuration reports how long a mono PCM16 buffer plays at the given
// sample rate.
func PCMDuration(nbytes, sampleRate int) time.Duration {
	if sampleRate <= 0 || nbytes <= 0 {
		return 0
	}
	samples := nbytes / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
