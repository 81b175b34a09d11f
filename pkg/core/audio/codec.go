// Package audio converts between the model's wire audio format (base64
// PCM16) and the buffers the kiosk captures and plays, and schedules
// gapless playback of inbound assistant audio.
package audio

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRateHz is the microphone capture rate sent to the model.
	CaptureSampleRateHz = 16000
	// PlaybackSampleRateHz is the rate of assistant audio from the model.
	PlaybackSampleRateHz = 24000

	bytesPerSample = 2

	// CaptureMimeType tags outbound microphone frames.
	CaptureMimeType = "audio/pcm;rate=16000"
)

// DecodeError reports a malformed or truncated PCM payload.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "audio decode: " + e.Reason
}

// Encode encodes raw bytes to standard base64 for the wire.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode. Round trip is lossless for all byte sequences.
func Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return data, nil
}

// Buffer is a decoded, playable chunk of PCM16 audio.
type Buffer struct {
	Data       []byte // little-endian PCM16
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// DecodePCM16 interprets data as 16-bit little-endian PCM at the given rate
// and channel count. Zero-length or odd-length input is malformed.
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	if len(data)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("truncated payload (%d bytes)", len(data))}
	}
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRateHz
	}
	if channels <= 0 {
		channels = 1
	}
	return &Buffer{
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   DurationOf(len(data), sampleRate, channels),
	}, nil
}

// PCM16FromFloat32 converts native float samples in [-1, 1] to packed
// little-endian PCM16. Values are scaled by 32768, rounded, and clamped.
func PCM16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := int32(math.Round(float64(s) * 32768))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DurationOf returns the play time of n PCM16 bytes at the given rate.
func DurationOf(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 || n <= 0 {
		return 0
	}
	samples := n / bytesPerSample / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
