package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xFF, 0x00, 0x7F, 0x80},
		bytes.Repeat([]byte{0xAB, 0xCD}, 1024),
	}
	for _, in := range cases {
		out, err := Decode(Encode(in))
		if err != nil {
			t.Fatalf("Decode(Encode(%d bytes)) error: %v", len(in), err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch for %d bytes", len(in))
		}
	}
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	if _, err := Decode("not base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecodePCM16(t *testing.T) {
	// 480 samples at 24kHz mono => 20ms.
	data := make([]byte, 960)
	buf, err := DecodePCM16(data, 24000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	if buf.Duration != 20*time.Millisecond {
		t.Fatalf("Duration = %v, want 20ms", buf.Duration)
	}
	if buf.SampleRate != 24000 || buf.Channels != 1 {
		t.Fatalf("buffer format = %d/%d, want 24000/1", buf.SampleRate, buf.Channels)
	}
}

func TestDecodePCM16Malformed(t *testing.T) {
	var decodeErr *DecodeError

	if _, err := DecodePCM16(nil, 24000, 1); !errors.As(err, &decodeErr) {
		t.Fatalf("empty payload: got %v, want DecodeError", err)
	}
	if _, err := DecodePCM16([]byte{0x01}, 24000, 1); !errors.As(err, &decodeErr) {
		t.Fatalf("odd length: got %v, want DecodeError", err)
	}
	if _, err := DecodePCM16(make([]byte, 961), 24000, 1); !errors.As(err, &decodeErr) {
		t.Fatalf("truncated payload: got %v, want DecodeError", err)
	}
}

func TestPCM16FromFloat32(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.0, -1.0, 2.0, -2.0}
	data := PCM16FromFloat32(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), len(samples)*2)
	}

	want := []int16{0, 16384, -16384, 32767, -32768, 32767, -32768}
	for i, w := range want {
		got := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		if got != w {
			t.Fatalf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestPCM16FromFloat32Rounds(t *testing.T) {
	// 0.25 * 32768 = 8192 exactly; a hair above must round, not truncate.
	data := PCM16FromFloat32([]float32{0.2500076})
	got := int16(uint16(data[0]) | uint16(data[1])<<8)
	if got != 8192 && got != 8193 {
		t.Fatalf("rounded sample = %d, want 8192 or 8193", got)
	}
}

func TestDurationOf(t *testing.T) {
	if got := DurationOf(960, 24000, 1); got != 20*time.Millisecond {
		t.Fatalf("DurationOf(960) = %v, want 20ms", got)
	}
	if got := DurationOf(0, 24000, 1); got != 0 {
		t.Fatalf("DurationOf(0) = %v, want 0", got)
	}
	if got := DurationOf(640, 16000, 1); got != 20*time.Millisecond {
		t.Fatalf("DurationOf(640 @16k) = %v, want 20ms", got)
	}
}
