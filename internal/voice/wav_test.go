package voice

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeaderFields(t *testing.T) {
	samples := []int16{1, -1, 100, -100}
	data := encodeWAV(samples, 16000)

	if string(data[0:4]) != "RIFF" {
		t.Fatalf("missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		t.Fatalf("missing WAVE header")
	}
	if string(data[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk")
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != 16000 {
		t.Fatalf("got sample rate %d, want 16000", sampleRate)
	}
	if string(data[36:40]) != "data" {
		t.Fatalf("missing data chunk")
	}
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if int(dataSize) != len(samples)*2 {
		t.Fatalf("got data size %d, want %d", dataSize, len(samples)*2)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("got total length %d, want %d", len(data), 44+len(samples)*2)
	}
}
