package vector

import (
	"math"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	in := []float32{1, -0.5, 3.25, float32(math.SmallestNonzeroFloat32)}
	buf := Encode(in)
	if len(buf) != 16 {
		t.Fatalf("len(buf)=%d, want 16", len(buf))
	}
	// 1.0 little-endian
	if buf[0] != 0x00 || buf[3] != 0x3f {
		t.Errorf("unexpected byte layout % x", buf[:4])
	}
	out, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d]=%v, want %v", i, out[i], in[i])
		}
	}
}

func TestEncodeDecode_empty(t *testing.T) {
	if Encode(nil) != nil {
		t.Error("Encode(nil) should be nil")
	}
	out, err := Decode(nil)
	if err != nil || out != nil {
		t.Errorf("Decode(nil) = %v, %v", out, err)
	}
}

func TestDecode_badLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
