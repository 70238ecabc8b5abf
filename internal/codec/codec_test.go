package codec

import (
	"bytes"
	"testing"
)

func TestIdentityCodecRoundTrip(t *testing.T) {
	c := IdentityCodec{}
	src := []byte{1, 2, 3, 4, 5}

	packed, err := PackN(c, src)
	if err != nil {
		t.Fatalf("PackN failed: %v", err)
	}
	if !bytes.Equal(packed, src) {
		t.Errorf("IdentityCodec.Pack altered data: got %v, want %v", packed, src)
	}

	unpacked, err := UnpackN(c, packed)
	if err != nil {
		t.Fatalf("UnpackN failed: %v", err)
	}
	if !bytes.Equal(unpacked, src) {
		t.Errorf("round trip mismatch: got %v, want %v", unpacked, src)
	}
}

func TestIdentityCodecWidth(t *testing.T) {
	if w := (IdentityCodec{}).Width(); w != 1 {
		t.Errorf("Width() = %d, want 1", w)
	}
}

func TestUnpackNRejectsMisalignedLength(t *testing.T) {
	c := doubleWidthCodec{}
	_, err := UnpackN(c, []byte{1, 2, 3})
	if err == nil {
		t.Error("expected error for encoded length not a multiple of width")
	}
}

// doubleWidthCodec is a test-only codec with Width()==2, used to exercise
// UnpackN's alignment check without a real expansion codec.
type doubleWidthCodec struct{}

func (doubleWidthCodec) Width() int { return 2 }

func (doubleWidthCodec) Pack(src []byte) ([]byte, error) {
	out := make([]byte, len(src)*2)
	for i, b := range src {
		out[i*2] = b
		out[i*2+1] = 0
	}
	return out, nil
}

func (doubleWidthCodec) Unpack(encoded []byte) ([]byte, error) {
	out := make([]byte, len(encoded)/2)
	for i := range out {
		out[i] = encoded[i*2]
	}
	return out, nil
}

func TestDoubleWidthCodecRoundTrip(t *testing.T) {
	c := doubleWidthCodec{}
	src := []byte{10, 20, 30}

	packed, err := PackN(c, src)
	if err != nil {
		t.Fatalf("PackN failed: %v", err)
	}
	if len(packed) != len(src)*2 {
		t.Fatalf("packed length = %d, want %d", len(packed), len(src)*2)
	}

	unpacked, err := UnpackN(c, packed)
	if err != nil {
		t.Fatalf("UnpackN failed: %v", err)
	}
	if !bytes.Equal(unpacked, src) {
		t.Errorf("round trip mismatch: got %v, want %v", unpacked, src)
	}
}
