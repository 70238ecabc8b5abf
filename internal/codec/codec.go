// Package codec defines the byte-widening codec boundary between
// container headers/name records and the underlying block file.
//
// Every on-disk header or fixed-width name record is packed through a
// symmetric pack/unpack pair before being written, and unpacked on load.
// The real codec is an external collaborator (an error-correcting or
// parity-expanding encoder); this package defines the interface it must
// satisfy plus a passthrough implementation for callers that have no
// such codec configured.
package codec

import "fmt"

// Codec widens a stream of source bytes into a stream of fixed-size
// symbols on Pack, and inverts that on Unpack. Width reports the
// compile-time expansion factor W: Pack produces len(src)*Width() bytes,
// and Unpack expects input sized accordingly.
type Codec interface {
	// Pack widens n source bytes into n*Width() encoded bytes.
	Pack(src []byte) ([]byte, error)

	// Unpack inverts Pack: dst has length len(encoded)/Width().
	Unpack(encoded []byte) ([]byte, error)

	// Width returns the number of encoded bytes produced per source byte.
	Width() int
}

// IdentityCodec is a width-1 passthrough codec: Pack and Unpack are both
// no-ops. It stands in for the external error-correcting codec in
// configurations that do not need symbol expansion.
type IdentityCodec struct{}

// Width always returns 1 for IdentityCodec.
func (IdentityCodec) Width() int { return 1 }

// Pack returns a copy of src unchanged.
func (IdentityCodec) Pack(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Unpack returns a copy of encoded unchanged.
func (IdentityCodec) Unpack(encoded []byte) ([]byte, error) {
	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}

// PackN packs src and verifies the result has the expected width-scaled
// length, returning an error if the codec produced a mismatched size.
func PackN(c Codec, src []byte) ([]byte, error) {
	out, err := c.Pack(src)
	if err != nil {
		return nil, err
	}
	want := len(src) * c.Width()
	if len(out) != want {
		return nil, fmt.Errorf("codec: Pack produced %d bytes, want %d (width %d)", len(out), want, c.Width())
	}
	return out, nil
}

// UnpackN unpacks encoded and verifies the result has the expected
// width-scaled length.
func UnpackN(c Codec, encoded []byte) ([]byte, error) {
	if len(encoded)%c.Width() != 0 {
		return nil, fmt.Errorf("codec: encoded length %d not a multiple of width %d", len(encoded), c.Width())
	}
	out, err := c.Unpack(encoded)
	if err != nil {
		return nil, err
	}
	want := len(encoded) / c.Width()
	if len(out) != want {
		return nil, fmt.Errorf("codec: Unpack produced %d bytes, want %d (width %d)", len(out), want, c.Width())
	}
	return out, nil
}
