// Package checksum computes the 32-bit container checksum. Containers keep
// it in memory and compare it on Save to skip rewriting unchanged data; it
// is not written into the container files and is not checked on load.
package checksum

import "math/bits"

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
)

// Sum32 computes the MurmurHash3 x86_32 hash of data with the given seed,
// matching the reference `murmur3_x86_32` used by the original container
// file format.
func Sum32(data []byte, seed uint32) uint32 {
	h := seed
	n := len(data)
	nblocks := n / 4

	for i := 0; i < nblocks; i++ {
		k := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		k *= c1
		k = bits.RotateLeft32(k, 15)
		k *= c2

		h ^= k
		h = bits.RotateLeft32(h, 13)
		h = h*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2
		h ^= k1
	}

	h ^= uint32(n)
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16

	return h
}

// Combine folds two independently computed checksums (the header hash and
// the child-name-array hash) into one, so that a change in either portion
// of a container changes the stored checksum. The original C
// implementation computed both hashes but only kept the second, silently
// discarding protection over the header; Combine exists to fix that while
// keeping both hashes cheap 32-bit values.
func Combine(a, b uint32) uint32 {
	x := uint64(a) ^ (uint64(b) << 32 | uint64(b))
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return uint32(x) ^ uint32(x>>32)
}
