package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
)

const blockSize = aes.BlockSize

// ocb2 is OCB2 over AES-128 as used by Mumble clients. The datagram header is
// the low byte of the IV followed by the first 3 bytes of the tag.
type ocb2 struct {
	block cipher.Block
}

func newOCB2(key []byte) (*ocb2, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ocb2{block: block}, nil
}

func (o *ocb2) overhead() int { return 4 }

func (o *ocb2) wireBits() uint { return 8 }

func (o *ocb2) wireCounter(packet []byte) uint64 { return uint64(packet[0]) }

func (o *ocb2) seal(dst []byte, iv *[16]byte, plain []byte) []byte {
	whole, out := grow(dst, 4+len(plain))
	var tag [blockSize]byte
	o.encrypt(out[4:], plain, iv[:], &tag, true)
	out[0] = iv[0]
	copy(out[1:4], tag[:3])
	return whole
}

func (o *ocb2) open(dst []byte, iv *[16]byte, packet []byte) ([]byte, bool) {
	whole, out := grow(dst, len(packet)-4)
	var tag [blockSize]byte
	ok := o.decrypt(out, packet[4:], iv[:], &tag)
	if !ok || subtle.ConstantTimeCompare(tag[:3], packet[1:4]) != 1 {
		return nil, false
	}
	return whole, true
}

// encrypt runs OCB2 over plain into dst. When the penultimate block could
// be used for the XEX* forgery (all zero except its last byte), modify
// flips its first bit; otherwise encrypt reports failure.
func (o *ocb2) encrypt(dst, plain, nonce []byte, tag *[blockSize]byte, modify bool) bool {
	var checksum, delta, tmp, pad [blockSize]byte
	success := true

	o.block.Encrypt(delta[:], nonce)

	for len(plain) > blockSize {
		flip := false
		if len(plain)-blockSize <= blockSize {
			var sum byte
			for i := 0; i < blockSize-1; i++ {
				sum |= plain[i]
			}
			if sum == 0 {
				if modify {
					flip = true
				} else {
					success = false
				}
			}
		}

		times2(&delta)
		copy(tmp[:], plain[:blockSize])
		if flip {
			tmp[0] ^= 1
		}
		xorBlock(&checksum, &checksum, &tmp)
		xorBlock(&tmp, &tmp, &delta)
		o.block.Encrypt(tmp[:], tmp[:])
		xorInto(dst[:blockSize], tmp[:], delta[:])

		plain = plain[blockSize:]
		dst = dst[blockSize:]
	}

	n := len(plain)
	times2(&delta)
	tmp = [blockSize]byte{}
	tmp[blockSize-1] = byte(n * 8)
	xorBlock(&tmp, &tmp, &delta)
	o.block.Encrypt(pad[:], tmp[:])
	copy(tmp[:], plain)
	copy(tmp[n:], pad[n:])
	xorBlock(&checksum, &checksum, &tmp)
	xorBlock(&tmp, &pad, &tmp)
	copy(dst, tmp[:n])

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	o.block.Encrypt(tag[:], tmp[:])

	return success
}

// decrypt reverses encrypt. It fails when the final block decrypts to the
// value an XEX* forgery would produce.
func (o *ocb2) decrypt(dst, encrypted, nonce []byte, tag *[blockSize]byte) bool {
	var checksum, delta, tmp, pad [blockSize]byte
	success := true

	o.block.Encrypt(delta[:], nonce)

	for len(encrypted) > blockSize {
		times2(&delta)
		xorInto(tmp[:], delta[:], encrypted[:blockSize])
		o.block.Decrypt(tmp[:], tmp[:])
		xorInto(dst[:blockSize], delta[:], tmp[:])
		xorInto(checksum[:], checksum[:], dst[:blockSize])

		encrypted = encrypted[blockSize:]
		dst = dst[blockSize:]
	}

	n := len(encrypted)
	times2(&delta)
	tmp = [blockSize]byte{}
	tmp[blockSize-1] = byte(n * 8)
	xorBlock(&tmp, &tmp, &delta)
	o.block.Encrypt(pad[:], tmp[:])
	tmp = [blockSize]byte{}
	copy(tmp[:], encrypted)
	xorBlock(&tmp, &tmp, &pad)
	xorBlock(&checksum, &checksum, &tmp)
	copy(dst, tmp[:n])

	if subtle.ConstantTimeCompare(tmp[:blockSize-1], delta[:blockSize-1]) == 1 {
		success = false
	}

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	o.block.Encrypt(tag[:], tmp[:])

	return success
}

// times2 doubles b in GF(2^128), big-endian
func times2(b *[blockSize]byte) {
	carry := b[0] >> 7
	for i := 0; i < blockSize-1; i++ {
		b[i] = b[i]<<1 | b[i+1]>>7
	}
	b[blockSize-1] = b[blockSize-1]<<1 ^ carry*0x87
}

// times3 sets b to 3*b in GF(2^128)
func times3(b *[blockSize]byte) {
	orig := *b
	times2(b)
	xorBlock(b, b, &orig)
}

func xorBlock(dst, a, b *[blockSize]byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

func xorInto(dst, a, b []byte) {
	for i := 0; i < blockSize; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// grow extends dst by n bytes, returning the whole slice and the new tail
func grow(dst []byte, n int) (whole, tail []byte) {
	total := len(dst) + n
	if cap(dst) < total {
		whole = make([]byte, total)
		copy(whole, dst)
	} else {
		whole = dst[:total]
	}
	return whole, whole[len(dst):]
}
