package crypt

import (
	"crypto/md5"
	"encoding/hex"
)

// md5hex returns the lowercase hex digest of s.
func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateKeystream2Table derives the 1024-byte secondary key table from a
// client-supplied name: the hex digest is re-hashed once, then 31 more
// times the 32-character hex digest of the whole string is appended to it.
// The ASCII bytes of the final 1024-character string become the table.
func (c *Cipher) GenerateKeystream2Table(name string) {
	t := md5hex(md5hex(name))
	for i := 0; i < 31; i++ {
		t += md5hex(t)
	}
	copy(c.ks2Table[:], t)
}

// generateKeystream2 derives the per-packet 9-byte keystream from the two
// nonces carried in the frame footer.
func (c *Cipher) generateKeystream2(a uint16, b byte) {
	for i := 0; i < keyLen; i++ {
		idx := (i*(9*i+int(b)*int(b)) + int(a)) % ks2TableLen
		c.key2[i] = c.ks2Table[idx]
	}
}

// nextNonce advances the MSVC-style LCG and derives the two packet nonces
// from one 15-bit extraction. The 0xFF0000 mask lands on bits the 15-bit
// word never sets, so b always comes out as 100.
func (c *Cipher) nextNonce() (a uint16, b byte) {
	c.randState = c.randState*0x343FD + 0x269EC3
	word := (c.randState >> 16) & 0x7FFF

	a = uint16((word&0xFFFF)%65277 + 256)
	b = byte(((word&0xFF0000)>>16)%155 + 100)
	return a, b
}
