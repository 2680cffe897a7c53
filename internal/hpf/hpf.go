// Package hpf implements the adaptive Huffman codec used by HPF image
// blobs. The coding tree is reorganized after every symbol by encoder and
// decoder in lockstep, so no code table is ever transmitted; fidelity of
// the shared update routine is what makes legacy assets round-trip
// byte-for-byte.
package hpf

import (
	"errors"
	"fmt"
)

// Magic is the 4-byte header that opens every HPF blob.
var Magic = [4]byte{0x55, 0xAA, 0x02, 0xFF}

// ErrMalformedFrame is returned when a blob does not carry the HPF header
// or its bit stream ends before the terminator symbol.
var ErrMalformedFrame = errors.New("hpf: malformed frame")

// Node numbering: 0..255 are internal nodes (0 is the root), 256..511 hold
// the byte symbols, and 512 is the end-of-stream leaf. A node id above 0xFF
// is therefore always a leaf, and its symbol is id - 0x100.
const (
	leafBase   = 0x100
	terminator = 0x100 // symbol value of the end-of-stream leaf
	rootNode   = 0
)

// codeTree is the mutable coding tree, kept as three parallel index tables
// rather than pointer nodes. The parent table has 513 slots: the client
// initializes parents for child ids 1..512 and never walks past internal
// node 255, so the extra headroom is part of the format and is kept as-is.
type codeTree struct {
	left   [256]uint16
	right  [256]uint16
	parent [513]uint16
}

func newCodeTree() *codeTree {
	t := &codeTree{}
	for i := uint16(0); i < 256; i++ {
		t.left[i] = 2*i + 1
		t.right[i] = 2*i + 2
		t.parent[2*i+1] = i
		t.parent[2*i+2] = i
	}
	return t
}

// update reorganizes the tree after visiting leaf a. It is a semi-splay:
// walking from the leaf toward the root two levels at a time, the visited
// node exchanges places with its uncle, halving the depth of the active
// path. Both codec directions run this exact routine after every symbol.
func (t *codeTree) update(a uint16) {
	for a != rootNode {
		c := t.parent[a]
		if c == rootNode {
			break
		}
		d := t.parent[c]

		// Swap a with the child of d on the other side of c.
		b := t.left[d]
		if b == c {
			b = t.right[d]
			t.right[d] = a
		} else {
			t.left[d] = a
		}
		if t.left[c] == a {
			t.left[c] = b
		} else {
			t.right[c] = b
		}
		t.parent[a] = d
		t.parent[b] = c

		a = d
	}
}

// bitReader consumes payload bits LSB-first within each byte.
type bitReader struct {
	data []byte
	pos  int  // byte index
	bit  uint // bit index 0..7
}

func (r *bitReader) next() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: bit stream ended before terminator", ErrMalformedFrame)
	}
	b := (r.data[r.pos] >> r.bit) & 1
	r.bit++
	if r.bit == 8 {
		r.bit = 0
		r.pos++
	}
	return b, nil
}

// bitWriter packs bits LSB-first into bytes.
type bitWriter struct {
	data []byte
	bit  uint
}

func (w *bitWriter) put(b byte) {
	if w.bit == 0 {
		w.data = append(w.data, 0)
	}
	if b != 0 {
		w.data[len(w.data)-1] |= 1 << w.bit
	}
	w.bit = (w.bit + 1) & 7
}

// Decompress decodes an HPF blob into its raw bytes. The blob must begin
// with the 4-byte header; bits past the terminator symbol are ignored as
// padding. Output grows as needed regardless of the encoded length.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) < len(Magic) {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header", ErrMalformedFrame, len(blob))
	}
	if [4]byte(blob[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad header % X", ErrMalformedFrame, blob[:4])
	}

	tree := newCodeTree()
	r := &bitReader{data: blob[4:]}
	out := make([]byte, 0, len(blob)*2)

	for {
		node := uint16(rootNode)
		for node <= 0xFF {
			bit, err := r.next()
			if err != nil {
				return nil, err
			}
			if bit != 0 {
				node = tree.right[node]
			} else {
				node = tree.left[node]
			}
		}

		sym := node - leafBase
		if sym == terminator {
			return out, nil
		}

		out = append(out, byte(sym))
		tree.update(node)
	}
}

// Compress encodes raw bytes as an HPF blob: the 4-byte header followed by
// the code bits for every input byte and one terminator symbol, zero-padded
// to a byte boundary. Compress cannot fail on any input.
func Compress(data []byte) []byte {
	tree := newCodeTree()
	w := &bitWriter{data: make([]byte, 0, len(data)/2+8)}

	for _, b := range data {
		leaf := uint16(b) + leafBase
		emitPath(tree, w, leaf)
		tree.update(leaf)
	}
	emitPath(tree, w, leafBase+terminator)

	blob := make([]byte, 0, len(Magic)+len(w.data))
	blob = append(blob, Magic[:]...)
	return append(blob, w.data...)
}

// emitPath writes the root-to-leaf code for leaf, 0 for a left step and 1
// for a right step. The path is recovered bottom-up through the parent
// table and replayed in reverse.
func emitPath(tree *codeTree, w *bitWriter, leaf uint16) {
	// 9 bits covers the deepest path in the initial tree; splaying only
	// ever shortens the active path, but a moved subtree can sit deeper,
	// so the stack stays generously sized.
	var path [513]byte
	n := 0

	for node := leaf; node != rootNode; {
		p := tree.parent[node]
		if tree.right[p] == node {
			path[n] = 1
		} else {
			path[n] = 0
		}
		n++
		node = p
	}

	for i := n - 1; i >= 0; i-- {
		w.put(path[i])
	}
}
