package hpf

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCompressHeader(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x00},
		{0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0xAB}, 1000),
	}

	for _, in := range inputs {
		blob := Compress(in)
		if len(blob) < 4 {
			t.Fatalf("Compress(%d bytes) produced %d bytes, want at least 4", len(in), len(blob))
		}
		if [4]byte(blob[:4]) != Magic {
			t.Errorf("Compress(%d bytes) header = % X, want % X", len(in), blob[:4], Magic)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	// The empty stream is just the path to the terminator leaf: eight left
	// steps to node 255, one right step to leaf 512, zero-padded.
	want := []byte{0x55, 0xAA, 0x02, 0xFF, 0x00, 0x01}

	blob := Compress(nil)
	if !bytes.Equal(blob, want) {
		t.Fatalf("Compress(nil) = % X, want % X", blob, want)
	}

	out, err := Decompress(blob)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Decompress of empty blob yielded %d bytes, want 0", len(out))
	}
}

func TestRoundTripSmall(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	out, err := Decompress(Compress(in))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("round trip = % X, want % X", out, in)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name  string
		input []byte
	}{
		{"single byte", []byte{0x42}},
		{"all byte values", func() []byte {
			b := make([]byte, 256)
			for i := range b {
				b[i] = byte(i)
			}
			return b
		}()},
		{"repeated byte", bytes.Repeat([]byte{0x00}, 4096)},
		{"two alternating", bytes.Repeat([]byte{0x55, 0xAA}, 2048)},
		{"random 32k", func() []byte {
			b := make([]byte, 32*1024)
			rng.Read(b)
			return b
		}()},
		{"skewed distribution", func() []byte {
			b := make([]byte, 8192)
			for i := range b {
				if rng.Intn(10) == 0 {
					b[i] = byte(rng.Intn(256))
				} else {
					b[i] = 0x20
				}
			}
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := Compress(tt.input)
			out, err := Decompress(blob)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, tt.input) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(out), len(tt.input))
			}
		})
	}
}

func TestRecompressionFixedPoint(t *testing.T) {
	// The tree update is deterministic, so decompressing a blob and
	// compressing the result must reproduce the blob byte-for-byte.
	rng := rand.New(rand.NewSource(2))
	raw := make([]byte, 10000)
	for i := range raw {
		raw[i] = byte(rng.Intn(16)) // compressible
	}

	blob := Compress(raw)
	decoded, err := Decompress(blob)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	again := Compress(decoded)

	if !bytes.Equal(again, blob) {
		t.Errorf("recompression diverged: %d vs %d bytes", len(again), len(blob))
	}
}

func TestTrailingPaddingIgnored(t *testing.T) {
	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	blob := Compress(in)

	// Extra bytes after the terminator are padding as far as the decoder
	// is concerned.
	blob = append(blob, 0x00, 0xFF, 0x12)

	out, err := Decompress(blob)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("round trip with padding = % X, want % X", out, in)
	}
}

func TestDecompressMalformed(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"short", []byte{0x55, 0xAA}},
		{"bad magic", []byte{0x55, 0xAA, 0x03, 0xFF, 0x00, 0x01}},
		{"header only", []byte{0x55, 0xAA, 0x02, 0xFF}},
		{"truncated stream", []byte{0x55, 0xAA, 0x02, 0xFF, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.blob); err == nil {
				t.Errorf("Decompress(% X) succeeded, want error", tt.blob)
			}
		})
	}
}

func TestTreeInit(t *testing.T) {
	tree := newCodeTree()

	for i := uint16(0); i < 256; i++ {
		if tree.left[i] != 2*i+1 || tree.right[i] != 2*i+2 {
			t.Fatalf("node %d children = (%d, %d), want (%d, %d)",
				i, tree.left[i], tree.right[i], 2*i+1, 2*i+2)
		}
	}
	for i := uint16(1); i <= 512; i++ {
		if tree.parent[i] != (i-1)/2 {
			t.Fatalf("parent[%d] = %d, want %d", i, tree.parent[i], (i-1)/2)
		}
	}
}

func BenchmarkDecompress(b *testing.B) {
	raw := make([]byte, 64*1024)
	for i := range raw {
		raw[i] = byte(i % 7)
	}
	blob := Compress(raw)
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Decompress(blob); err != nil {
			b.Fatal(err)
		}
	}
}
