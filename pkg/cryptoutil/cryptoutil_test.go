package cryptoutil

import (
	"bytes"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash(HashSHA256, []byte("hello"), []byte("world"))
	b := Hash(HashSHA256, []byte("hello"), []byte("world"))
	if !bytes.Equal(a, b) {
		t.Fatalf("hash is not deterministic")
	}
	c := Hash(HashSHA256, []byte("hello"), []byte("World"))
	if bytes.Equal(a, c) {
		t.Fatalf("hash collided on different input")
	}
}

func TestKeyPrefixRoundTrip(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	key := PrefixedKey(CurveEd25519, OriginSoftware, raw)
	curve, origin, out, err := UnprefixKey(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if curve != CurveEd25519 || origin != OriginSoftware || !bytes.Equal(out, raw) {
		t.Fatalf("round trip mismatch: curve=%v origin=%v raw=%v", curve, origin, out)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBlob([]byte("address")).WriteUint64(42).WriteByte(7).WriteBlob([]byte{})

	r := NewReader(w.Bytes())
	blob, err := r.ReadBlob()
	if err != nil || string(blob) != "address" {
		t.Fatalf("blob mismatch: %v %v", blob, err)
	}
	n, err := r.ReadUint64()
	if err != nil || n != 42 {
		t.Fatalf("uint64 mismatch: %v %v", n, err)
	}
	b, err := r.ReadByte()
	if err != nil || b != 7 {
		t.Fatalf("byte mismatch: %v %v", b, err)
	}
	empty, err := r.ReadBlob()
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty blob, got %v %v", empty, err)
	}
}
