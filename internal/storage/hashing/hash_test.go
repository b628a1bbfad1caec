package hashing

import "testing"

func TestDigest128Deterministic(t *testing.T) {
	a := Digest128([]byte("hello"))
	b := Digest128([]byte("hello"))
	if a != b {
		t.Fatalf("digest not deterministic: %s != %s", a, b)
	}
}

func TestDigest128DistinguishesInput(t *testing.T) {
	a := Digest128([]byte("hello"))
	b := Digest128([]byte("hellp"))
	if a == b {
		t.Fatalf("digest collided for distinct input")
	}
}

func TestDigest128Length(t *testing.T) {
	d := Digest128([]byte("x"))
	if len(d) != 32 { // 16 bytes hex-encoded
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(d), d)
	}
}
