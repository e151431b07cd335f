package packet

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"stega_backend/bch"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
	return c
}

// stubECC lets tests force a decode outcome.
type stubECC struct {
	eccBytes int
	result   int
}

func (s stubECC) Encode(data []byte) ([]byte, error) { return make([]byte, s.eccBytes), nil }
func (s stubECC) DecodeInPlace(data, ecc []byte) int  { return s.result }
func (s stubECC) ECCBytes() int                       { return s.eccBytes }

func TestNew_RejectsWrongWidth(t *testing.T) {
	if _, err := New(stubECC{eccBytes: 4}); err == nil {
		t.Error("New() with 4 ECC bytes should fail, packet would be 92 bits")
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestEncodePacket_Length(t *testing.T) {
	c := newTestCodec(t)

	for _, msg := range []string{"A", "ab", "XYZ", "1234", "aB3dE", "zzzzzz", "Stega07"} {
		bits, err := c.EncodePacket(msg)
		if err != nil {
			t.Fatalf("EncodePacket(%q) error = %v", msg, err)
		}
		if len(bits) != PacketBits {
			t.Errorf("EncodePacket(%q) length = %d, want %d", msg, len(bits), PacketBits)
		}
		for i, b := range bits[96:] {
			if b != 0 {
				t.Errorf("EncodePacket(%q) padding bit %d = %d, want 0", msg, i, b)
			}
		}
	}
}

func TestEncodePacket_DataBitsMSBFirst(t *testing.T) {
	c := newTestCodec(t)
	bits, err := c.EncodePacket("A")
	if err != nil {
		t.Fatalf("EncodePacket() error = %v", err)
	}

	// 'A' = 0x41, then six spaces (0x20).
	want := []uint8{0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0, 0}
	for i, b := range want {
		if bits[i] != b {
			t.Fatalf("bit %d = %d, want %d (bits %v)", i, bits[i], b, bits[:16])
		}
	}
}

func TestEncodePacket_Invalid(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name    string
		message string
	}{
		{"empty", ""},
		{"too long", "TOOLONGMSG"},
		{"eight characters", "ABCDEFGH"},
		{"multi-byte character", "héllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, err := c.EncodePacket(tt.message)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("EncodePacket(%q) error = %v, want ErrInvalidMessage", tt.message, err)
			}
			if bits != nil {
				t.Errorf("EncodePacket(%q) returned bits on error", tt.message)
			}
		})
	}
}

func TestEncodePacket_Deterministic(t *testing.T) {
	c := newTestCodec(t)
	a, _ := c.EncodePacket("Repeat1")
	b, _ := c.EncodePacket("Repeat1")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("EncodePacket() differs at bit %d", i)
		}
	}
}

func TestEncodePacket_PaddingEquivalence(t *testing.T) {
	c := newTestCodec(t)
	short, err := c.EncodePacket("AB")
	if err != nil {
		t.Fatalf("EncodePacket(AB) error = %v", err)
	}
	padded, err := c.EncodePacket("AB     ")
	if err != nil {
		t.Fatalf("EncodePacket(padded) error = %v", err)
	}
	for i := range short {
		if short[i] != padded[i] {
			t.Fatalf("packets differ at bit %d", i)
		}
	}

	msg, ok := c.DecodePacket(short)
	if !ok || msg != "AB" {
		t.Errorf("DecodePacket() = (%q, %v), want (\"AB\", true)", msg, ok)
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(1))

	for n := 1; n <= MessageLength; n++ {
		for trial := 0; trial < 20; trial++ {
			var sb strings.Builder
			for i := 0; i < n; i++ {
				sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
			}
			msg := sb.String()

			bits, err := c.EncodePacket(msg)
			if err != nil {
				t.Fatalf("EncodePacket(%q) error = %v", msg, err)
			}
			got, ok := c.DecodePacket(bits)
			if !ok || got != msg {
				t.Fatalf("round trip %q = (%q, %v)", msg, got, ok)
			}
		}
	}
}

func TestDecodePacket_CorrectsUpToT(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 300; trial++ {
		bits, _ := c.EncodePacket("Hidden7")
		flips := 1 + trial%BCHBits
		for _, p := range rng.Perm(PacketBits)[:flips] {
			bits[p] ^= 1
		}

		got, ok := c.DecodePacket(bits)
		if !ok || got != "Hidden7" {
			t.Fatalf("trial %d (%d flips): DecodePacket() = (%q, %v)", trial, flips, got, ok)
		}
	}
}

func TestDecodePacket_BeyondT(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(5))

	failures := 0
	const trials = 200
	for trial := 0; trial < trials; trial++ {
		bits, _ := c.EncodePacket("Secret1")
		// Flip only consulted, non-padding bits so every flip is a real error.
		for _, p := range rng.Perm(91)[:BCHBits+3] {
			bits[p] ^= 1
		}

		got, ok := c.DecodePacket(bits)
		if ok && got == "Secret1" {
			t.Fatalf("trial %d: %d errors still decoded to the original", trial, BCHBits+3)
		}
		if !ok {
			failures++
		}
	}

	if failures < trials*9/10 {
		t.Errorf("only %d/%d over-corrupted packets reported unrecoverable", failures, trials)
	}
}

func TestDecodePacket_IgnoresTrailingBits(t *testing.T) {
	c := newTestCodec(t)
	bits, _ := c.EncodePacket("Tail")

	bits[96], bits[99] = 1, 1
	bits = append(bits, 1, 1, 1)

	got, ok := c.DecodePacket(bits)
	if !ok || got != "Tail" {
		t.Errorf("DecodePacket() = (%q, %v), want (\"Tail\", true)", got, ok)
	}
}

func TestDecodePacket_TooShort(t *testing.T) {
	c := newTestCodec(t)
	bits, _ := c.EncodePacket("Short")

	if _, ok := c.DecodePacket(bits[:95]); ok {
		t.Error("DecodePacket(95 bits) ok = true, want false")
	}
	if got, ok := c.DecodePacket(bits[:96]); !ok || got != "Short" {
		t.Errorf("DecodePacket(96 bits) = (%q, %v), want (\"Short\", true)", got, ok)
	}
}

func TestDecodePacket_Uncorrectable(t *testing.T) {
	c, err := New(stubECC{eccBytes: 5, result: bch.Uncorrectable})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.DecodePacket(make([]uint8, PacketBits)); ok {
		t.Error("DecodePacket() ok = true for uncorrectable packet")
	}
}

func TestDecodePacket_InvalidUTF8(t *testing.T) {
	c, err := New(stubECC{eccBytes: 5, result: 0})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	bits := make([]uint8, PacketBits)
	for i := 0; i < 56; i++ {
		bits[i] = 1 // seven 0xFF bytes
	}
	if got, ok := c.DecodePacket(bits); ok {
		t.Errorf("DecodePacket(0xFF...) = (%q, true), want false", got)
	}
}

func TestBitsFromFloats(t *testing.T) {
	got := BitsFromFloats([]float32{0, 0.49, 0.5, 0.51, 1, -0.2, 1.3})
	want := []uint8{0, 0, 1, 1, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BitsFromFloats()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	floats := FloatsFromBits(want)
	if floats[2] != 1 || floats[0] != 0 {
		t.Errorf("FloatsFromBits() = %v", floats)
	}
}
