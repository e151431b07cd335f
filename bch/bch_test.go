package bch

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func newTestCode(t *testing.T) *BCH {
	t.Helper()
	code, err := New(137, 5)
	if err != nil {
		t.Fatalf("New(137, 5) error = %v", err)
	}
	return code
}

// flipBit flips bit p of the data||ecc bit stream.
func flipBit(data, ecc []byte, p int) {
	if p < len(data)*8 {
		data[p/8] ^= 1 << uint(7-p%8)
		return
	}
	q := p - len(data)*8
	ecc[q/8] ^= 1 << uint(7-q%8)
}

func TestNew_Parameters(t *testing.T) {
	code := newTestCode(t)

	if code.M() != 7 {
		t.Errorf("M() = %d, want 7", code.M())
	}
	if code.T() != 5 {
		t.Errorf("T() = %d, want 5", code.T())
	}
	if code.Polynomial() != 137 {
		t.Errorf("Polynomial() = %d, want 137", code.Polynomial())
	}
	if code.ECCBits() != 35 {
		t.Errorf("ECCBits() = %d, want 35", code.ECCBits())
	}
	if code.ECCBytes() != 5 {
		t.Errorf("ECCBytes() = %d, want 5", code.ECCBytes())
	}
	if code.MaxDataBits() != 92 {
		t.Errorf("MaxDataBits() = %d, want 92", code.MaxDataBits())
	}
}

func TestNew_InvalidPolynomial(t *testing.T) {
	tests := []struct {
		name string
		poly int
	}{
		{"zero", 0},
		{"negative", -137},
		{"degree too small", 0b111},
		{"no constant term", 0b1000},
		{"reducible", 0b1111},
		{"degree too large", 1 << 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.poly, 1)
			if !errors.Is(err, ErrInvalidPolynomial) {
				t.Errorf("New(%d, 1) error = %v, want ErrInvalidPolynomial", tt.poly, err)
			}
		})
	}
}

func TestNew_PrimitiveSmallField(t *testing.T) {
	// x^3 + x + 1 is primitive; GF(8) with t=1 is the Hamming(7,4) code.
	code, err := New(0b1011, 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if code.ECCBits() != 3 {
		t.Errorf("ECCBits() = %d, want 3", code.ECCBits())
	}
}

func TestNew_InvalidStrength(t *testing.T) {
	for _, strength := range []int{0, -1, 64, 100} {
		if _, err := New(137, strength); !errors.Is(err, ErrInvalidStrength) {
			t.Errorf("New(137, %d) error = %v, want ErrInvalidStrength", strength, err)
		}
	}
}

func TestEncode_DataTooLong(t *testing.T) {
	code := newTestCode(t)
	if _, err := code.Encode(make([]byte, 12)); !errors.Is(err, ErrDataTooLong) {
		t.Errorf("Encode(12 bytes) error = %v, want ErrDataTooLong", err)
	}
}

func TestEncode_ZeroDataHasZeroECC(t *testing.T) {
	code := newTestCode(t)
	ecc, err := code.Encode(make([]byte, 7))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(ecc, make([]byte, 5)) {
		t.Errorf("Encode(zeros) = %x, want all zero", ecc)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	code := newTestCode(t)
	data := []byte("Hello12")

	first, _ := code.Encode(data)
	second, _ := code.Encode(data)
	if !bytes.Equal(first, second) {
		t.Errorf("Encode() not deterministic: %x vs %x", first, second)
	}
	if first[4]&^code.eccMask != 0 {
		t.Errorf("padding bits of last ECC byte set: %08b", first[4])
	}
}

func TestEncode_Linear(t *testing.T) {
	code := newTestCode(t)
	a := []byte("ABCDEFG")
	b := []byte("1234567")
	sum := make([]byte, 7)
	for i := range sum {
		sum[i] = a[i] ^ b[i]
	}

	eccA, _ := code.Encode(a)
	eccB, _ := code.Encode(b)
	eccSum, _ := code.Encode(sum)
	for i := range eccSum {
		if eccA[i]^eccB[i] != eccSum[i] {
			t.Fatalf("ECC is not linear at byte %d: %x ^ %x != %x", i, eccA[i], eccB[i], eccSum[i])
		}
	}
}

func TestDecodeInPlace_Clean(t *testing.T) {
	code := newTestCode(t)
	data := []byte("Stega01")
	ecc, _ := code.Encode(data)

	if got := code.DecodeInPlace(data, ecc); got != 0 {
		t.Errorf("DecodeInPlace(clean) = %d, want 0", got)
	}
	if string(data) != "Stega01" {
		t.Errorf("data modified: %q", data)
	}
}

func TestDecodeInPlace_EverySingleBitError(t *testing.T) {
	code := newTestCode(t)
	original := []byte("aZ09bY8")
	cleanECC, _ := code.Encode(original)
	total := len(original)*8 + code.ECCBits()

	for p := 0; p < total; p++ {
		data := append([]byte(nil), original...)
		ecc := append([]byte(nil), cleanECC...)
		flipBit(data, ecc, p)

		if got := code.DecodeInPlace(data, ecc); got != 1 {
			t.Fatalf("bit %d: DecodeInPlace() = %d, want 1", p, got)
		}
		if !bytes.Equal(data, original) {
			t.Fatalf("bit %d: data = %q, want %q", p, data, original)
		}
	}
}

func TestDecodeInPlace_UpToT(t *testing.T) {
	code := newTestCode(t)
	rng := rand.New(rand.NewSource(42))
	total := 56 + code.ECCBits()

	for trial := 0; trial < 500; trial++ {
		original := make([]byte, 7)
		rng.Read(original)
		cleanECC, _ := code.Encode(original)

		errs := 1 + trial%code.T()
		data := append([]byte(nil), original...)
		ecc := append([]byte(nil), cleanECC...)
		for _, p := range rng.Perm(total)[:errs] {
			flipBit(data, ecc, p)
		}

		got := code.DecodeInPlace(data, ecc)
		if got != errs {
			t.Fatalf("trial %d: DecodeInPlace() = %d, want %d", trial, got, errs)
		}
		if !bytes.Equal(data, original) {
			t.Fatalf("trial %d: data = %x, want %x", trial, data, original)
		}
	}
}

func TestDecodeInPlace_PaddingBitsIgnored(t *testing.T) {
	code := newTestCode(t)
	data := []byte("pad0000")
	ecc, _ := code.Encode(data)

	// Bits 35..39 of the ECC stream are padding.
	ecc[4] ^= 0x07
	if got := code.DecodeInPlace(data, ecc); got != 0 {
		t.Errorf("DecodeInPlace() = %d, want 0 when only padding bits differ", got)
	}
}

func TestDecodeInPlace_BeyondT(t *testing.T) {
	code := newTestCode(t)
	rng := rand.New(rand.NewSource(7))
	total := 56 + code.ECCBits()

	uncorrectable := 0
	const trials = 300
	for trial := 0; trial < trials; trial++ {
		original := make([]byte, 7)
		rng.Read(original)
		cleanECC, _ := code.Encode(original)

		data := append([]byte(nil), original...)
		ecc := append([]byte(nil), cleanECC...)
		for _, p := range rng.Perm(total)[:code.T()+1] {
			flipBit(data, ecc, p)
		}

		got := code.DecodeInPlace(data, ecc)
		if got == Uncorrectable {
			uncorrectable++
			continue
		}
		// A miscorrection lands on a different codeword, never the original.
		if bytes.Equal(data, original) {
			t.Fatalf("trial %d: %d errors decoded back to the original", trial, code.T()+1)
		}
	}

	if uncorrectable < trials*9/10 {
		t.Errorf("only %d/%d blocks with t+1 errors reported uncorrectable", uncorrectable, trials)
	}
}

func TestDecodeInPlace_ShortECC(t *testing.T) {
	code := newTestCode(t)
	if got := code.DecodeInPlace(make([]byte, 7), make([]byte, 4)); got != Uncorrectable {
		t.Errorf("DecodeInPlace(short ecc) = %d, want Uncorrectable", got)
	}
}

func TestDecodeInPlace_ConcurrentUse(t *testing.T) {
	code := newTestCode(t)
	done := make(chan error, 8)

	for g := 0; g < 8; g++ {
		go func(seed int64) {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				original := make([]byte, 7)
				rng.Read(original)
				ecc, _ := code.Encode(original)
				data := append([]byte(nil), original...)
				flipBit(data, ecc, rng.Intn(91))
				if code.DecodeInPlace(data, ecc) != 1 || !bytes.Equal(data, original) {
					done <- errors.New("concurrent decode failed")
					return
				}
			}
			done <- nil
		}(int64(g))
	}

	for g := 0; g < 8; g++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}
