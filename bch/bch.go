// Package bch implements a binary BCH error-correcting code over GF(2^m).
//
// A code is built from two integers: a primitive polynomial (which fixes the
// field GF(2^m) and the maximum codeword length 2^m - 1) and t, the number of
// bit errors the code can correct per block. Codewords are systematic: the
// data bytes are followed by ECCBytes() bytes of redundancy, and the first
// data bit is the highest-degree coefficient of the codeword polynomial.
//
// Example:
//
//	code, err := bch.New(137, 5)
//	if err != nil {
//	    return err
//	}
//	ecc, _ := code.Encode(data)
//	// ... bits flip in transit ...
//	if code.DecodeInPlace(data, ecc) == bch.Uncorrectable {
//	    // too many errors
//	}
package bch

import "errors"

// Uncorrectable is returned by DecodeInPlace when the block holds more bit
// errors than the code can fix.
const Uncorrectable = -1

// Field degree limits accepted by New.
const (
	MinFieldDegree = 3
	MaxFieldDegree = 15
)

var (
	// ErrInvalidPolynomial indicates the polynomial is not a supported primitive polynomial.
	ErrInvalidPolynomial = errors.New("bch: invalid primitive polynomial")

	// ErrInvalidStrength indicates t is out of range for the field.
	ErrInvalidStrength = errors.New("bch: invalid correction strength")

	// ErrDataTooLong indicates data plus ECC does not fit in one codeword.
	ErrDataTooLong = errors.New("bch: data too long for code")
)

// BCH is an immutable binary BCH code. It is safe for concurrent use.
type BCH struct {
	gf        *field
	t         int
	poly      int
	gen       []uint8 // generator polynomial, gen[d] is the coefficient of x^d
	eccBits   int
	eccBytes  int
	eccMask   byte // valid bits of the last ECC byte
	dataLimit int  // maximum data bits per codeword
}

// New constructs the BCH code for the given primitive polynomial and
// correction strength t.
func New(poly, t int) (*BCH, error) {
	gf, err := newField(poly)
	if err != nil {
		return nil, err
	}
	if t < 1 || 2*t >= gf.n {
		return nil, ErrInvalidStrength
	}

	gen := generatorPoly(gf, t)
	eccBits := len(gen) - 1
	if eccBits >= gf.n {
		return nil, ErrInvalidStrength
	}

	eccBytes := (eccBits + 7) / 8
	mask := byte(0xFF)
	if rem := eccBits % 8; rem != 0 {
		mask = byte(0xFF << (8 - rem))
	}

	return &BCH{
		gf:        gf,
		t:         t,
		poly:      poly,
		gen:       gen,
		eccBits:   eccBits,
		eccBytes:  eccBytes,
		eccMask:   mask,
		dataLimit: gf.n - eccBits,
	}, nil
}

// T returns the number of correctable bit errors per block.
func (b *BCH) T() int { return b.t }

// M returns the field degree.
func (b *BCH) M() int { return b.gf.m }

// Polynomial returns the primitive polynomial the code was built from.
func (b *BCH) Polynomial() int { return b.poly }

// ECCBits returns the number of redundancy bits per block.
func (b *BCH) ECCBits() int { return b.eccBits }

// ECCBytes returns the number of redundancy bytes per block.
func (b *BCH) ECCBytes() int { return b.eccBytes }

// MaxDataBits returns the largest data payload, in bits, one block can protect.
func (b *BCH) MaxDataBits() int { return b.dataLimit }

// Encode computes the ECC bytes for data. Unused low bits of the last ECC
// byte are zero.
func (b *BCH) Encode(data []byte) ([]byte, error) {
	if len(data)*8 > b.dataLimit {
		return nil, ErrDataTooLong
	}

	// reg[i] holds the remainder coefficient of x^(eccBits-1-i).
	reg := make([]uint8, b.eccBits)
	for _, by := range data {
		for bit := 7; bit >= 0; bit-- {
			feedback := (by>>uint(bit))&1 ^ reg[0]
			copy(reg, reg[1:])
			reg[b.eccBits-1] = 0
			if feedback == 1 {
				for i := 0; i < b.eccBits; i++ {
					reg[i] ^= b.gen[b.eccBits-1-i]
				}
			}
		}
	}

	ecc := make([]byte, b.eccBytes)
	for i, v := range reg {
		if v == 1 {
			ecc[i/8] |= 1 << uint(7-i%8)
		}
	}
	return ecc, nil
}

// DecodeInPlace corrects data using ecc and returns the number of bit errors
// found (0 for a clean block), or Uncorrectable. Errors located in the ECC
// bytes are counted but ecc itself is left untouched. data is only modified
// on success.
func (b *BCH) DecodeInPlace(data, ecc []byte) int {
	k := len(data) * 8
	if k > b.dataLimit || len(ecc) < b.eccBytes {
		return Uncorrectable
	}
	total := k + b.eccBits

	bitAt := func(p int) bool {
		if p < k {
			return data[p/8]>>uint(7-p%8)&1 == 1
		}
		q := p - k
		by := ecc[q/8]
		if q/8 == b.eccBytes-1 {
			by &= b.eccMask
		}
		return by>>uint(7-q%8)&1 == 1
	}

	syn := b.syndromes(total, bitAt)
	clean := true
	for _, s := range syn[1:] {
		if s != 0 {
			clean = false
			break
		}
	}
	if clean {
		return 0
	}

	locator, degree := b.errorLocator(syn)
	if degree > b.t {
		return Uncorrectable
	}

	positions := b.findErrors(locator, degree, total)
	if len(positions) != degree {
		return Uncorrectable
	}

	for _, p := range positions {
		if p < k {
			data[p/8] ^= 1 << uint(7-p%8)
		}
	}
	return degree
}

// syndromes evaluates the received word at alpha^1..alpha^2t. Index 0 is unused.
func (b *BCH) syndromes(total int, bitAt func(int) bool) []int {
	syn := make([]int, 2*b.t+1)
	for p := 0; p < total; p++ {
		if !bitAt(p) {
			continue
		}
		deg := total - 1 - p
		for j := 1; j <= 2*b.t; j++ {
			syn[j] ^= b.gf.alphaPow(j * deg)
		}
	}
	return syn
}

// errorLocator runs Berlekamp-Massey and returns sigma(x) and its degree.
func (b *BCH) errorLocator(syn []int) ([]int, int) {
	gf := b.gf
	size := 2*b.t + 2
	c := make([]int, size)
	prev := make([]int, size)
	c[0], prev[0] = 1, 1

	l, shift, lastDiscrepancy := 0, 1, 1
	for r := 0; r < 2*b.t; r++ {
		d := syn[r+1]
		for i := 1; i <= l; i++ {
			d ^= gf.mul(c[i], syn[r+1-i])
		}
		if d == 0 {
			shift++
			continue
		}

		saved := make([]int, size)
		copy(saved, c)
		coef := gf.div(d, lastDiscrepancy)
		for i := 0; i+shift < size; i++ {
			c[i+shift] ^= gf.mul(coef, prev[i])
		}

		if 2*l <= r {
			l = r + 1 - l
			prev = saved
			lastDiscrepancy = d
			shift = 1
		} else {
			shift++
		}
	}
	return c, l
}

// findErrors runs a Chien search over the shortened codeword and returns the
// bit positions (0 = first data bit) whose degree is a root of sigma's reciprocal.
func (b *BCH) findErrors(locator []int, degree, total int) []int {
	gf := b.gf
	var positions []int
	for deg := 0; deg < total; deg++ {
		v := 0
		for i := 0; i <= degree; i++ {
			if locator[i] == 0 {
				continue
			}
			v ^= gf.alphaPow(gf.log[locator[i]] - deg*i)
		}
		if v == 0 {
			positions = append(positions, total-1-deg)
		}
	}
	return positions
}

// generatorPoly returns the product of the distinct minimal polynomials of
// alpha^1 .. alpha^2t, as binary coefficients indexed by degree.
func generatorPoly(gf *field, t int) []uint8 {
	gen := []uint8{1}
	done := make([]bool, gf.n)

	for i := 1; i <= 2*t; i++ {
		r := i % gf.n
		if done[r] {
			continue
		}

		minimal := []int{1}
		for c := r; !done[c]; c = (c * 2) % gf.n {
			done[c] = true
			root := gf.exp[c]
			next := make([]int, len(minimal)+1)
			for d, coef := range minimal {
				next[d+1] ^= coef
				next[d] ^= gf.mul(coef, root)
			}
			minimal = next
		}

		// Minimal polynomials have binary coefficients.
		binary := make([]uint8, len(minimal))
		for d, coef := range minimal {
			binary[d] = uint8(coef & 1)
		}
		gen = mulGF2(gen, binary)
	}
	return gen
}

func mulGF2(a, b []uint8) []uint8 {
	out := make([]uint8, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] ^= y
		}
	}
	return out
}
