package bch

import (
	"fmt"
	"math/bits"
)

// field holds log/antilog tables for GF(2^m) generated by a primitive polynomial.
type field struct {
	m   int
	n   int   // multiplicative group order, 2^m - 1
	exp []int // exp[i] = alpha^i, doubled so exp[a+b] never needs a modulo
	log []int // log[x] = i such that alpha^i = x; log[0] is unused
}

// newField builds GF(2^m) from poly, where m is the degree of poly.
// poly must be primitive: alpha = x must generate every non-zero element.
func newField(poly int) (*field, error) {
	if poly <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolynomial, poly)
	}
	m := bits.Len(uint(poly)) - 1
	if m < MinFieldDegree || m > MaxFieldDegree {
		return nil, fmt.Errorf("%w: degree %d outside [%d, %d]", ErrInvalidPolynomial, m, MinFieldDegree, MaxFieldDegree)
	}
	if poly&1 == 0 {
		return nil, fmt.Errorf("%w: %d has no constant term", ErrInvalidPolynomial, poly)
	}

	n := 1<<m - 1
	f := &field{
		m:   m,
		n:   n,
		exp: make([]int, 2*n),
		log: make([]int, n+1),
	}

	x := 1
	for i := 0; i < n; i++ {
		if i > 0 && x == 1 {
			return nil, fmt.Errorf("%w: %d is not primitive (order %d)", ErrInvalidPolynomial, poly, i)
		}
		f.exp[i] = x
		f.log[x] = i
		x <<= 1
		if x&(1<<m) != 0 {
			x ^= poly
		}
	}
	if x != 1 {
		return nil, fmt.Errorf("%w: %d is not primitive", ErrInvalidPolynomial, poly)
	}
	copy(f.exp[n:], f.exp[:n])

	return f, nil
}

func (f *field) mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[f.log[a]+f.log[b]]
}

func (f *field) div(a, b int) int {
	if a == 0 {
		return 0
	}
	// b is never zero here: callers only divide by a non-zero discrepancy.
	return f.exp[f.log[a]+f.n-f.log[b]]
}

// alphaPow returns alpha^e for any integer exponent, negative included.
func (f *field) alphaPow(e int) int {
	e %= f.n
	if e < 0 {
		e += f.n
	}
	return f.exp[e]
}
