// Package packet converts short text messages to and from the fixed-width
// bit packets consumed and produced by the watermark model.
//
// A packet is the 7-byte space-padded message, followed by its BCH ECC
// bytes, expanded MSB-first into bits, followed by PaddingBits zero bits:
//
//	| data (56 bits) | ecc (40 bits) | pad (4 bits) |
//
// The code parameters are fixed. Changing them makes previously watermarked
// images unreadable.
package packet

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"stega_backend/bch"
)

// Code parameters shared by encode and decode.
const (
	// BCHPolynomial is the primitive polynomial x^7 + x^3 + 1.
	BCHPolynomial = 137

	// BCHBits is the number of correctable bit errors per packet.
	BCHBits = 5

	// MessageLength is the fixed data block size in bytes and the maximum
	// message length in characters.
	MessageLength = 7

	// PaddingBits are appended after data and ECC to reach the model width.
	PaddingBits = 4

	// PacketBits is the bit width the model consumes.
	PacketBits = 100
)

// ErrInvalidMessage indicates a message that cannot be packed into a data block.
var ErrInvalidMessage = errors.New("invalid message")

// ECC is the error-correcting code primitive used by the codec.
// *bch.BCH satisfies it.
type ECC interface {
	Encode(data []byte) ([]byte, error)
	DecodeInPlace(data, ecc []byte) int
	ECCBytes() int
}

// Codec packs messages into packets and recovers them.
// It holds no mutable state and is safe for concurrent use when the ECC is.
type Codec struct {
	ecc      ECC
	eccBytes int
}

// New creates a Codec over the given ECC. The resulting packet width must
// equal PacketBits.
func New(ecc ECC) (*Codec, error) {
	if ecc == nil {
		return nil, errors.New("packet: ecc is required")
	}
	c := &Codec{ecc: ecc, eccBytes: ecc.ECCBytes()}
	if got := c.PacketBits(); got != PacketBits {
		return nil, fmt.Errorf("packet: ecc yields %d-bit packets, model expects %d", got, PacketBits)
	}
	return c, nil
}

// NewDefault creates a Codec with BCH(BCHPolynomial, BCHBits).
func NewDefault() (*Codec, error) {
	code, err := bch.New(BCHPolynomial, BCHBits)
	if err != nil {
		return nil, fmt.Errorf("packet: build bch code: %w", err)
	}
	return New(code)
}

// PacketBits returns the total packet width, padding included.
func (c *Codec) PacketBits() int {
	return c.payloadBits() + PaddingBits
}

// payloadBits is the number of bits DecodePacket consults.
func (c *Codec) payloadBits() int {
	return (MessageLength + c.eccBytes) * 8
}

// EncodePacket pads message to MessageLength characters and returns its
// packet as a slice of 0/1 values.
func (c *Codec) EncodePacket(message string) ([]uint8, error) {
	n := utf8.RuneCountInString(message)
	if n < 1 || n > MessageLength {
		return nil, fmt.Errorf("%w: length %d, want 1 to %d characters", ErrInvalidMessage, n, MessageLength)
	}

	data := []byte(message + strings.Repeat(" ", MessageLength-n))
	if len(data) != MessageLength {
		return nil, fmt.Errorf("%w: encodes to %d bytes, want %d", ErrInvalidMessage, len(data), MessageLength)
	}

	ecc, err := c.ecc.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	bits := make([]uint8, 0, c.PacketBits())
	bits = appendBits(bits, data)
	bits = appendBits(bits, ecc)
	bits = append(bits, make([]uint8, PaddingBits)...)
	return bits, nil
}

// DecodePacket recovers the message from bits. Only the first
// (7 + ECC bytes) * 8 bits are read. It returns false when the packet is
// too short, holds more errors than the code corrects, or the corrected
// data is not valid UTF-8. Trailing padding spaces are removed.
func (c *Codec) DecodePacket(bits []uint8) (string, bool) {
	if len(bits) < c.payloadBits() {
		return "", false
	}

	raw := packBits(bits[:c.payloadBits()])
	data, ecc := raw[:MessageLength], raw[MessageLength:]

	if c.ecc.DecodeInPlace(data, ecc) == bch.Uncorrectable {
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}
	return strings.TrimRight(string(data), " "), true
}

// BitsFromFloats thresholds model output at 0.5.
func BitsFromFloats(values []float32) []uint8 {
	bits := make([]uint8, len(values))
	for i, v := range values {
		if v >= 0.5 {
			bits[i] = 1
		}
	}
	return bits
}

// FloatsFromBits widens packet bits to the model's float input.
func FloatsFromBits(bits []uint8) []float32 {
	values := make([]float32, len(bits))
	for i, b := range bits {
		values[i] = float32(b)
	}
	return values
}

func appendBits(dst []uint8, src []byte) []uint8 {
	for _, by := range src {
		for shift := 7; shift >= 0; shift-- {
			dst = append(dst, (by>>uint(shift))&1)
		}
	}
	return dst
}

// packBits packs MSB-first; any non-zero value counts as a set bit.
func packBits(bits []uint8) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
