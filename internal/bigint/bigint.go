// Package bigint implements a fixed-width multi-precision unsigned integer.
//
// Every Int is backed by a word array whose length is fixed at construction
// and carried through every operation on it. Results that would not fit in
// that many words are defined to fail rather than wrap; callers get a
// boolean back and must not trust the destination contents beyond what is
// documented per operation.
package bigint

import "fmt"

// WordBits is the number of bits in a single word.
const WordBits = 32

// Int is a little-endian sequence of 32-bit words: Words()[0] is the least
// significant word. Its length is fixed for the lifetime of the value.
type Int struct {
	w []uint32
}

// New returns a zero-valued Int of the given word length. n must be > 0.
func New(n int) *Int {
	if n <= 0 {
		panic(fmt.Sprintf("bigint: invalid word length %d", n))
	}
	return &Int{w: make([]uint32, n)}
}

// FromUint64 builds an Int of word length n initialized to v. Panics if v
// does not fit in n words.
func FromUint64(n int, v uint64) *Int {
	x := New(n)
	x.w[0] = uint32(v)
	if n > 1 {
		x.w[1] = uint32(v >> 32)
	} else if v>>32 != 0 {
		panic("bigint: value does not fit in one word")
	}
	return x
}

// FromBytes packs little-endian bytes into an Int of word length n,
// zero-padding if b is shorter and truncating (with loss) if longer than
// 4*n bytes. This mirrors the hybrid byte-buffer encode/decode path used by
// RSAKeypair.
func FromBytes(n int, b []byte) *Int {
	x := New(n)
	for i := 0; i < n; i++ {
		var word uint32
		for j := 0; j < 4; j++ {
			idx := i*4 + j
			if idx >= len(b) {
				break
			}
			word |= uint32(b[idx]) << (8 * j)
		}
		x.w[i] = word
	}
	return x
}

// Bytes unpacks the Int into exactly 4*Len() little-endian bytes.
func (x *Int) Bytes() []byte {
	b := make([]byte, 4*len(x.w))
	for i, word := range x.w {
		b[i*4] = byte(word)
		b[i*4+1] = byte(word >> 8)
		b[i*4+2] = byte(word >> 16)
		b[i*4+3] = byte(word >> 24)
	}
	return b
}

// Len returns the fixed word length of x.
func (x *Int) Len() int { return len(x.w) }

// Words returns a copy of the underlying word array, least-significant first.
func (x *Int) Words() []uint32 {
	out := make([]uint32, len(x.w))
	copy(out, x.w)
	return out
}

// SetWords overwrites x's contents. The supplied slice must have exactly
// x.Len() elements.
func (x *Int) SetWords(words []uint32) {
	if len(words) != len(x.w) {
		panic(fmt.Sprintf("bigint: SetWords length mismatch: have %d, want %d", len(words), len(x.w)))
	}
	copy(x.w, words)
}

// Clone returns a new Int with the same word length and value as x.
func (x *Int) Clone() *Int {
	y := New(len(x.w))
	copy(y.w, x.w)
	return y
}

// SetZero zeroes x in place.
func (x *Int) SetZero() {
	for i := range x.w {
		x.w[i] = 0
	}
}

// IsZero reports whether x is the zero value.
func (x *Int) IsZero() bool {
	for _, word := range x.w {
		if word != 0 {
			return false
		}
	}
	return true
}

// IsOdd reports whether the least significant bit of x is set.
func (x *Int) IsOdd() bool {
	return x.w[0]&1 == 1
}

// sameLen panics if a and b are not the same fixed word length; every
// operation in this package requires matching lengths for its operands.
func sameLen(label string, ints ...*Int) int {
	if len(ints) == 0 {
		return 0
	}
	n := ints[0].Len()
	for _, x := range ints[1:] {
		if x.Len() != n {
			panic(fmt.Sprintf("bigint: %s: mismatched word lengths", label))
		}
	}
	return n
}

// Bit returns bit i of x (0 or 1). i outside [0, 32*Len()) returns 0.
func (x *Int) Bit(i int) uint32 {
	if i < 0 || i >= len(x.w)*WordBits {
		return 0
	}
	return (x.w[i/WordBits] >> uint(i%WordBits)) & 1
}

func (x *Int) setBit(i int) {
	x.w[i/WordBits] |= 1 << uint(i%WordBits)
}

// BitLen returns the index of the highest set bit plus one; 0 for a zero
// value.
func (x *Int) BitLen() int {
	for i := len(x.w) - 1; i >= 0; i-- {
		if x.w[i] != 0 {
			return i*WordBits + bits32Len(x.w[i])
		}
	}
	return 0
}

func bits32Len(v uint32) int {
	n := 0
	for v != 0 {
		n++
		v >>= 1
	}
	return n
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b *Int) int {
	sameLen("Compare", a, b)
	for i := len(a.w) - 1; i >= 0; i-- {
		if a.w[i] != b.w[i] {
			if a.w[i] < b.w[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Add computes dst = a + b. Returns false (and leaves dst holding the
// truncated low-order words) if the sum overflows the fixed word width.
func Add(a, b, dst *Int) bool {
	n := sameLen("Add", a, b, dst)
	var carry uint64
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		sum := uint64(a.w[i]) + uint64(b.w[i]) + carry
		out[i] = uint32(sum)
		carry = sum >> WordBits
	}
	dst.w = out
	return carry == 0
}

// Sub computes dst = a - b. Returns false (dst holds the two's-complement
// wraparound result) if b > a.
func Sub(a, b, dst *Int) bool {
	n := sameLen("Sub", a, b, dst)
	var borrow uint64
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		diff := uint64(a.w[i]) - uint64(b.w[i]) - borrow
		out[i] = uint32(diff)
		if uint64(a.w[i]) < uint64(b.w[i])+borrow {
			borrow = 1
		} else {
			borrow = 0
		}
	}
	dst.w = out
	return borrow == 0
}

// Shl computes dst = a << k (logical). Returns false if any set bit would
// be shifted off the top of the fixed width; dst still receives the
// truncated low-order result.
func Shl(a *Int, k uint, dst *Int) bool {
	n := sameLen("Shl", a, dst)
	total := uint(n) * WordBits
	ok := true
	if k >= total {
		ok = a.IsZero()
	} else if top := a.BitLen(); top > 0 && uint(top)+k > total {
		ok = false
	}
	out := New(n)
	wordShift := int(k / WordBits)
	bitShift := uint(k % WordBits)
	for i := n - 1; i >= 0; i-- {
		srcIdx := i - wordShift
		if srcIdx < 0 {
			continue
		}
		var word uint32
		word = a.w[srcIdx] << bitShift
		if bitShift > 0 && srcIdx-1 >= 0 {
			word |= a.w[srcIdx-1] >> (WordBits - bitShift)
		}
		out.w[i] = word
	}
	dst.w = out.w
	return ok
}

// Shr computes dst = a >> k (logical). Never fails.
func Shr(a *Int, k uint, dst *Int) bool {
	n := sameLen("Shr", a, dst)
	out := New(n)
	wordShift := int(k / WordBits)
	bitShift := uint(k % WordBits)
	for i := 0; i < n; i++ {
		srcIdx := i + wordShift
		if srcIdx >= n {
			continue
		}
		var word uint32
		word = a.w[srcIdx] >> bitShift
		if bitShift > 0 && srcIdx+1 < n {
			word |= a.w[srcIdx+1] << (WordBits - bitShift)
		}
		out.w[i] = word
	}
	dst.w = out.w
	return true
}

// Mul computes dst = a * b using schoolbook shift-and-add over the bits of
// a. Returns false if any partial product or running sum overflows the
// fixed width. dst may alias a or b.
func Mul(a, b, dst *Int) bool {
	n := sameLen("Mul", a, b, dst)
	acc := New(n)
	scratch := New(n)
	ok := true
	top := a.BitLen()
	for i := 0; i < top; i++ {
		if a.Bit(i) == 0 {
			continue
		}
		if !Shl(b, uint(i), scratch) {
			ok = false
		}
		if !Add(acc, scratch, acc) {
			ok = false
		}
	}
	dst.w = acc.w
	return ok
}

// Div computes dstQ = a / b (integer division). Division by zero fails and
// writes zero to dstQ.
func Div(a, b, dstQ *Int) bool {
	q, _, ok := divmod(a, b, dstQ.Len())
	dstQ.w = q.w
	return ok
}

// Mod computes dstR = a mod b. Division by zero fails and writes zero to
// dstR.
func Mod(a, b, dstR *Int) bool {
	_, r, ok := divmod(a, b, dstR.Len())
	dstR.w = r.w
	return ok
}

// divmod implements restoring binary long division: scan bit positions
// from (topA - topB) down to 0, testing whether (b << i) fits into the
// running remainder.
func divmod(a, b *Int, n int) (q, r *Int, ok bool) {
	sameLen("divmod", a, b)
	q = New(n)
	r = New(n)
	if b.IsZero() {
		return q, r, false
	}

	topA := a.BitLen()
	topB := b.BitLen()
	remainder := a.Clone()
	if topA < topB {
		return q, remainder.Resize(n), true
	}

	shifted := New(a.Len())
	for i := topA - topB; i >= 0; i-- {
		if !Shl(b, uint(i), shifted) {
			// b<<i overflowed a's width; it can't fit into remainder either.
			continue
		}
		if Compare(shifted, remainder) <= 0 {
			Sub(remainder, shifted, remainder)
			q.setBitSafe(i)
		}
	}
	return q, remainder.Resize(n), true
}

// setBitSafe sets bit i if it lies within x's width; division never needs
// more than a's original width for the quotient in this library's usage.
func (x *Int) setBitSafe(i int) {
	if i >= 0 && i < len(x.w)*WordBits {
		x.setBit(i)
	}
}

// Resize returns a copy of x with word length n, zero-extending upward or
// truncating (with loss) downward. Callers that need head-room for
// intermediates -- RSA encode/decode pads its operands to twice the modulus
// width so squarings cannot overflow -- widen with this before operating and
// narrow the reduced result afterward.
func (x *Int) Resize(n int) *Int {
	y := New(n)
	m := n
	if len(x.w) < m {
		m = len(x.w)
	}
	copy(y.w, x.w[:m])
	return y
}

// Pow computes dst = base^exp via square-and-multiply. Returns false if any
// intermediate squaring or multiplication overflows.
func Pow(base, exp, dst *Int) bool {
	n := sameLen("Pow", base, exp, dst)
	result := FromUint64(n, 1)
	b := base.Clone()
	ok := true
	top := exp.BitLen()
	for i := 0; i < top; i++ {
		if exp.Bit(i) == 1 {
			if !Mul(result, b, result) {
				ok = false
			}
		}
		if i != top-1 {
			if !Mul(b, b, b) {
				ok = false
			}
		}
	}
	dst.w = result.w
	return ok
}

// PowMod computes dst = base^exp mod m, reducing after every multiply and
// square. Fails if m is zero or any intermediate product overflows the
// fixed width; callers whose m can fill the whole width should widen the
// operands with Resize first so the squarings have head-room.
func PowMod(base, exp, m, dst *Int) bool {
	n := sameLen("PowMod", base, exp, m, dst)
	if m.IsZero() {
		dst.SetZero()
		return false
	}
	one := FromUint64(n, 1)
	result := FromUint64(n, 1)
	b := New(n)
	Mod(base, m, b)
	top := exp.BitLen()
	if top == 0 {
		// exp == 0: base^0 mod m == 1 mod m.
		Mod(one, m, dst)
		return true
	}
	ok := true
	for i := 0; i < top; i++ {
		if exp.Bit(i) == 1 {
			if !Mul(result, b, result) {
				ok = false
			}
			Mod(result, m, result)
		}
		if i != top-1 {
			if !Mul(b, b, b) {
				ok = false
			}
			Mod(b, m, b)
		}
	}
	dst.w = result.w
	return ok
}

// GCD computes dst = gcd(a, b) using the Euclidean algorithm.
func GCD(a, b, dst *Int) bool {
	n := sameLen("GCD", a, b, dst)
	x := a.Clone()
	y := b.Clone()
	tmp := New(n)
	for !y.IsZero() {
		Mod(x, y, tmp)
		x, y = y, tmp.Clone()
	}
	dst.w = x.w
	return true
}

// ModInverse computes dst = a^-1 mod m using the extended Euclidean
// algorithm, staying in non-negative representatives by adding m before
// any subtraction that would otherwise go negative. Returns false (and
// sets dst to 1) if gcd(a, m) != 1.
func ModInverse(a, m, dst *Int) bool {
	n := sameLen("ModInverse", a, m, dst)

	// old_r, r := m, a mod m ; old_s, s := 0, 1
	r := New(n)
	Mod(a, m, r)
	oldR := m.Clone()
	oldS := New(n)
	s := FromUint64(n, 1)
	oldRr, rr := oldR, r
	oldSs, ss := oldS, s

	for !rr.IsZero() {
		q := New(n)
		rem := New(n)
		Div(oldRr, rr, q)
		Mod(oldRr, rr, rem)

		oldRr, rr = rr, rem

		qs := New(n)
		Mul(q, ss, qs)
		newS := New(n)
		if Compare(oldSs, qs) >= 0 {
			Sub(oldSs, qs, newS)
		} else {
			// old_s - q*s is negative in unbounded arithmetic; add m
			// (repeatedly, in modular units) to stay non-negative.
			padded := New(n)
			Add(oldSs, m, padded)
			for Compare(padded, qs) < 0 {
				Add(padded, m, padded)
			}
			Sub(padded, qs, newS)
		}
		oldSs, ss = ss, newS
	}

	// gcd is oldRr; invertible only if it's 1.
	one := FromUint64(n, 1)
	if Compare(oldRr, one) != 0 {
		dst.w = one.w
		return false
	}

	Mod(oldSs, m, dst)
	return true
}
