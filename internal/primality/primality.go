// Package primality implements the Miller-Rabin probabilistic primality
// test over bigint.Int values, as used by RSA key generation.
package primality

import (
	"crypto/rand"
	"math/big"

	"github.com/skyformat99/cryptogateway/internal/bigint"
)

// DefaultRounds is the library's default round count for RSA key
// generation; the caller may always choose a different value.
const DefaultRounds = 10

// MillerRabin reports whether n is probably prime, performing the given
// number of rounds. The first two rounds pin witnesses 2 and 3; further
// rounds sample uniformly from [2, n-2].
func MillerRabin(n *bigint.Int, rounds int) bool {
	// Work at twice the candidate's width: x can fill all of n's bits, so
	// the squarings below (and inside PowMod) need the extra words to hold
	// x*x before each reduction.
	n = n.Resize(2 * n.Len())

	two := bigint.FromUint64(n.Len(), 2)
	three := bigint.FromUint64(n.Len(), 3)
	one := bigint.FromUint64(n.Len(), 1)

	if n.IsZero() {
		return false
	}
	if bigint.Compare(n, one) == 0 {
		// This library's convention: 1 is treated as prime.
		return true
	}
	if bigint.Compare(n, two) == 0 || bigint.Compare(n, three) == 0 {
		return true
	}
	if !n.IsOdd() {
		return false
	}

	// n - 1 = 2^s * d, d odd.
	nMinus1 := bigint.New(n.Len())
	bigint.Sub(n, one, nMinus1)

	s := 0
	d := nMinus1.Clone()
	for !d.IsOdd() {
		bigint.Shr(d, 1, d)
		s++
	}

	nMinus2 := bigint.New(n.Len())
	bigint.Sub(n, two, nMinus2)

	for round := 0; round < rounds; round++ {
		var a *bigint.Int
		switch round {
		case 0:
			a = two
		case 1:
			a = three
		default:
			a = randomInRange(n, two, nMinus2)
		}

		x := bigint.New(n.Len())
		bigint.PowMod(a, d, n, x)

		if bigint.Compare(x, one) == 0 || bigint.Compare(x, nMinus1) == 0 {
			continue
		}

		witness := true
		for i := 0; i < s-1; i++ {
			bigint.Mul(x, x, x)
			bigint.Mod(x, n, x)
			if bigint.Compare(x, nMinus1) == 0 {
				witness = false
				break
			}
			if bigint.Compare(x, one) == 0 {
				return false
			}
		}
		if witness {
			return false
		}
	}
	return true
}

// randomInRange samples a uniformly random value in [lo, hi] from
// crypto/rand and returns it at n's word length. It returns lo if the
// range is empty (lo >= hi) or sampling fails.
func randomInRange(n, lo, hi *bigint.Int) *bigint.Int {
	if bigint.Compare(lo, hi) >= 0 {
		return lo.Clone()
	}
	bound := new(big.Int).SetBytes(reverse(hi.Bytes()))
	loBig := new(big.Int).SetBytes(reverse(lo.Bytes()))
	span := new(big.Int).Sub(bound, loBig)
	span.Add(span, big.NewInt(1))
	if span.Sign() <= 0 {
		return lo.Clone()
	}
	v, err := randBigInt(span)
	if err != nil {
		return lo.Clone()
	}
	v.Add(v, loBig)

	out := bigint.New(n.Len())
	vb := v.Bytes() // big-endian
	le := make([]byte, len(vb))
	for i, b := range vb {
		le[len(vb)-1-i] = b
	}
	out.SetWords(bigint.FromBytes(n.Len(), le).Words())
	return out
}

func randBigInt(bound *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, bound)
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
