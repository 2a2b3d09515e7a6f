package primality

import (
	"testing"

	"github.com/skyformat99/cryptogateway/internal/bigint"
)

func TestMillerRabinKnownPrimes(t *testing.T) {
	for _, v := range []uint64{2, 3, 5, 401} {
		n := bigint.FromUint64(4, v)
		if !MillerRabin(n, 10) {
			t.Errorf("MillerRabin(%d, 10 rounds) = false, want true", v)
		}
	}
}

func TestMillerRabinKnownComposites(t *testing.T) {
	for _, v := range []uint64{0, 4, 55, 99, 243407} {
		n := bigint.FromUint64(4, v)
		if MillerRabin(n, 10) {
			t.Errorf("MillerRabin(%d, 10 rounds) = true, want false", v)
		}
	}
}

func TestMillerRabinOneIsPrimeByConvention(t *testing.T) {
	n := bigint.FromUint64(4, 1)
	if !MillerRabin(n, 10) {
		t.Errorf("MillerRabin(1, 10 rounds) = false, want true (library convention)")
	}
}

func TestMillerRabinEvenGreaterThanTwoIsComposite(t *testing.T) {
	for _, v := range []uint64{6, 8, 100, 1000000} {
		n := bigint.FromUint64(4, v)
		if MillerRabin(n, 10) {
			t.Errorf("MillerRabin(%d) = true, want false (even > 2)", v)
		}
	}
}

func TestMillerRabinLargerPrimes(t *testing.T) {
	// A sample of larger known primes, checked at the library's default
	// round count.
	for _, v := range []uint64{65537, 104729, 1299709, 15485863} {
		n := bigint.FromUint64(4, v)
		if !MillerRabin(n, DefaultRounds) {
			t.Errorf("MillerRabin(%d) = false, want true", v)
		}
	}
}

func TestMillerRabinLargerComposites(t *testing.T) {
	for _, v := range []uint64{65536, 104730, 999983 * 2, 1000000} {
		n := bigint.FromUint64(4, v)
		if MillerRabin(n, DefaultRounds) {
			t.Errorf("MillerRabin(%d) = true, want false", v)
		}
	}
}
