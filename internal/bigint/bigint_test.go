package bigint

import (
	"math/rand"
	"testing"
)

func mk(n int, v uint64) *Int { return FromUint64(n, v) }

func TestAddCarry(t *testing.T) {
	a := New(4)
	a.SetWords([]uint32{0xFFFFFFFF, 0, 0, 0})
	b := mk(4, 1)
	dst := New(4)

	if ok := Add(a, b, dst); !ok {
		t.Fatalf("Add() succeeded=false, want true")
	}
	want := []uint32{0, 1, 0, 0}
	if got := dst.Words(); !wordsEqual(got, want) {
		t.Errorf("Add() dst = %v, want %v", got, want)
	}
}

func TestAddOverflow(t *testing.T) {
	a := New(4)
	a.SetWords(setAll(4, 0xFFFFFFFF))
	b := mk(4, 1)
	dst := New(4)

	if ok := Add(a, b, dst); ok {
		t.Fatalf("Add() succeeded=true, want false on overflow")
	}
	if dst.Words()[0] != 0 {
		t.Errorf("Add() overflow dst[0] = %d, want 0", dst.Words()[0])
	}
}

func TestSubUndoesAdd(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 3
		a := randomSmall(rng, n)
		b := randomSmall(rng, n)
		sum := New(n)
		if !Add(a, b, sum) {
			continue // skip the rare overflow case
		}
		back := New(n)
		if !Sub(sum, b, back) {
			t.Fatalf("Sub(a+b, b) failed unexpectedly")
		}
		if Compare(back, a) != 0 {
			t.Errorf("Sub(Add(a,b),b) = %v, want %v", back.Words(), a.Words())
		}
	}
}

func TestSubBorrow(t *testing.T) {
	a := mk(2, 1)
	b := mk(2, 2)
	dst := New(2)
	if ok := Sub(a, b, dst); ok {
		t.Errorf("Sub(1,2) succeeded=true, want false")
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b uint64
		want int
	}{
		{1, 2, -1},
		{2, 1, 1},
		{5, 5, 0},
	}
	for _, c := range cases {
		a := mk(2, c.a)
		b := mk(2, c.b)
		if got := Compare(a, b); got != c.want {
			t.Errorf("Compare(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestMulCommutative(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 200; trial++ {
		n := 4
		a := randomSmall(rng, n)
		b := randomSmall(rng, n)
		ab := New(n)
		ba := New(n)
		okAB := Mul(a, b, ab)
		okBA := Mul(b, a, ba)
		if okAB != okBA {
			t.Fatalf("Mul(a,b) success=%v but Mul(b,a) success=%v", okAB, okBA)
		}
		if okAB && Compare(ab, ba) != 0 {
			t.Errorf("Mul not commutative: a*b=%v b*a=%v", ab.Words(), ba.Words())
		}
	}
}

func TestDivRecoversFactor(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	found := 0
	for trial := 0; trial < 500 && found < 100; trial++ {
		n := 4
		a := randomSmall(rng, n)
		b := randomSmall(rng, n)
		if b.IsZero() {
			continue
		}
		prod := New(n)
		if !Mul(a, b, prod) {
			continue
		}
		found++
		q := New(n)
		if !Div(prod, b, q) {
			t.Fatalf("Div(a*b, b) failed unexpectedly")
		}
		if Compare(q, a) != 0 {
			t.Errorf("Div(Mul(a,b),b) = %v, want %v", q.Words(), a.Words())
		}
	}
}

func TestDivByZero(t *testing.T) {
	a := mk(2, 10)
	zero := New(2)
	q := New(2)
	if ok := Div(a, zero, q); ok {
		t.Errorf("Div by zero succeeded=true, want false")
	}
	if !q.IsZero() {
		t.Errorf("Div by zero dst = %v, want zero", q.Words())
	}
}

func TestModBasic(t *testing.T) {
	a := mk(2, 17)
	b := mk(2, 5)
	r := New(2)
	if !Mod(a, b, r) {
		t.Fatalf("Mod() failed")
	}
	if Compare(r, mk(2, 2)) != 0 {
		t.Errorf("17 mod 5 = %v, want 2", r.Words())
	}
}

func TestShlShrRoundTrip(t *testing.T) {
	a := mk(4, 0x1234)
	shifted := New(4)
	if !Shl(a, 8, shifted) {
		t.Fatalf("Shl failed unexpectedly")
	}
	back := New(4)
	Shr(shifted, 8, back)
	if Compare(back, a) != 0 {
		t.Errorf("Shr(Shl(a,8),8) = %v, want %v", back.Words(), a.Words())
	}
}

func TestShlOverflowFails(t *testing.T) {
	a := New(1)
	a.SetWords([]uint32{1 << 31})
	dst := New(1)
	if ok := Shl(a, 1, dst); ok {
		t.Errorf("Shl overflow succeeded=true, want false")
	}
}

func TestPowModMatchesIterativeProduct(t *testing.T) {
	n := 4
	base := mk(n, 3)
	mod := mk(n, 1000000007)
	for e := 0; e <= 6; e++ {
		exp := mk(n, uint64(e))
		got := New(n)
		if !PowMod(base, exp, mod, got) {
			t.Fatalf("PowMod failed for e=%d", e)
		}
		want := New(n)
		Mod(mk(n, 1), mod, want)
		for i := 0; i < e; i++ {
			Mul(want, base, want)
			Mod(want, mod, want)
		}
		if Compare(got, want) != 0 {
			t.Errorf("PowMod(3,%d,mod) = %v, want %v", e, got.Words(), want.Words())
		}
	}
}

func TestGCD(t *testing.T) {
	cases := []struct{ a, b, want uint64 }{
		{12, 18, 6},
		{17, 5, 1},
		{0, 7, 7},
		{100, 10, 10},
	}
	for _, c := range cases {
		a := mk(2, c.a)
		b := mk(2, c.b)
		dst := New(2)
		GCD(a, b, dst)
		if Compare(dst, mk(2, c.want)) != 0 {
			t.Errorf("GCD(%d,%d) = %v, want %d", c.a, c.b, dst.Words(), c.want)
		}
	}
}

func TestModInverseTable(t *testing.T) {
	cases := []struct{ a, m, want uint64 }{
		{3, 7, 5},
		{4, 97, 73},
		{300, 38897, 8687},
	}
	for _, c := range cases {
		a := mk(4, c.a)
		m := mk(4, c.m)
		dst := New(4)
		if ok := ModInverse(a, m, dst); !ok {
			t.Fatalf("ModInverse(%d,%d) failed unexpectedly", c.a, c.m)
		}
		if Compare(dst, mk(4, c.want)) != 0 {
			t.Errorf("ModInverse(%d,%d) = %v, want %d", c.a, c.m, dst.Words(), c.want)
		}
	}
}

func TestModInverseNoInverse(t *testing.T) {
	a := mk(2, 6)
	m := mk(2, 8)
	dst := New(2)
	if ok := ModInverse(a, m, dst); ok {
		t.Errorf("ModInverse(6,8) succeeded=true, want false (gcd=2)")
	}
	if Compare(dst, mk(2, 1)) != 0 {
		t.Errorf("ModInverse(6,8) failure dst = %v, want 1", dst.Words())
	}
}

func TestMulModInverseIsOne(t *testing.T) {
	cases := []struct{ a, m uint64 }{
		{3, 7}, {4, 97}, {300, 38897},
	}
	for _, c := range cases {
		a := mk(4, c.a)
		m := mk(4, c.m)
		inv := New(4)
		if !ModInverse(a, m, inv) {
			t.Fatalf("ModInverse(%d,%d) failed", c.a, c.m)
		}
		prod := New(4)
		Mul(a, inv, prod)
		r := New(4)
		Mod(prod, m, r)
		if Compare(r, mk(4, 1)) != 0 {
			t.Errorf("a*inv mod m = %v, want 1", r.Words())
		}
	}
}

func TestResizeWidensAndNarrows(t *testing.T) {
	a := mk(2, 0x1122334455667788)
	wide := a.Resize(4)
	if wide.Len() != 4 {
		t.Fatalf("Resize(4).Len() = %d, want 4", wide.Len())
	}
	if Compare(wide.Resize(2), a) != 0 {
		t.Errorf("Resize(4).Resize(2) = %v, want %v", wide.Resize(2).Words(), a.Words())
	}
	if wide.Words()[2] != 0 || wide.Words()[3] != 0 {
		t.Errorf("Resize(4) high words = %v, want zero-extended", wide.Words()[2:])
	}

	// Narrowing drops high-order words with loss.
	b := New(4)
	b.SetWords([]uint32{1, 2, 3, 4})
	narrow := b.Resize(2)
	if got := narrow.Words(); got[0] != 1 || got[1] != 2 {
		t.Errorf("Resize(2) = %v, want low-order words [1 2]", got)
	}
}

// PowMod's head-room contract: a full-width modulus overflows the squaring
// at its own width but is exact once the operands are widened.
func TestPowModFullWidthNeedsHeadroom(t *testing.T) {
	m := New(1)
	m.SetWords([]uint32{0xFFFFFFFB}) // close to the top of one word
	base := mk(1, 0x12345678)
	exp := mk(1, 3)

	if ok := PowMod(base, exp, m, New(1)); ok {
		t.Errorf("PowMod at modulus width succeeded, want overflow failure")
	}

	wide := New(2)
	if !PowMod(base.Resize(2), exp.Resize(2), m.Resize(2), wide) {
		t.Fatalf("PowMod at doubled width failed")
	}
	// base^3 mod m computed independently: ((base*base mod m) * base) mod m.
	check := New(2)
	Mul(base.Resize(2), base.Resize(2), check)
	Mod(check, m.Resize(2), check)
	Mul(check, base.Resize(2), check)
	Mod(check, m.Resize(2), check)
	if Compare(wide, check) != 0 {
		t.Errorf("PowMod widened = %v, want %v", wide.Words(), check.Words())
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	x := FromBytes(2, b)
	if got := x.Bytes(); !bytesEqual(got, b) {
		t.Errorf("FromBytes/Bytes round trip = %v, want %v", got, b)
	}
}

func wordsEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func setAll(n int, v uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// randomSmall returns a random Int whose top word is kept small so that
// products of two such values are unlikely to overflow n words, letting the
// algebraic property tests exercise the success path most of the time.
func randomSmall(rng *rand.Rand, n int) *Int {
	x := New(n)
	words := make([]uint32, n)
	words[0] = rng.Uint32()
	if n > 1 {
		words[1] = rng.Uint32() % 65536
	}
	x.SetWords(words)
	return x
}
