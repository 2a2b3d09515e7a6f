package rsakeypair

import (
	"bytes"
	"testing"

	"github.com/skyformat99/cryptogateway/internal/bigint"
	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

func genKeypair(t *testing.T, wordLen int) *Keypair {
	t.Helper()
	k := New(wordLen, 1, MaxHistory, logging.NopLogger())
	if err := <-k.Generate(10); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return k
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	k := genKeypair(t, 4)
	n := k.CurrentN()

	msg := bigint.FromUint64(4, 12345)
	if bigint.Compare(msg, n) >= 0 {
		t.Fatalf("test fixture chose msg >= N, adjust value")
	}

	enc, ok := k.Encode(msg)
	if !ok {
		t.Fatalf("Encode() ok=false")
	}
	dec, ok := k.Decode(enc)
	if !ok {
		t.Fatalf("Decode() ok=false")
	}
	if bigint.Compare(dec, msg) != 0 {
		t.Errorf("Decode(Encode(m)) = %v, want %v", dec.Words(), msg.Words())
	}
}

func TestEncodeRejectsMessageTooLarge(t *testing.T) {
	k := genKeypair(t, 4)
	n := k.CurrentN()
	if _, ok := k.Encode(n); ok {
		t.Errorf("Encode(N) ok=true, want false (message must be < N)")
	}
}

func TestEncodeBytesRoundTrip(t *testing.T) {
	k := genKeypair(t, 4)
	buf := make([]byte, 16)
	copy(buf, []byte("hi"))
	original := append([]byte(nil), buf...)

	if ok := k.EncodeBytes(buf); !ok {
		t.Fatalf("EncodeBytes() ok=false")
	}
	if bytes.Equal(buf, original) {
		t.Errorf("EncodeBytes() left buf unchanged")
	}
}

func TestPublicEncodeDecodesWithPrivateKey(t *testing.T) {
	k := genKeypair(t, 4)
	n := k.CurrentN()

	msg := bigint.FromUint64(4, 0xCAFEF00D)
	enc, ok := PublicEncode(msg, n)
	if !ok {
		t.Fatalf("PublicEncode() ok=false")
	}
	dec, ok := k.Decode(enc)
	if !ok {
		t.Fatalf("Decode() ok=false")
	}
	if bigint.Compare(dec, msg) != 0 {
		t.Errorf("Decode(PublicEncode(m)) = %v, want %v", dec.Words(), msg.Words())
	}

	if _, ok := PublicEncode(n, n); ok {
		t.Errorf("PublicEncode(N, N) ok=true, want false (value must be < n)")
	}
}

func TestPublicVerifyRecoversSignedValue(t *testing.T) {
	k := genKeypair(t, 4)
	n := k.CurrentN()

	// "Sign" by decoding with the private half, then verify against the
	// bare modulus as a remote peer would.
	input := bigint.FromUint64(4, 424242)
	sig, ok := k.Decode(input)
	if !ok {
		t.Fatalf("Decode() ok=false")
	}
	if got := PublicVerify(sig, n); bigint.Compare(got, input) != 0 {
		t.Errorf("PublicVerify(sig, N) = %v, want %v", got.Words(), input.Words())
	}
}

func TestHistoryRotationBounded(t *testing.T) {
	k := New(4, 1, 3, logging.NopLogger())
	for i := 0; i < 5; i++ {
		if err := <-k.Generate(5); err != nil {
			t.Fatalf("Generate round %d: %v", i, err)
		}
	}
	if got := k.HistoryLen(); got != 3 {
		t.Errorf("HistoryLen() = %d, want 3 (bounded by historyMax)", got)
	}
}

func TestDecodeAtHistoricalKey(t *testing.T) {
	k := New(4, 1, MaxHistory, logging.NopLogger())
	if err := <-k.Generate(5); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	oldN := k.CurrentN()
	msg := bigint.FromUint64(4, 999)
	if bigint.Compare(msg, oldN) >= 0 {
		t.Fatalf("fixture msg >= oldN")
	}
	enc, ok := k.Encode(msg)
	if !ok {
		t.Fatalf("Encode with old key failed")
	}

	if err := <-k.Generate(5); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if k.HistoryLen() != 1 {
		t.Fatalf("HistoryLen() = %d, want 1 after one rotation", k.HistoryLen())
	}

	dec, ok := k.DecodeAt(enc, 0)
	if !ok {
		t.Fatalf("DecodeAt(0) ok=false")
	}
	if bigint.Compare(dec, msg) != 0 {
		t.Errorf("DecodeAt(historical) = %v, want %v", dec.Words(), msg.Words())
	}
}

func TestFindValueLocatesCurrentAndHistorical(t *testing.T) {
	k := genKeypair(t, 4)
	n := k.CurrentN()

	idx, isPublic, found := k.FindValue(n)
	if !found || idx != CurrentIndex || !isPublic {
		t.Errorf("FindValue(currentN) = (%d,%v,%v), want (%d,true,true)", idx, isPublic, found, CurrentIndex)
	}

	notPresent := bigint.FromUint64(4, 0xDEADBEEF)
	if _, _, found := k.FindValue(notPresent); found {
		t.Errorf("FindValue(unrelated value) found=true, want false")
	}
}

func TestFindByHash(t *testing.T) {
	k := genKeypair(t, 4)
	s, err := suite.NewChaChaSHA256(32)
	if err != nil {
		t.Fatalf("NewChaChaSHA256: %v", err)
	}
	n := k.CurrentN()
	h := s.Hash(n.Bytes())

	idx, isPublic, found := k.Find(h, s)
	if !found || idx != CurrentIndex || !isPublic {
		t.Errorf("Find(hash of N) = (%d,%v,%v), want (%d,true,true)", idx, isPublic, found, CurrentIndex)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	k := genKeypair(t, 4)
	s, err := suite.NewChaChaSHA256(32)
	if err != nil {
		t.Fatalf("NewChaChaSHA256: %v", err)
	}

	var buf bytes.Buffer
	if err := k.Save(&buf, s, []byte("a passphrase")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf, s, []byte("a passphrase"), logging.NopLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bigint.Compare(loaded.CurrentN(), k.CurrentN()) != 0 {
		t.Errorf("Load().CurrentN() != original CurrentN()")
	}
	if loaded.WordLength() != k.WordLength() {
		t.Errorf("Load().WordLength() = %d, want %d", loaded.WordLength(), k.WordLength())
	}
}

func TestLoadWrongPasswordFailsToRecoverKey(t *testing.T) {
	k := genKeypair(t, 4)
	s, _ := suite.NewChaChaSHA256(32)

	var buf bytes.Buffer
	if err := k.Save(&buf, s, []byte("correct horse")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf, s, []byte("wrong password"), logging.NopLogger())
	if err != nil {
		// A structurally-rejected file (bad header) is an acceptable outcome.
		return
	}
	if bigint.Compare(loaded.CurrentN(), k.CurrentN()) == 0 {
		t.Errorf("Load() with wrong password recovered the original key")
	}
}

func TestBitLength(t *testing.T) {
	k := New(8, 2, MaxHistory, logging.NopLogger())
	if got, want := k.BitLength(), 256; got != want {
		t.Errorf("BitLength() = %d, want %d", got, want)
	}
}
