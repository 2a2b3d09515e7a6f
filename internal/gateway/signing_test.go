package gateway

import (
	"bytes"
	"testing"

	"github.com/skyformat99/cryptogateway/internal/bigint"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

func TestCanonicalTranscriptSymmetric(t *testing.T) {
	s, _ := suite.NewChaChaSHA256(32)
	a := canonicalTranscript(s, []byte("seed-alice"), []byte("seed-bob"), "alice", "bob")
	b := canonicalTranscript(s, []byte("seed-bob"), []byte("seed-alice"), "bob", "alice")
	if !bytes.Equal(a, b) {
		t.Errorf("canonicalTranscript is not order-independent: %x != %x", a, b)
	}
}

func TestReduceSignInputDeterministicAndBounded(t *testing.T) {
	s, _ := suite.NewChaChaSHA256(32)
	transcript := s.Hash([]byte("some transcript"))

	v1 := reduceSignInput(s, transcript, 1000, 4)
	v2 := reduceSignInput(s, transcript, 1000, 4)
	if bigint.Compare(v1, v2) != 0 {
		t.Errorf("reduceSignInput not deterministic for identical inputs")
	}

	v3 := reduceSignInput(s, transcript, 1001, 4)
	if bigint.Compare(v1, v3) == 0 {
		t.Errorf("reduceSignInput produced identical output for different timestamps")
	}

	// Top two bits of the top word must be cleared so the value is
	// guaranteed smaller than any modulus whose top bit is set.
	top := v1.Words()[3]
	if top&(uint32(3)<<(bigint.WordBits-2)) != 0 {
		t.Errorf("reduceSignInput left top two bits set: %#x", top)
	}
}

func TestEncodeDecodeSigningMessageRoundTrip(t *testing.T) {
	primary := bigint.FromUint64(4, 0xABCD1234)
	p := signingPayload{
		senderState:  StateSigning,
		primaryTS:    12345,
		primarySig:   primary,
		primaryWords: 4,
		acceptableHashes: [][]byte{
			bytes.Repeat([]byte{0xAA}, 32),
			bytes.Repeat([]byte{0xBB}, 32),
		},
	}

	wire := encodeSigningMessage(p, 32)
	decoded, err := decodeSigningMessage(wire, 4, 4, 32)
	if err != nil {
		t.Fatalf("decodeSigningMessage: %v", err)
	}
	if decoded.senderState != p.senderState {
		t.Errorf("senderState = %v, want %v", decoded.senderState, p.senderState)
	}
	if decoded.primaryTS != p.primaryTS {
		t.Errorf("primaryTS = %d, want %d", decoded.primaryTS, p.primaryTS)
	}
	if bigint.Compare(decoded.primarySig, primary) != 0 {
		t.Errorf("primarySig = %v, want %v", decoded.primarySig.Words(), primary.Words())
	}
	if decoded.hasSecondary {
		t.Errorf("hasSecondary = true, want false")
	}
	if len(decoded.acceptableHashes) != 2 {
		t.Fatalf("acceptableHashes len = %d, want 2", len(decoded.acceptableHashes))
	}
	if !hashInList(bytes.Repeat([]byte{0xAA}, 32), decoded.acceptableHashes) {
		t.Errorf("decoded acceptableHashes missing the first advertised hash")
	}
}

func TestEncodeDecodeSigningMessageWithSecondary(t *testing.T) {
	p := signingPayload{
		senderState:      StateConfirmOld,
		primaryTS:        1,
		primarySig:       bigint.FromUint64(4, 7),
		primaryWords:     4,
		hasSecondary:     true,
		secondaryTS:      2,
		secondarySig:     bigint.FromUint64(4, 9),
		secondaryWords:   4,
		secondaryKeyHash: bytes.Repeat([]byte{0xCC}, 32),
	}
	wire := encodeSigningMessage(p, 32)
	decoded, err := decodeSigningMessage(wire, 4, 4, 32)
	if err != nil {
		t.Fatalf("decodeSigningMessage: %v", err)
	}
	if !decoded.hasSecondary {
		t.Fatalf("hasSecondary = false, want true")
	}
	if bigint.Compare(decoded.secondarySig, p.secondarySig) != 0 {
		t.Errorf("secondarySig = %v, want %v", decoded.secondarySig.Words(), p.secondarySig.Words())
	}
	if !bytes.Equal(decoded.secondaryKeyHash, p.secondaryKeyHash) {
		t.Errorf("secondaryKeyHash = %x, want %x", decoded.secondaryKeyHash, p.secondaryKeyHash)
	}
}

func TestDecodeSigningMessageRejectsTooManyHashes(t *testing.T) {
	hashes := make([][]byte, maxAcceptableHashes+1)
	for i := range hashes {
		hashes[i] = bytes.Repeat([]byte{byte(i)}, 32)
	}
	p := signingPayload{primarySig: bigint.FromUint64(4, 1), primaryWords: 4, acceptableHashes: hashes}
	wire := encodeSigningMessage(p, 32)
	if _, err := decodeSigningMessage(wire, 4, 4, 32); err == nil {
		t.Errorf("decodeSigningMessage accepted more than maxAcceptableHashes")
	}
}
