package gateway

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/skyformat99/cryptogateway/internal/bigint"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

// maxAcceptableHashes bounds the list of historical-key hashes a SIGNING_MESSAGE
// advertises as still acceptable from the remote.
const maxAcceptableHashes = 5

// canonicalTranscript hashes the two stream-key seeds and the two peers'
// (group,name) identities in an order that does not depend on which side of
// the handshake is computing it, so both ends land on the same digest.
func canonicalTranscript(s suite.Suite, seedA, seedB []byte, idA, idB string) []byte {
	s1, s2 := seedA, seedB
	if bytes.Compare(s1, s2) > 0 {
		s1, s2 = s2, s1
	}
	n1, n2 := idA, idB
	if n1 > n2 {
		n1, n2 = n2, n1
	}
	buf := make([]byte, 0, len(s1)+len(s2)+len(n1)+len(n2))
	buf = append(buf, s1...)
	buf = append(buf, s2...)
	buf = append(buf, []byte(n1)...)
	buf = append(buf, []byte(n2)...)
	return s.Hash(buf)
}

// reduceSignInput overlays a timestamp onto the transcript digest, hashes
// the result, and reduces it to a BigInt of wordLen words with its top two
// bits cleared so the signing exponentiation's input is always strictly
// less than any modulus of that width.
func reduceSignInput(s suite.Suite, transcript []byte, unixTS int64, wordLen int) *bigint.Int {
	tsBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBytes, uint64(unixTS))
	combined := s.Hash(append(append([]byte{}, transcript...), tsBytes...))
	v := bigint.FromBytes(wordLen, combined)
	words := v.Words()
	top := wordLen - 1
	words[top] &^= uint32(3) << (bigint.WordBits - 2)
	v.SetWords(words)
	return v
}

// signingPayload is the decoded form of a SIGNING_MESSAGE body.
type signingPayload struct {
	senderState State

	primaryTS    int64
	primarySig   *bigint.Int
	primaryWords int

	hasSecondary     bool
	secondaryTS      int64
	secondarySig     *bigint.Int
	secondaryWords   int
	secondaryKeyHash []byte

	acceptableHashes [][]byte
}

// encodeSigningMessage packs a signingPayload into wire bytes. hashSize is
// the sending suite's digest width, used both for secondaryKeyHash and the
// acceptable-hash list entries.
func encodeSigningMessage(p signingPayload, hashSize int) []byte {
	primaryLen := p.primaryWords * 4
	secondaryLen := p.secondaryWords * 4
	if secondaryLen == 0 {
		secondaryLen = primaryLen
	}

	buf := make([]byte, 0, 1+8+8+primaryLen+1+secondaryLen+hashSize+1+len(p.acceptableHashes)*hashSize)
	buf = append(buf, byte(p.senderState))

	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(p.primaryTS))
	buf = append(buf, ts...)
	binary.LittleEndian.PutUint64(ts, uint64(p.secondaryTS))
	buf = append(buf, ts...)

	buf = append(buf, p.primarySig.Bytes()...)

	if p.hasSecondary {
		buf = append(buf, 1)
		buf = append(buf, p.secondarySig.Bytes()...)
		buf = append(buf, p.secondaryKeyHash...)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, secondaryLen)...)
		buf = append(buf, make([]byte, hashSize)...)
	}

	buf = append(buf, byte(len(p.acceptableHashes)))
	for _, h := range p.acceptableHashes {
		buf = append(buf, h...)
	}
	return buf
}

// decodeSigningMessage parses a SIGNING_MESSAGE body, given the sizes the
// remote's advertised algorithm preferences imply.
func decodeSigningMessage(payload []byte, primaryWords, secondaryWords, hashSize int) (signingPayload, error) {
	primaryLen := primaryWords * 4
	secondaryLen := secondaryWords * 4
	if secondaryLen == 0 {
		secondaryLen = primaryLen
	}

	need := 1 + 8 + 8 + primaryLen + 1 + secondaryLen + hashSize + 1
	if len(payload) < need {
		return signingPayload{}, fmt.Errorf("gateway: SIGNING_MESSAGE too short: have %d, need at least %d", len(payload), need)
	}

	off := 0
	senderState := State(payload[off])
	off++

	primaryTS := int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	secondaryTS := int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8

	primarySig := bigint.FromBytes(primaryWords, payload[off:off+primaryLen])
	off += primaryLen

	hasSecondary := payload[off] == 1
	off++

	secondarySig := bigint.FromBytes(secondaryWords, payload[off:off+secondaryLen])
	off += secondaryLen

	secondaryKeyHash := append([]byte(nil), payload[off:off+hashSize]...)
	off += hashSize

	count := int(payload[off])
	off++
	if count > maxAcceptableHashes {
		return signingPayload{}, fmt.Errorf("gateway: SIGNING_MESSAGE advertises %d acceptable hashes, max %d", count, maxAcceptableHashes)
	}
	if len(payload) < off+count*hashSize {
		return signingPayload{}, fmt.Errorf("gateway: SIGNING_MESSAGE truncated acceptable-hash list")
	}
	hashes := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		hashes = append(hashes, append([]byte(nil), payload[off:off+hashSize]...))
		off += hashSize
	}

	return signingPayload{
		senderState:      senderState,
		primaryTS:        primaryTS,
		primarySig:       primarySig,
		primaryWords:     primaryWords,
		hasSecondary:     hasSecondary,
		secondaryTS:      secondaryTS,
		secondarySig:     secondarySig,
		secondaryWords:   secondaryWords,
		secondaryKeyHash: secondaryKeyHash,
		acceptableHashes: hashes,
	}, nil
}

func hashInList(hash []byte, list [][]byte) bool {
	for _, h := range list {
		if bytes.Equal(h, hash) {
			return true
		}
	}
	return false
}
