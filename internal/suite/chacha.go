package suite

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// ErrHashExpand reports an HKDF expansion failure inside Hash. Suite
// construction bounds the digest size to the expansion limit, so
// reaching this is a programming error, not a runtime condition.
var ErrHashExpand = errors.New("suite: hash expansion failed")

// Algorithm ids for the built-in suite. Stream and hash algorithms are
// numbered independently of hash output size.
const (
	StreamChaCha20 uint16 = 1
	HashSHA256     uint16 = 1
	HashSHA512     uint16 = 2
)

// StreamSeedMax bounds the seed length BuildStream accepts; it covers the
// widest stream-key seed the gateway generates (a 512-bit modulus width).
const StreamSeedMax = 64

const (
	streamChaCha20Name = "chacha20"
	hashSHA256Name     = "sha256"
	hashSHA512Name     = "sha512"

	hkdfStreamInfo = "cryptogateway-stream-v1"
	hkdfHashInfo   = "cryptogateway-hash-v1"
)

// chachaCipher wraps golang.org/x/crypto/chacha20 to expose the
// byte-at-a-time keystream interface the gateway's suite abstraction wants.
type chachaCipher struct {
	c   *chacha20.Cipher
	buf [64]byte
	pos int
}

func newChaChaStream(seed []byte) (StreamCipher, error) {
	if len(seed) > StreamSeedMax {
		return nil, fmt.Errorf("suite: seed exceeds %d bytes", StreamSeedMax)
	}
	key := make([]byte, chacha20.KeySize)
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfStreamInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("suite: derive stream key: %w", err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("suite: build chacha20 cipher: %w", err)
	}
	return &chachaCipher{c: c, pos: 64}, nil
}

func (c *chachaCipher) refill() {
	var zero [64]byte
	c.c.XORKeyStream(c.buf[:], zero[:])
	c.pos = 0
}

// NextKeystreamByte returns the next byte of keystream.
func (c *chachaCipher) NextKeystreamByte() byte {
	if c.pos >= 64 {
		c.refill()
	}
	b := c.buf[c.pos]
	c.pos++
	return b
}

// XORKeyStream XORs src into dst using successive keystream bytes.
func (c *chachaCipher) XORKeyStream(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ c.NextKeystreamByte()
	}
}

// chachaSuite implements Suite with a ChaCha20 stream and an HKDF-expanded
// SHA-256/SHA-512 keyed hash. The hash is keyed by the suite's own fixed
// derivation, not by caller-supplied data.
type chachaSuite struct {
	hashID   uint16
	hashName string
	newHash  func() hash.Hash
	size     int
}

// NewChaChaSHA256 returns a Suite pairing ChaCha20 with SHA-256-keyed
// hashing at the requested digest size.
func NewChaChaSHA256(hashSizeBytes int) (Suite, error) {
	return newChachaSuite(HashSHA256, hashSHA256Name, sha256.New, hashSizeBytes)
}

// NewChaChaSHA512 returns a Suite pairing ChaCha20 with SHA-512-keyed
// hashing at the requested digest size.
func NewChaChaSHA512(hashSizeBytes int) (Suite, error) {
	return newChachaSuite(HashSHA512, hashSHA512Name, sha512.New, hashSizeBytes)
}

func newChachaSuite(hashID uint16, hashName string, newHash func() hash.Hash, size int) (Suite, error) {
	if size <= 0 {
		return nil, fmt.Errorf("suite: hash size must be positive, got %d", size)
	}
	if limit := 255 * newHash().Size(); size > limit {
		return nil, fmt.Errorf("suite: hash size %d exceeds the %d-byte expansion limit", size, limit)
	}
	return &chachaSuite{hashID: hashID, hashName: hashName, newHash: newHash, size: size}, nil
}

func (s *chachaSuite) StreamID() uint16     { return StreamChaCha20 }
func (s *chachaSuite) StreamName() string   { return streamChaCha20Name }
func (s *chachaSuite) HashID() uint16       { return s.hashID }
func (s *chachaSuite) HashName() string     { return s.hashName }
func (s *chachaSuite) HashSizeBytes() int   { return s.size }

func (s *chachaSuite) BuildStream(seed []byte) (StreamCipher, error) {
	return newChaChaStream(seed)
}

// Hash produces a fixed-size digest by HMAC-ing data with a suite-local
// fixed key and then stretching/truncating the result to HashSizeBytes via
// HKDF-expand, so any configured digest size is supported regardless of
// the underlying hash's native output width. Construction already bounds
// the size to the expansion limit, so a failed expand panics with
// ErrHashExpand rather than returning a truncated digest.
func (s *chachaSuite) Hash(data []byte) []byte {
	mac := hmac.New(s.newHash, []byte(hkdfHashInfo))
	mac.Write(data)
	seed := mac.Sum(nil)

	out := make([]byte, s.size)
	reader := hkdf.Expand(s.newHash, seed, []byte(hkdfHashInfo))
	if _, err := io.ReadFull(reader, out); err != nil {
		panic(fmt.Errorf("%w: %v", ErrHashExpand, err))
	}
	return out
}

func (s *chachaSuite) EmptyHash() []byte {
	return make([]byte, s.size)
}

func (s *chachaSuite) WithHashSize(size int) (Suite, error) {
	return newChachaSuite(s.hashID, s.hashName, s.newHash, size)
}
