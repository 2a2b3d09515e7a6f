// Package envelope implements the PUBLIC_UNLOCK file envelope lock-type:
// a session key sealed to a recipient's X25519 public key, rather than
// derived from a shared password. RSAKeypair and KeyBank persistence both
// accept this as an alternate save/load path alongside the
// password-seeded PRIVATE_UNLOCK form.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of an X25519 keypair half, in bytes.
	KeySize = 32

	// NonceSize is the ChaCha20-Poly1305 nonce size, in bytes.
	NonceSize = 12

	// TagSize is the Poly1305 authentication tag size, in bytes.
	TagSize = 16

	// Overhead is the total bytes a Box adds to a plaintext: the
	// ephemeral public key, the nonce, and the tag.
	Overhead = KeySize + NonceSize + TagSize

	hkdfInfo = "cryptogateway-public-unlock-v1"
)

var (
	// ErrNoPrivateKey is returned by Open when the Box was built with
	// NewBox (public half only).
	ErrNoPrivateKey = errors.New("envelope: no private key configured")

	// ErrShortCiphertext is returned by Open when the input is smaller
	// than Overhead.
	ErrShortCiphertext = errors.New("envelope: ciphertext too short")

	// ErrOpenFailed is returned when authentication fails.
	ErrOpenFailed = errors.New("envelope: decryption failed")
)

// GenerateKeypair returns a fresh X25519 keypair for use as a file
// envelope's recipient identity.
func GenerateKeypair() (privateKey, publicKey [KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, privateKey[:]); err != nil {
		return privateKey, publicKey, fmt.Errorf("envelope: generate private key: %w", err)
	}
	privateKey[0] &= 248
	privateKey[31] &= 127
	privateKey[31] |= 64

	curve25519.ScalarBaseMult(&publicKey, &privateKey)
	return privateKey, publicKey, nil
}

func computeECDH(privateKey, remotePublicKey [KeySize]byte) ([KeySize]byte, error) {
	var sharedSecret, zeroKey [KeySize]byte
	if remotePublicKey == zeroKey {
		return sharedSecret, fmt.Errorf("envelope: remote public key is zero")
	}
	curve25519.ScalarMult(&sharedSecret, &privateKey, &remotePublicKey)
	if sharedSecret == zeroKey {
		return sharedSecret, fmt.Errorf("envelope: ECDH produced a low-order point")
	}
	return sharedSecret, nil
}

func zeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Box seals plaintext to a recipient's X25519 public key, and -- when
// holding the matching private key -- opens what it sealed. KeyHash gives
// the identity fingerprint a file header stores alongside the payload.
type Box struct {
	publicKey  [KeySize]byte
	privateKey [KeySize]byte
	hasPrivate bool
}

// NewBox builds an encrypt-only box: the PUBLIC_UNLOCK writer path, for
// a process that knows only the recipient's public key.
func NewBox(recipientPublicKey [KeySize]byte) *Box {
	return &Box{publicKey: recipientPublicKey}
}

// NewBoxWithPrivate builds an encrypt-and-decrypt box: the PUBLIC_UNLOCK
// reader path, held by the recipient itself.
func NewBoxWithPrivate(publicKey, privateKey [KeySize]byte) *Box {
	return &Box{publicKey: publicKey, privateKey: privateKey, hasPrivate: true}
}

// CanOpen reports whether this box holds a private key.
func (b *Box) CanOpen() bool { return b.hasPrivate }

// PublicKey returns the recipient's public key.
func (b *Box) PublicKey() [KeySize]byte { return b.publicKey }

// KeyHash returns sha256(publicKey), the value a file envelope header
// stores so a reader can confirm which identity a file is locked to
// without attempting decryption.
func (b *Box) KeyHash() []byte {
	h := sha256.Sum256(b.publicKey[:])
	return h[:]
}

// Seal encrypts plaintext under a fresh ephemeral keypair. The output
// layout is ephemeral_public_key(32) || nonce(12) || ciphertext || tag(16).
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	ephPriv, ephPub, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	defer zeroKey(&ephPriv)

	shared, err := computeECDH(ephPriv, b.publicKey)
	if err != nil {
		return nil, err
	}
	defer zeroKey(&shared)

	symKey, err := deriveSymmetricKey(shared, ephPub, b.publicKey)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(symKey)

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: build cipher: %w", err)
	}

	out := make([]byte, KeySize+NonceSize, KeySize+NonceSize+len(plaintext)+TagSize)
	copy(out[0:KeySize], ephPub[:])
	copy(out[KeySize:KeySize+NonceSize], nonce[:])
	out = aead.Seal(out, nonce[:], plaintext, nil)
	return out, nil
}

// Open decrypts a box sealed with Seal against the matching public key.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if !b.hasPrivate {
		return nil, ErrNoPrivateKey
	}
	if len(sealed) < Overhead {
		return nil, ErrShortCiphertext
	}

	var ephPub [KeySize]byte
	copy(ephPub[:], sealed[0:KeySize])
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[KeySize:KeySize+NonceSize])

	shared, err := computeECDH(b.privateKey, ephPub)
	if err != nil {
		return nil, err
	}
	defer zeroKey(&shared)

	symKey, err := deriveSymmetricKey(shared, ephPub, b.publicKey)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(symKey)

	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: build cipher: %w", err)
	}

	plain, err := aead.Open(nil, nonce[:], sealed[KeySize+NonceSize:], nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plain, nil
}

// Zero clears the private key. Call once the box is no longer needed.
func (b *Box) Zero() {
	zeroKey(&b.privateKey)
	b.hasPrivate = false
}

func deriveSymmetricKey(sharedSecret, ephemeralPublic, recipientPublic [KeySize]byte) ([]byte, error) {
	salt := make([]byte, KeySize+KeySize)
	copy(salt[0:KeySize], ephemeralPublic[:])
	copy(salt[KeySize:], recipientPublic[:])

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, sharedSecret[:], salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("envelope: derive key: %w", err)
	}
	return key, nil
}
