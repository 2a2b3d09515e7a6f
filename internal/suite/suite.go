// Package suite implements the algorithm suite descriptor and registries
// that the gateway state machine uses to build stream ciphers and hash
// transcripts. The stream and hash primitives themselves stay behind
// named algorithm ids; callers depend only on the byte-level behavior a
// Suite exposes.
package suite

import (
	"fmt"
	"sync"
)

// StreamCipher produces a deterministic, effectively infinite keystream
// from a seed. Suite.BuildStream(seed) must be deterministic: the same
// seed and algorithm always produce the same keystream.
type StreamCipher interface {
	// NextKeystreamByte returns the next byte of keystream.
	NextKeystreamByte() byte
	// XORKeyStream XORs src with the next len(src) keystream bytes into dst.
	XORKeyStream(dst, src []byte)
}

// Suite is an immutable descriptor binding a stream cipher and a keyed
// hash to a digest size.
type Suite interface {
	StreamID() uint16
	StreamName() string
	HashID() uint16
	HashName() string
	HashSizeBytes() int

	// BuildStream derives a StreamCipher from a seed of at most
	// StreamSeedMax bytes; longer seeds are rejected. Callers typically
	// supply exactly HashSizeBytes or StreamSeedMax bytes.
	BuildStream(seed []byte) (StreamCipher, error)

	// Hash digests data to exactly HashSizeBytes bytes.
	Hash(data []byte) []byte

	// EmptyHash returns the sentinel digest used when an algorithm has been
	// chosen but nothing has been hashed yet.
	EmptyHash() []byte

	// WithHashSize returns a clone of this suite with a different digest
	// size; the stream and hash algorithm choice do not change.
	WithHashSize(size int) (Suite, error)
}

// Factory builds a Suite instance for a given hash size.
type Factory func(hashSizeBytes int) (Suite, error)

// entry pairs a factory with the id/name the registry indexes it by.
type entry struct {
	streamID   uint16
	streamName string
	hashID     uint16
	hashName   string
	factory    Factory
}

// Registry is a process-wide, append-only map from (streamID, hashID) and
// (streamName, hashName) to a Suite factory.
type Registry struct {
	mu       sync.RWMutex
	byID     map[[2]uint16]entry
	byName   map[[2]string]entry
	defaultK [2]uint16
	hasDflt  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[[2]uint16]entry),
		byName: make(map[[2]string]entry),
	}
}

// Register adds a factory under the given stream/hash id and name pair.
// Registration is append-only: re-registering the same (streamID, hashID)
// pair returns an error.
func (r *Registry) Register(streamID uint16, streamName string, hashID uint16, hashName string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idKey := [2]uint16{streamID, hashID}
	if _, exists := r.byID[idKey]; exists {
		return fmt.Errorf("suite: algorithm bind (%d,%d) already registered", streamID, hashID)
	}
	e := entry{streamID: streamID, streamName: streamName, hashID: hashID, hashName: hashName, factory: f}
	r.byID[idKey] = e
	r.byName[[2]string{streamName, hashName}] = e
	return nil
}

// SetDefault marks the (streamID, hashID) bind, which must already be
// registered, as this registry's default suite.
func (r *Registry) SetDefault(streamID, hashID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[[2]uint16{streamID, hashID}]; !ok {
		return fmt.Errorf("suite: cannot default to unregistered bind (%d,%d)", streamID, hashID)
	}
	r.defaultK = [2]uint16{streamID, hashID}
	r.hasDflt = true
	return nil
}

// Build constructs a Suite for the given ids and hash size.
func (r *Registry) Build(streamID, hashID uint16, hashSizeBytes int) (Suite, error) {
	r.mu.RLock()
	e, ok := r.byID[[2]uint16{streamID, hashID}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("suite: unknown algorithm bind (%d,%d)", streamID, hashID)
	}
	return e.factory(hashSizeBytes)
}

// BuildByName constructs a Suite for the given algorithm names and hash size.
func (r *Registry) BuildByName(streamName, hashName string, hashSizeBytes int) (Suite, error) {
	r.mu.RLock()
	e, ok := r.byName[[2]string{streamName, hashName}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("suite: unknown algorithm names (%q,%q)", streamName, hashName)
	}
	return e.factory(hashSizeBytes)
}

// Default builds the registry's default suite at the given hash size.
// Returns an error if no default has been set.
func (r *Registry) Default(hashSizeBytes int) (Suite, error) {
	r.mu.RLock()
	k := r.defaultK
	ok := r.hasDflt
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("suite: no default algorithm suite configured")
	}
	return r.Build(k[0], k[1], hashSizeBytes)
}

// PublicKeyDescriptor names a registered RSA-like public-key algorithm.
type PublicKeyDescriptor struct {
	ID       uint16
	Name     string
	WordSize int // in 32-bit words, N
}

// PublicKeyRegistry enumerates RSA-like public-key suites by id and name,
// independent of the stream/hash registry above.
type PublicKeyRegistry struct {
	mu     sync.RWMutex
	byID   map[uint16]PublicKeyDescriptor
	byName map[string]PublicKeyDescriptor
}

// NewPublicKeyRegistry returns an empty public-key algorithm registry.
func NewPublicKeyRegistry() *PublicKeyRegistry {
	return &PublicKeyRegistry{
		byID:   make(map[uint16]PublicKeyDescriptor),
		byName: make(map[string]PublicKeyDescriptor),
	}
}

// Register adds a public-key algorithm descriptor.
func (r *PublicKeyRegistry) Register(d PublicKeyDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("suite: public-key algorithm id %d already registered", d.ID)
	}
	r.byID[d.ID] = d
	r.byName[d.Name] = d
	return nil
}

// ByID looks up a public-key algorithm descriptor by id.
func (r *PublicKeyRegistry) ByID(id uint16) (PublicKeyDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// ByName looks up a public-key algorithm descriptor by name.
func (r *PublicKeyRegistry) ByName(name string) (PublicKeyDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}
