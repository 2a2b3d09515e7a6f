package suite

import "sync"

var (
	globalOnce     sync.Once
	globalRegistry *Registry
	globalPK       *PublicKeyRegistry
)

// initGlobal populates the process-wide registries exactly once. This is
// the library's single "first call constructs static" boundary; everything
// downstream of it treats the registries as read-only.
func initGlobal() {
	globalRegistry = NewRegistry()
	_ = globalRegistry.Register(StreamChaCha20, streamChaCha20Name, HashSHA256, hashSHA256Name, NewChaChaSHA256)
	_ = globalRegistry.Register(StreamChaCha20, streamChaCha20Name, HashSHA512, hashSHA512Name, NewChaChaSHA512)
	_ = globalRegistry.SetDefault(StreamChaCha20, HashSHA256)

	globalPK = NewPublicKeyRegistry()
	_ = globalPK.Register(PublicKeyDescriptor{ID: 1, Name: "rsa-128", WordSize: 4})
	_ = globalPK.Register(PublicKeyDescriptor{ID: 2, Name: "rsa-256", WordSize: 8})
	_ = globalPK.Register(PublicKeyDescriptor{ID: 3, Name: "rsa-512", WordSize: 16})
}

// Global returns the process-wide algorithm suite registry, initializing it
// on first use.
func Global() *Registry {
	globalOnce.Do(initGlobal)
	return globalRegistry
}

// GlobalPublicKeys returns the process-wide public-key algorithm registry.
func GlobalPublicKeys() *PublicKeyRegistry {
	globalOnce.Do(initGlobal)
	return globalPK
}
