package keybank

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/skyformat99/cryptogateway/internal/envelope"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

// defaultPassword matches rsakeypair's fallback so a bank can always be
// written and reread without external key material.
const defaultPassword = "default"

// wireNode/wireName/wireKey are the gob-serializable tree-of-records shape
// persisted to disk; Node keeps its id private, so these carry only the
// fields a reload actually needs to round-trip.
type wireName struct {
	Group     string
	Name      string
	Timestamp int64
}

type wireKey struct {
	Value     []byte
	AlgoID    uint16
	KeyWords  int
	Timestamp int64
}

type wireNode struct {
	Names []wireName
	Keys  []wireKey
}

// Save serializes the bank as a tree of records and writes it through a
// password-seeded stream cipher built from s, the same envelope style
// RSAKeypair uses.
func (b *Bank) Save(w io.Writer, s suite.Suite, password []byte) error {
	plain, err := b.marshal()
	if err != nil {
		return err
	}

	seedPassword := password
	if len(seedPassword) == 0 {
		seedPassword = []byte(defaultPassword)
	}
	seed := s.Hash(seedPassword)
	stream, err := s.BuildStream(seed)
	if err != nil {
		return fmt.Errorf("keybank: build stream cipher: %w", err)
	}
	cipherText := make([]byte, len(plain))
	stream.XORKeyStream(cipherText, plain)

	_, err = w.Write(cipherText)
	return err
}

// SavePublic writes the bank under the PUBLIC_UNLOCK lock-type: sealed
// to recipientPublicKey instead of derived from a password.
func (b *Bank) SavePublic(w io.Writer, recipientPublicKey [envelope.KeySize]byte) error {
	plain, err := b.marshal()
	if err != nil {
		return err
	}
	sealed, err := envelope.NewBox(recipientPublicKey).Seal(plain)
	if err != nil {
		return fmt.Errorf("keybank: seal public envelope: %w", err)
	}
	_, err = w.Write(sealed)
	return err
}

// LoadPublic reads a bank written by SavePublic, opening it with the
// recipient's private key.
func LoadPublic(r io.Reader, publicKey, privateKey [envelope.KeySize]byte) (*Bank, error) {
	sealed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("keybank: read file: %w", err)
	}
	plain, err := envelope.NewBoxWithPrivate(publicKey, privateKey).Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("keybank: open public envelope: %w", err)
	}
	return unmarshal(plain)
}

func (b *Bank) marshal() ([]byte, error) {
	b.mu.RLock()
	nodes := make([]wireNode, 0, len(b.nodes))
	for _, n := range b.nodes {
		wn := wireNode{}
		for _, ne := range n.names {
			wn.Names = append(wn.Names, wireName{Group: ne.Group, Name: ne.Name, Timestamp: ne.Timestamp.Unix()})
		}
		for _, ke := range n.keys {
			wn.Keys = append(wn.Keys, wireKey{Value: ke.Value, AlgoID: ke.AlgoID, KeyWords: ke.KeyWords, Timestamp: ke.Timestamp.Unix()})
		}
		nodes = append(nodes, wn)
	}
	b.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(nodes); err != nil {
		return nil, fmt.Errorf("keybank: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads a bank written by Save, using the same suite and password.
// Indexes are rebuilt from the decoded node list via AddPair so that
// Load produces a bank satisfying the same invariants as one built live.
func Load(r io.Reader, s suite.Suite, password []byte) (*Bank, error) {
	cipherText, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("keybank: read file: %w", err)
	}

	seedPassword := password
	if len(seedPassword) == 0 {
		seedPassword = []byte(defaultPassword)
	}
	seed := s.Hash(seedPassword)
	stream, err := s.BuildStream(seed)
	if err != nil {
		return nil, fmt.Errorf("keybank: build stream cipher: %w", err)
	}
	plain := make([]byte, len(cipherText))
	stream.XORKeyStream(plain, cipherText)

	return unmarshal(plain)
}

func unmarshal(plain []byte) (*Bank, error) {
	var nodes []wireNode
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("keybank: decode: %w", err)
	}

	bank := New()
	for _, wn := range nodes {
		if len(wn.Names) == 0 || len(wn.Keys) == 0 {
			continue
		}
		// Re-run every observed (name, key) pair through AddPair so the
		// reconstructed bank merges exactly as a live sequence would.
		for _, ne := range wn.Names {
			for _, ke := range wn.Keys {
				bank.AddPair(ne.Group, ne.Name, ke.Value, ke.AlgoID, ke.KeyWords)
			}
		}
		// Re-stamp timestamps from the wire record (AddPair uses time.Now()).
		node, _ := bank.Find(wn.Names[0].Group, wn.Names[0].Name)
		if node != nil {
			restampLocked(node, wn)
		}
	}

	return bank, nil
}

func restampLocked(node *Node, wn wireNode) {
	byName := make(map[nameKey]time.Time)
	for _, ne := range wn.Names {
		byName[nameKey{group: ne.Group, name: ne.Name}] = time.Unix(ne.Timestamp, 0)
	}
	for i, ne := range node.names {
		if ts, ok := byName[nameKey{group: ne.Group, name: ne.Name}]; ok {
			node.names[i].Timestamp = ts
		}
	}
	byKey := make(map[string]time.Time)
	for _, ke := range wn.Keys {
		byKey[newKeyKey(ke.AlgoID, ke.KeyWords, ke.Value).value] = time.Unix(ke.Timestamp, 0)
	}
	for i, ke := range node.keys {
		if ts, ok := byKey[newKeyKey(ke.AlgoID, ke.KeyWords, ke.Value).value]; ok {
			node.keys[i].Timestamp = ts
		}
	}
}
