// Package keybank implements the authoritative local record of which
// public keys belong to which named peer: a bank of Node values, plus
// two indexes (group+name -> node, key fingerprint -> node) that stay
// consistent under merges.
package keybank

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skyformat99/cryptogateway/internal/gwmetrics"
)

// NameEntry is one (group, name) alias observed for a peer, with the time
// it was learned.
type NameEntry struct {
	Group     string
	Name      string
	Timestamp time.Time
}

// KeyEntry is one public key observed for a peer, with the time it was
// learned.
type KeyEntry struct {
	Value     []byte
	AlgoID    uint16
	KeyWords  int
	Timestamp time.Time
}

// Node clusters the names and keys believed to belong to a single peer.
type Node struct {
	id    uint64
	names []NameEntry
	keys  []KeyEntry
}

// ID returns the node's internal identifier, stable until it is merged
// into another node.
func (n *Node) ID() uint64 { return n.id }

// Names returns a copy of the node's name entries.
func (n *Node) Names() []NameEntry {
	out := make([]NameEntry, len(n.names))
	copy(out, n.names)
	return out
}

// Keys returns a copy of the node's key entries.
func (n *Node) Keys() []KeyEntry {
	out := make([]KeyEntry, len(n.keys))
	copy(out, n.keys)
	return out
}

type nameKey struct {
	group, name string
}

type keyKey struct {
	algoID   uint16
	keyWords int
	value    string
}

func newKeyKey(algoID uint16, keyWords int, value []byte) keyKey {
	return keyKey{algoID: algoID, keyWords: keyWords, value: string(value)}
}

// Bank is the owner-plus-indexes key bank: one map owns Node values, two
// further maps hold non-owning (group,name) and key-fingerprint references
// into it. All three are mutated atomically with respect to Find calls.
type Bank struct {
	mu      sync.RWMutex
	nodes   map[uint64]*Node
	nextID  uint64
	byName  map[nameKey]uint64
	byKey   map[keyKey]uint64
	metrics *gwmetrics.Metrics
}

// New returns an empty key bank.
func New() *Bank {
	return &Bank{
		nodes:  make(map[uint64]*Node),
		byName: make(map[nameKey]uint64),
		byKey:  make(map[keyKey]uint64),
	}
}

// SetMetrics binds the Prometheus metrics instance AddPair reports merges
// through. Passing nil disables reporting.
func (b *Bank) SetMetrics(m *gwmetrics.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

// AddPair records that (group, name) and key belong to the same peer,
// creating, extending, or merging nodes as needed. When the name and the
// key already belong to different nodes, the key's node is merged into the
// name's node.
func (b *Bank) AddPair(group, name string, keyValue []byte, algoID uint16, keyWords int) *Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	nk := nameKey{group: group, name: name}
	kk := newKeyKey(algoID, keyWords, keyValue)
	now := time.Now()

	aID, aOK := b.byName[nk]
	bID, bOK := b.byKey[kk]

	switch {
	case !aOK && !bOK:
		id := b.nextID
		b.nextID++
		node := &Node{
			id:    id,
			names: []NameEntry{{Group: group, Name: name, Timestamp: now}},
			keys:  []KeyEntry{{Value: cloneBytes(keyValue), AlgoID: algoID, KeyWords: keyWords, Timestamp: now}},
		}
		b.nodes[id] = node
		b.byName[nk] = id
		b.byKey[kk] = id
		return node

	case aOK && !bOK:
		node := b.nodes[aID]
		node.keys = append(node.keys, KeyEntry{Value: cloneBytes(keyValue), AlgoID: algoID, KeyWords: keyWords, Timestamp: now})
		b.byKey[kk] = aID
		return node

	case !aOK && bOK:
		node := b.nodes[bID]
		node.names = append(node.names, NameEntry{Group: group, Name: name, Timestamp: now})
		b.byName[nk] = bID
		return node

	case aID == bID:
		return b.nodes[aID]

	default:
		return b.mergeLocked(aID, bID)
	}
}

// mergeLocked absorbs loser's names and keys into winner (the node found
// by name), deletes loser, and rewrites both indexes to point at winner.
// Caller must hold mu for writing.
func (b *Bank) mergeLocked(winnerID, loserID uint64) *Node {
	winner := b.nodes[winnerID]
	loser := b.nodes[loserID]

	winner.names = append(winner.names, loser.names...)
	winner.keys = append(winner.keys, loser.keys...)

	for _, ne := range loser.names {
		b.byName[nameKey{group: ne.Group, name: ne.Name}] = winnerID
	}
	for _, ke := range loser.keys {
		b.byKey[newKeyKey(ke.AlgoID, ke.KeyWords, ke.Value)] = winnerID
	}

	delete(b.nodes, loserID)
	if b.metrics != nil {
		b.metrics.BankMerges.Inc()
	}
	return winner
}

// Find looks up a node by (group, name).
func (b *Bank) Find(group, name string) (*Node, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byName[nameKey{group: group, name: name}]
	if !ok {
		return nil, false
	}
	return b.nodes[id], true
}

// FindByKey looks up a node by a public key's (algoID, keyWords, value).
func (b *Bank) FindByKey(algoID uint16, keyWords int, value []byte) (*Node, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byKey[newKeyKey(algoID, keyWords, value)]
	if !ok {
		return nil, false
	}
	return b.nodes[id], true
}

// FindByNamePrefix returns every node with at least one name in the given
// group whose value has prefix as a case-insensitive prefix. This is a
// convenience addition beyond the exact-match Find contract, ported from
// the fuzzy lookup the original key bank offered callers building
// interactive pickers.
func (b *Bank) FindByNamePrefix(group, prefix string) []*Node {
	b.mu.RLock()
	defer b.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	seen := make(map[uint64]bool)
	var out []*Node
	for nk, id := range b.byName {
		if nk.group != group {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(nk.name), prefix) {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, b.nodes[id])
	}
	return out
}

// NamesByTimestamp returns node's names, most recent first.
func NamesByTimestamp(node *Node) []NameEntry {
	out := node.Names()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// KeysByTimestamp returns node's keys, most recent first.
func KeysByTimestamp(node *Node) []KeyEntry {
	out := node.Keys()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Nodes returns every node currently in the bank, in no particular order.
func (b *Bank) Nodes() []*Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	return out
}

// Len reports the number of distinct nodes currently in the bank.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
