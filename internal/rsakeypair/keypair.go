// Package rsakeypair implements an RSA keypair with a bounded history of
// retired keys: it can decrypt messages and sign challenges with any key
// that has not yet expired out of history.
package rsakeypair

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyformat99/cryptogateway/internal/bigint"
	"github.com/skyformat99/cryptogateway/internal/gwerrors"
	"github.com/skyformat99/cryptogateway/internal/gwmetrics"
	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/primality"
	"github.com/skyformat99/cryptogateway/internal/recovery"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

// PublicExponent is the fixed RSA public exponent, e = 2^16 + 1.
const PublicExponent = 1<<16 + 1

// MaxHistory is the library-wide cap on retired-key history length.
const MaxHistory = 20

// CurrentIndex addresses the current keypair through the same lookup API
// used for historical entries.
const CurrentIndex = -1

// entry is one (N, D, timestamp) triple, current or historical.
type entry struct {
	N, D      *bigint.Int
	Timestamp time.Time
}

// Keypair is an RSA keypair plus up to MaxHistory retired predecessors.
// All reads take the read side of mu; rotation and installation take the
// write side.
type Keypair struct {
	mu         sync.RWMutex
	wordLen    int
	algoID     uint16
	historyMax int
	cur        entry
	history    []entry // most-recent-first

	logger     *slog.Logger
	generating atomic.Bool
	metrics    *gwmetrics.Metrics
}

// SetMetrics binds the Prometheus metrics instance Generate reports
// rotations, failures, and latency through. Passing nil disables reporting.
func (k *Keypair) SetMetrics(m *gwmetrics.Metrics) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.metrics = m
}

// New returns an empty keypair shell of the given word length and history
// bound; call Generate (or Load) to populate it.
func New(wordLen int, algoID uint16, historyMax int, logger *slog.Logger) *Keypair {
	if historyMax <= 0 || historyMax > MaxHistory {
		historyMax = MaxHistory
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Keypair{
		wordLen:    wordLen,
		algoID:     algoID,
		historyMax: historyMax,
		logger:     logger,
		cur:        entry{N: bigint.New(wordLen), D: bigint.New(wordLen)},
	}
}

// WordLength returns the configured word length N.
func (k *Keypair) WordLength() int { return k.wordLen }

// BitLength returns the modulus width in bits (32*N).
func (k *Keypair) BitLength() int { return k.wordLen * bigint.WordBits }

// Generating reports whether a background Generate call is in flight.
func (k *Keypair) Generating() bool { return k.generating.Load() }

// Generate runs key generation on a background goroutine and reports the
// result on the returned channel; a panic during generation is recovered
// and delivered there as an error. Installation (pushing the current pair
// into history and installing the new one) happens under the write lock
// once generation completes; readers of N/D block only for that final
// swap, not for the whole generation.
func (k *Keypair) Generate(rounds int) <-chan error {
	if rounds <= 0 {
		rounds = primality.DefaultRounds
	}
	result := make(chan error, 1)
	k.generating.Store(true)

	go func() {
		start := time.Now()
		defer k.generating.Store(false)
		defer recovery.Recover(k.logger, "rsakeypair.Generate", func(e *gwerrors.Error) {
			k.mu.RLock()
			m := k.metrics
			k.mu.RUnlock()
			if m != nil {
				m.KeyGenFailures.Inc()
			}
			result <- e
		})
		N, D, err := generate(k.wordLen, rounds)
		k.mu.RLock()
		m := k.metrics
		k.mu.RUnlock()
		if err != nil {
			k.logger.Error("rsa key generation failed", "error", err)
			if m != nil {
				m.KeyGenFailures.Inc()
			}
			result <- err
			return
		}

		k.mu.Lock()
		if !k.cur.N.IsZero() || !k.cur.D.IsZero() {
			k.pushHistoryLocked(k.cur)
		}
		k.cur = entry{N: N, D: D, Timestamp: time.Now()}
		histLen := len(k.history)
		k.mu.Unlock()

		if m != nil {
			m.KeyRotations.Inc()
			m.KeyGenLatency.Observe(time.Since(start).Seconds())
		}
		k.logger.Info("rsa keypair rotated", "bits", k.BitLength(), "history_len", histLen)
		result <- nil
	}()

	return result
}

// pushHistoryLocked inserts e at the front of history, evicting the oldest
// entry once the bound is exceeded. Caller must hold mu for writing.
func (k *Keypair) pushHistoryLocked(e entry) {
	k.history = append([]entry{e}, k.history...)
	if len(k.history) > k.historyMax {
		k.history = k.history[:k.historyMax]
	}
}

// generate picks two primes of half the target bit width, derives N and D,
// and returns them sized to wordLen words.
func generate(wordLen, rounds int) (*bigint.Int, *bigint.Int, error) {
	if wordLen < 2 || wordLen%2 != 0 {
		return nil, nil, fmt.Errorf("rsakeypair: word length must be even and >= 2, got %d", wordLen)
	}
	halfLen := wordLen / 2

	p, err := generatePrime(halfLen, rounds)
	if err != nil {
		return nil, nil, err
	}
	q, err := generatePrime(halfLen, rounds)
	if err != nil {
		return nil, nil, err
	}

	pFull := bigint.FromBytes(wordLen, p.Bytes())
	qFull := bigint.FromBytes(wordLen, q.Bytes())

	N := bigint.New(wordLen)
	if !bigint.Mul(pFull, qFull, N) {
		return nil, nil, fmt.Errorf("rsakeypair: modulus overflow during generation")
	}

	one := bigint.FromUint64(wordLen, 1)
	pMinus1 := bigint.New(wordLen)
	qMinus1 := bigint.New(wordLen)
	bigint.Sub(pFull, one, pMinus1)
	bigint.Sub(qFull, one, qMinus1)

	phi := bigint.New(wordLen)
	if !bigint.Mul(pMinus1, qMinus1, phi) {
		return nil, nil, fmt.Errorf("rsakeypair: totient overflow during generation")
	}

	// The extended-Euclidean intermediates (quotient times coefficient)
	// reach phi squared, so the inverse is computed at doubled width and
	// narrowed afterward; D itself is below phi and fits wordLen words.
	wide := 2 * wordLen
	e := bigint.FromUint64(wide, PublicExponent)
	dWide := bigint.New(wide)
	if !bigint.ModInverse(e, phi.Resize(wide), dWide) {
		return nil, nil, fmt.Errorf("rsakeypair: e has no inverse mod totient, retry generation")
	}

	return N, dWide.Resize(wordLen), nil
}

// powModWide runs base^exp mod m at twice m's word width so the squarings
// inside PowMod cannot overflow, then narrows the reduced result back down.
func powModWide(base, exp, m *bigint.Int) *bigint.Int {
	w := 2 * m.Len()
	out := bigint.New(w)
	bigint.PowMod(base.Resize(w), exp.Resize(w), m.Resize(w), out)
	return out.Resize(m.Len())
}

// PublicEncode computes value^e mod n against a bare modulus, for callers
// that hold only a peer's public half. Fails if value >= n.
func PublicEncode(value, n *bigint.Int) (*bigint.Int, bool) {
	if bigint.Compare(value, n) >= 0 {
		return bigint.New(n.Len()), false
	}
	e := bigint.FromUint64(n.Len(), PublicExponent)
	return powModWide(value, e, n), true
}

// PublicVerify computes sig^e mod n, recovering the value sig was produced
// over with the matching private half.
func PublicVerify(sig, n *bigint.Int) *bigint.Int {
	e := bigint.FromUint64(n.Len(), PublicExponent)
	return powModWide(sig, e, n)
}

func generatePrime(halfLen, rounds int) (*bigint.Int, error) {
	for attempts := 0; attempts < 1<<20; attempts++ {
		cand, err := randomCandidate(halfLen)
		if err != nil {
			return nil, err
		}
		if primality.MillerRabin(cand, rounds) {
			return cand, nil
		}
	}
	return nil, fmt.Errorf("rsakeypair: failed to find a prime candidate after many attempts")
}

// randomCandidate returns a random odd value of halfLen words with its
// top bit set, so candidates fill the target bit-width.
func randomCandidate(halfLen int) (*bigint.Int, error) {
	buf := make([]byte, halfLen*4)
	if err := readRandom(buf); err != nil {
		return nil, err
	}
	cand := bigint.FromBytes(halfLen, buf)
	words := cand.Words()
	words[0] |= 1
	words[halfLen-1] |= 1 << (bigint.WordBits - 1)
	cand.SetWords(words)
	return cand, nil
}

// Current returns the current (N, D, timestamp), each read under the read
// lock.
func (k *Keypair) Current() (N, D *bigint.Int, ts time.Time) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cur.N.Clone(), k.cur.D.Clone(), k.cur.Timestamp
}

// CurrentN returns a copy of the current modulus.
func (k *Keypair) CurrentN() *bigint.Int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cur.N.Clone()
}

// HistoryLen reports how many retired keys are held.
func (k *Keypair) HistoryLen() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.history)
}

// HistoricalN returns the modulus and timestamp of the ith retired key
// (0 is the most recently retired), for callers that need to advertise or
// sign with an older public half -- e.g. the gateway's secondary signature.
func (k *Keypair) HistoricalN(i int) (n *bigint.Int, ts time.Time, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if i < 0 || i >= len(k.history) {
		return nil, time.Time{}, false
	}
	return k.history[i].N.Clone(), k.history[i].Timestamp, true
}

// selectEntryLocked resolves CurrentIndex or a history slot under the read lock.
// Caller must already hold mu for reading.
func (k *Keypair) selectEntryLocked(historyIndex int) (entry, bool) {
	if historyIndex == CurrentIndex {
		return k.cur, true
	}
	if historyIndex < 0 || historyIndex >= len(k.history) {
		return entry{}, false
	}
	return k.history[historyIndex], true
}

// Encode computes c^e mod N using the current modulus. Fails if c >= N.
func (k *Keypair) Encode(c *bigint.Int) (*bigint.Int, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if bigint.Compare(c, k.cur.N) >= 0 {
		return bigint.New(k.wordLen), false
	}
	e := bigint.FromUint64(k.wordLen, PublicExponent)
	return powModWide(c, e, k.cur.N), true
}

// EncodeBytes is the hybrid byte-buffer overload: it packs buf little-endian
// into a BigInt of the keypair's word length, encodes in place, and writes
// the result back into buf (zero-padded if buf is shorter than the modulus
// width, truncated with loss if longer).
func (k *Keypair) EncodeBytes(buf []byte) bool {
	c := bigint.FromBytes(k.wordLen, buf)
	out, ok := k.Encode(c)
	if !ok {
		return false
	}
	result := out.Bytes()
	n := len(buf)
	if n > len(result) {
		n = len(result)
	}
	copy(buf[:n], result[:n])
	return true
}

// Decode computes c^D mod N using the current key. Fails if c > N.
func (k *Keypair) Decode(c *bigint.Int) (*bigint.Int, bool) {
	return k.DecodeAt(c, CurrentIndex)
}

// DecodeAt decodes c using the key at historyIndex (or CurrentIndex).
func (k *Keypair) DecodeAt(c *bigint.Int, historyIndex int) (*bigint.Int, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.selectEntryLocked(historyIndex)
	if !ok {
		return bigint.New(k.wordLen), false
	}
	if bigint.Compare(c, e.N) > 0 {
		return bigint.New(k.wordLen), false
	}
	return powModWide(c, e.D, e.N), true
}

// Find searches the current key and history for a stored N or D whose hash
// under s matches candidateHash. Returns the history index (or
// CurrentIndex), whether the match was the public half (N) or private half
// (D), and whether anything matched.
func (k *Keypair) Find(candidateHash []byte, s suite.Suite) (historyIndex int, isPublic bool, found bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if matchesHash(s, candidateHash, k.cur.N) {
		return CurrentIndex, true, true
	}
	if matchesHash(s, candidateHash, k.cur.D) {
		return CurrentIndex, false, true
	}
	for i, e := range k.history {
		if matchesHash(s, candidateHash, e.N) {
			return i, true, true
		}
		if matchesHash(s, candidateHash, e.D) {
			return i, false, true
		}
	}
	return 0, false, false
}

func matchesHash(s suite.Suite, candidateHash []byte, value *bigint.Int) bool {
	h := s.Hash(value.Bytes())
	if len(h) != len(candidateHash) {
		return false
	}
	for i := range h {
		if h[i] != candidateHash[i] {
			return false
		}
	}
	return true
}

// FindValue searches for a stored N or D equal to v.
func (k *Keypair) FindValue(v *bigint.Int) (historyIndex int, isPublic bool, found bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if bigint.Compare(k.cur.N, v) == 0 {
		return CurrentIndex, true, true
	}
	if bigint.Compare(k.cur.D, v) == 0 {
		return CurrentIndex, false, true
	}
	for i, e := range k.history {
		if bigint.Compare(e.N, v) == 0 {
			return i, true, true
		}
		if bigint.Compare(e.D, v) == 0 {
			return i, false, true
		}
	}
	return 0, false, false
}

func readRandom(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return err
}
