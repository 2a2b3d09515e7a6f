package rsakeypair

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skyformat99/cryptogateway/internal/bigint"
	"github.com/skyformat99/cryptogateway/internal/envelope"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

// defaultPassword seeds the file stream cipher when the caller supplies
// none, so a keypair can always be written and reread without external
// key material.
const defaultPassword = "default"

// Save serializes the keypair and writes it through a password-seeded
// stream cipher built from s. If password is empty, the keystream is
// seeded with the fixed password "default" instead, so a file can always
// be written and re-read without external key material.
func (k *Keypair) Save(w io.Writer, s suite.Suite, password []byte) error {
	plain, err := k.marshal()
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
		return fmt.Errorf("rsakeypair: build stream cipher: %w", err)
	}
	cipherText := make([]byte, len(plain))
	stream.XORKeyStream(cipherText, plain)

	_, err = w.Write(cipherText)
	return err
}

// Load reads a file written by Save, using the same suite and password.
func Load(r io.Reader, s suite.Suite, password []byte, logger *slog.Logger) (*Keypair, error) {
	cipherText, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rsakeypair: read file: %w", err)
	}

	seedPassword := password
	if len(seedPassword) == 0 {
		seedPassword = []byte(defaultPassword)
	}
	seed := s.Hash(seedPassword)

	stream, err := s.BuildStream(seed)
	if err != nil {
		return nil, fmt.Errorf("rsakeypair: build stream cipher: %w", err)
	}
	plain := make([]byte, len(cipherText))
	stream.XORKeyStream(plain, cipherText)

	return unmarshal(plain, logger)
}

// marshal writes the on-disk layout:
//
//	2B word-length | 2B algo id | 8B creation ts | N_cur | D_cur |
//	2B history len | history_len * (8B ts | N_old | D_old)
func (k *Keypair) marshal() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var buf bytes.Buffer
	header := make([]byte, 12)
	binary.LittleEndian.PutUint16(header[0:2], uint16(k.wordLen))
	binary.LittleEndian.PutUint16(header[2:4], k.algoID)
	binary.LittleEndian.PutUint64(header[4:12], uint64(k.cur.Timestamp.Unix()))
	buf.Write(header)
	buf.Write(k.cur.N.Bytes())
	buf.Write(k.cur.D.Bytes())

	histLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(histLen, uint16(len(k.history)))
	buf.Write(histLen)

	for _, e := range k.history {
		ts := make([]byte, 8)
		binary.LittleEndian.PutUint64(ts, uint64(e.Timestamp.Unix()))
		buf.Write(ts)
		buf.Write(e.N.Bytes())
		buf.Write(e.D.Bytes())
	}

	return buf.Bytes(), nil
}

// SavePublic writes the keypair under the PUBLIC_UNLOCK lock-type: the
// file is sealed to recipientPublicKey rather than derived from a shared
// password, so only the holder of the matching private key can read it
// back with LoadPublic.
func (k *Keypair) SavePublic(w io.Writer, recipientPublicKey [envelope.KeySize]byte) error {
	plain, err := k.marshal()
	if err != nil {
		return err
	}
	sealed, err := envelope.NewBox(recipientPublicKey).Seal(plain)
	if err != nil {
		return fmt.Errorf("rsakeypair: seal public envelope: %w", err)
	}
	_, err = w.Write(sealed)
	return err
}

// LoadPublic reads a file written by SavePublic, opening it with the
// recipient's private key.
func LoadPublic(r io.Reader, publicKey, privateKey [envelope.KeySize]byte, logger *slog.Logger) (*Keypair, error) {
	sealed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rsakeypair: read file: %w", err)
	}
	plain, err := envelope.NewBoxWithPrivate(publicKey, privateKey).Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("rsakeypair: open public envelope: %w", err)
	}
	return unmarshal(plain, logger)
}

func unmarshal(plain []byte, logger *slog.Logger) (*Keypair, error) {
	if len(plain) < 12 {
		return nil, fmt.Errorf("rsakeypair: file too short for header")
	}
	wordLen := int(binary.LittleEndian.Uint16(plain[0:2]))
	algoID := binary.LittleEndian.Uint16(plain[2:4])
	createdUnix := binary.LittleEndian.Uint64(plain[4:12])
	if wordLen <= 0 {
		return nil, fmt.Errorf("rsakeypair: invalid word length %d in file", wordLen)
	}

	offset := 12
	entrySize := wordLen * 4
	if len(plain) < offset+2*entrySize {
		return nil, fmt.Errorf("rsakeypair: file truncated before current keys")
	}

	k := New(wordLen, algoID, MaxHistory, logger)
	k.cur = entry{
		N:         bigint.FromBytes(wordLen, plain[offset:offset+entrySize]),
		D:         bigint.FromBytes(wordLen, plain[offset+entrySize:offset+2*entrySize]),
		Timestamp: time.Unix(int64(createdUnix), 0),
	}
	offset += 2 * entrySize

	if len(plain) < offset+2 {
		return nil, fmt.Errorf("rsakeypair: file truncated before history length")
	}
	histLen := int(binary.LittleEndian.Uint16(plain[offset : offset+2]))
	offset += 2

	for i := 0; i < histLen; i++ {
		if len(plain) < offset+8+2*entrySize {
			return nil, fmt.Errorf("rsakeypair: file truncated in history entry %d", i)
		}
		ts := binary.LittleEndian.Uint64(plain[offset : offset+8])
		offset += 8
		n := bigint.FromBytes(wordLen, plain[offset:offset+entrySize])
		offset += entrySize
		d := bigint.FromBytes(wordLen, plain[offset:offset+entrySize])
		offset += entrySize
		k.history = append(k.history, entry{N: n, D: d, Timestamp: time.Unix(int64(ts), 0)})
	}

	return k, nil
}
