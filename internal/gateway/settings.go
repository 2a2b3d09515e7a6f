package gateway

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/skyformat99/cryptogateway/internal/bigint"
)

// GroupSize and NameSize bound the fixed-width group-id and node-name fields
// carried in every PING.
const (
	GroupSize = 32
	NameSize  = 32
)

var (
	// ErrGroupIDTooLong is returned when a group id exceeds GroupSize bytes.
	ErrGroupIDTooLong = errors.New("gateway: group id exceeds 32 bytes")
	// ErrNodeNameTooLong is returned when a node name exceeds NameSize bytes.
	ErrNodeNameTooLong = errors.New("gateway: node name exceeds 32 bytes")
	// ErrShortPing is returned when a PING payload is too short to parse.
	ErrShortPing = errors.New("gateway: PING payload too short")
)

// PublicKeyPreference names the public-key algorithm and modulus width (in
// 32-bit words) a peer is advertising or requesting.
type PublicKeyPreference struct {
	AlgoID uint16
	Words  int
}

// HashPreference names the keyed-hash algorithm and digest size (bytes) a
// peer is advertising or requesting.
type HashPreference struct {
	AlgoID uint16
	Bytes  int
}

// Settings is the peer-identity and algorithm-preference record exchanged by
// PING messages: group membership, a node name, the preferred public-key and
// hash algorithms plus sizes, the preferred stream algorithm, and the
// sender's current public-key modulus.
type Settings struct {
	GroupID  string
	NodeName string

	PublicKeyPref PublicKeyPreference
	HashPref      HashPreference
	StreamAlgoID  uint16

	PublicKeyValue *bigint.Int // nil until the sender has a key to advertise
}

// NewSettings validates and returns a Settings value.
func NewSettings(groupID, nodeName string, pk PublicKeyPreference, hash HashPreference, streamAlgoID uint16, publicKeyValue *bigint.Int) (*Settings, error) {
	if len(groupID) > GroupSize {
		return nil, ErrGroupIDTooLong
	}
	if len(nodeName) > NameSize {
		return nil, ErrNodeNameTooLong
	}
	return &Settings{
		GroupID:        groupID,
		NodeName:       nodeName,
		PublicKeyPref:  pk,
		HashPref:       hash,
		StreamAlgoID:   streamAlgoID,
		PublicKeyValue: publicKeyValue,
	}, nil
}

// pingPreambleLen is the fixed-width portion of a PING payload preceding the
// variable-length public-key modulus: 1 byte peer-state hint, GroupSize
// bytes group id, NameSize bytes node name, 5 uint16 fields.
const pingPreambleLen = 1 + GroupSize + NameSize + 2*5

// EncodePing renders s as a PING message payload. peerStateHint carries the
// sender's own current handshake state, letting the receiver drive its own
// transition table off of where the sender stands.
func (s *Settings) EncodePing(peerStateHint State) *Message {
	buf := make([]byte, pingPreambleLen)
	buf[0] = byte(peerStateHint)
	copy(buf[1:1+GroupSize], []byte(s.GroupID))
	copy(buf[1+GroupSize:1+GroupSize+NameSize], []byte(s.NodeName))

	off := 1 + GroupSize + NameSize
	binary.LittleEndian.PutUint16(buf[off:], s.PublicKeyPref.AlgoID)
	binary.LittleEndian.PutUint16(buf[off+2:], uint16(s.PublicKeyPref.Words))
	binary.LittleEndian.PutUint16(buf[off+4:], s.HashPref.AlgoID)
	binary.LittleEndian.PutUint16(buf[off+6:], uint16(s.HashPref.Bytes))
	binary.LittleEndian.PutUint16(buf[off+8:], s.StreamAlgoID)

	if s.PublicKeyValue != nil {
		buf = append(buf, s.PublicKeyValue.Bytes()...)
	}

	return NewWithPayload(TypePing, buf)
}

// DecodePing parses a PING payload into a Settings plus the peer-state hint
// the sender attached.
func DecodePing(payload []byte) (settings *Settings, peerStateHint State, err error) {
	if len(payload) < pingPreambleLen {
		return nil, 0, ErrShortPing
	}
	hint := State(payload[0])
	group := trimZero(payload[1 : 1+GroupSize])
	name := trimZero(payload[1+GroupSize : 1+GroupSize+NameSize])

	off := 1 + GroupSize + NameSize
	pkAlgo := binary.LittleEndian.Uint16(payload[off:])
	pkWords := int(binary.LittleEndian.Uint16(payload[off+2:]))
	hashAlgo := binary.LittleEndian.Uint16(payload[off+4:])
	hashBytes := int(binary.LittleEndian.Uint16(payload[off+6:]))
	streamAlgo := binary.LittleEndian.Uint16(payload[off+8:])

	var pub *bigint.Int
	rest := payload[pingPreambleLen:]
	if len(rest) > 0 {
		if pkWords <= 0 {
			return nil, 0, fmt.Errorf("gateway: PING carries a key but pk_words is %d", pkWords)
		}
		pub = bigint.FromBytes(pkWords, rest)
	}

	s, err := NewSettings(string(group), string(name),
		PublicKeyPreference{AlgoID: pkAlgo, Words: pkWords},
		HashPreference{AlgoID: hashAlgo, Bytes: hashBytes},
		streamAlgo, pub)
	if err != nil {
		return nil, 0, err
	}
	return s, hint, nil
}

func trimZero(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}
