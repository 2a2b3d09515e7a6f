// Package gateway implements the gateway state machine: the handshake that
// carries two peers through settings exchange, symmetric key transport,
// mutual signature, and the secured stream that follows, plus the typed
// Message packets that ride on the wire underneath it.
package gateway

import (
	"errors"
	"fmt"

	"github.com/skyformat99/cryptogateway/internal/suite"
)

// Type is the one-byte message type tag at offset 0 of every Message.
type Type uint8

// Message type constants. The byte values are wire format and must not
// change.
const (
	TypeBlocked             Type = 0
	TypePing                Type = 1
	TypeForward             Type = 2
	TypeStreamKey           Type = 3
	TypeSigningMessage      Type = 4
	TypeSecureDataExchange  Type = 5
	TypeConfirmError        Type = 252
	TypeBasicError          Type = 253
	TypeTimeoutError        Type = 254
	TypePermanentError      Type = 255
)

func (t Type) String() string {
	switch t {
	case TypeBlocked:
		return "BLOCKED"
	case TypePing:
		return "PING"
	case TypeForward:
		return "FORWARD"
	case TypeStreamKey:
		return "STREAM_KEY"
	case TypeSigningMessage:
		return "SIGNING_MESSAGE"
	case TypeSecureDataExchange:
		return "SECURE_DATA_EXCHANGE"
	case TypeConfirmError:
		return "CONFIRM_ERROR"
	case TypeBasicError:
		return "BASIC_ERROR"
	case TypeTimeoutError:
		return "TIMEOUT_ERROR"
	case TypePermanentError:
		return "PERMANENT_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// MaxPushSize is the hard upper bound on a message's payload size once any
// string has been pushed onto it.
const MaxPushSize = 500

// MaxPushStringLen is the largest string push_string will accept.
const MaxPushStringLen = 255

var (
	// ErrStringTooLarge is returned when PushString's argument exceeds
	// MaxPushStringLen.
	ErrStringTooLarge = errors.New("gateway: string exceeds 255 bytes")
	// ErrBufferTooLarge is returned when a push would exceed MaxPushSize.
	ErrBufferTooLarge = errors.New("gateway: message would exceed the 500-byte push bound")
	// ErrEncryptedMessage is returned when push/pop is attempted on a
	// message whose encryption depth is nonzero.
	ErrEncryptedMessage = errors.New("gateway: push/pop not allowed on an encrypted message")
	// ErrBufferTooSmall is returned when PopString finds nothing to pop.
	ErrBufferTooSmall = errors.New("gateway: nothing to pop")
	// ErrMalformedMessage is returned when a message's internal framing is
	// inconsistent (a truncated push record, a short sync tag, and so on).
	ErrMalformedMessage = errors.New("gateway: malformed message")
	// ErrNotEncrypted is returned when Decrypt is called on a message whose
	// encryption depth is already zero.
	ErrNotEncrypted = errors.New("gateway: message is not encrypted")
	// ErrBadSyncTag is returned when decryption's synchronization tag does
	// not match, indicating the stream ciphers have fallen out of step.
	ErrBadSyncTag = errors.New("gateway: stream synchronization tag mismatch")
)

// syncTag is the 2-byte plaintext marker prepended (under encryption) by
// Encrypt and checked by Decrypt.
var syncTag = [2]byte{0xC5, 0x3A}

// Message is a variable-length byte buffer with a type tag, an
// encryption-depth counter, and a payload region.
type Message struct {
	typ     Type
	depth   uint8
	payload []byte
}

// NewMessage returns an empty message of the given type.
func NewMessage(t Type) *Message {
	return &Message{typ: t}
}

// NewWithPayload returns a message of the given type carrying payload.
func NewWithPayload(t Type, payload []byte) *Message {
	return &Message{typ: t, payload: append([]byte(nil), payload...)}
}

// Type returns the message's type tag.
func (m *Message) Type() Type { return m.typ }

// Depth returns the current encryption depth (0 == plaintext).
func (m *Message) Depth() uint8 { return m.depth }

// Payload returns the message's current payload bytes.
func (m *Message) Payload() []byte { return m.payload }

// SetPayload replaces the message's payload wholesale.
func (m *Message) SetPayload(p []byte) { m.payload = p }

// PushString appends s with a 1-byte length suffix. Fails if the message is
// encrypted, s is too long, or the push would exceed MaxPushSize.
func (m *Message) PushString(s string) error {
	if m.depth != 0 {
		return ErrEncryptedMessage
	}
	if len(s) > MaxPushStringLen {
		return ErrStringTooLarge
	}
	if len(m.payload)+len(s)+1 > MaxPushSize {
		return ErrBufferTooLarge
	}
	m.payload = append(m.payload, []byte(s)...)
	m.payload = append(m.payload, byte(len(s)))
	return nil
}

// PopString removes and returns the last string pushed onto the message.
func (m *Message) PopString() (string, error) {
	if m.depth != 0 {
		return "", ErrEncryptedMessage
	}
	if len(m.payload) == 0 {
		return "", ErrBufferTooSmall
	}
	n := int(m.payload[len(m.payload)-1])
	if len(m.payload) < 1+n {
		return "", ErrMalformedMessage
	}
	s := string(m.payload[len(m.payload)-1-n : len(m.payload)-1])
	m.payload = m.payload[:len(m.payload)-1-n]
	return s, nil
}

// Encrypt wraps the payload with stream, bumping the encryption depth and
// prepending a 2-byte synchronization tag.
func (m *Message) Encrypt(stream suite.StreamCipher) error {
	cipherTag := make([]byte, 2)
	stream.XORKeyStream(cipherTag, syncTag[:])

	cipherPayload := make([]byte, len(m.payload))
	stream.XORKeyStream(cipherPayload, m.payload)

	out := make([]byte, 0, len(cipherTag)+len(cipherPayload))
	out = append(out, cipherTag...)
	out = append(out, cipherPayload...)
	m.payload = out
	m.depth++
	return nil
}

// Decrypt unwraps one layer of encryption, consuming and verifying the
// synchronization tag. Returns ErrBadSyncTag if the streams are out of
// step and ErrNotEncrypted if depth is already zero.
func (m *Message) Decrypt(stream suite.StreamCipher) error {
	if m.depth == 0 {
		return ErrNotEncrypted
	}
	if len(m.payload) < 2 {
		return ErrMalformedMessage
	}
	tag := make([]byte, 2)
	stream.XORKeyStream(tag, m.payload[:2])
	if tag[0] != syncTag[0] || tag[1] != syncTag[1] {
		return ErrBadSyncTag
	}
	plain := make([]byte, len(m.payload)-2)
	stream.XORKeyStream(plain, m.payload[2:])
	m.payload = plain
	m.depth--
	return nil
}

// Encode serializes the message to its wire form: [type][depth][payload].
func (m *Message) Encode() []byte {
	out := make([]byte, 2+len(m.payload))
	out[0] = byte(m.typ)
	out[1] = m.depth
	copy(out[2:], m.payload)
	return out
}

// Decode parses a message from its wire form.
func Decode(b []byte) (*Message, error) {
	if len(b) < 2 {
		return nil, ErrMalformedMessage
	}
	return &Message{
		typ:     Type(b[0]),
		depth:   b[1],
		payload: append([]byte(nil), b[2:]...),
	}, nil
}
