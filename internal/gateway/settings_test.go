package gateway

import (
	"strings"
	"testing"

	"github.com/skyformat99/cryptogateway/internal/bigint"
)

func TestSettingsEncodeDecodePingRoundTrip(t *testing.T) {
	pub := bigint.FromUint64(4, 0x1234_5678)
	s, err := NewSettings("mesh-a", "alice", PublicKeyPreference{AlgoID: 1, Words: 4}, HashPreference{AlgoID: 1, Bytes: 32}, 1, pub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := s.EncodePing(StateSettingsExchanged)
	if msg.Type() != TypePing {
		t.Fatalf("EncodePing() type = %v, want PING", msg.Type())
	}

	decoded, hint, err := DecodePing(msg.Payload())
	if err != nil {
		t.Fatalf("DecodePing: %v", err)
	}
	if hint != StateSettingsExchanged {
		t.Errorf("DecodePing() hint = %v, want %v", hint, StateSettingsExchanged)
	}
	if decoded.GroupID != "mesh-a" || decoded.NodeName != "alice" {
		t.Errorf("DecodePing() group/name = %q/%q, want mesh-a/alice", decoded.GroupID, decoded.NodeName)
	}
	if decoded.PublicKeyPref != s.PublicKeyPref {
		t.Errorf("DecodePing() pk pref = %+v, want %+v", decoded.PublicKeyPref, s.PublicKeyPref)
	}
	if decoded.HashPref != s.HashPref {
		t.Errorf("DecodePing() hash pref = %+v, want %+v", decoded.HashPref, s.HashPref)
	}
	if decoded.StreamAlgoID != s.StreamAlgoID {
		t.Errorf("DecodePing() stream algo = %d, want %d", decoded.StreamAlgoID, s.StreamAlgoID)
	}
	if decoded.PublicKeyValue == nil || bigint.Compare(decoded.PublicKeyValue, pub) != 0 {
		t.Errorf("DecodePing() public key = %v, want %v", decoded.PublicKeyValue, pub)
	}
}

func TestSettingsEncodeDecodeWithoutPublicKey(t *testing.T) {
	s, err := NewSettings("g", "n", PublicKeyPreference{}, HashPreference{}, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := s.EncodePing(StateUnknownBrother)
	decoded, _, err := DecodePing(msg.Payload())
	if err != nil {
		t.Fatalf("DecodePing: %v", err)
	}
	if decoded.PublicKeyValue != nil {
		t.Errorf("DecodePing() public key = %v, want nil", decoded.PublicKeyValue)
	}
}

func TestNewRejectsOversizedGroupID(t *testing.T) {
	if _, err := NewSettings(strings.Repeat("g", GroupSize+1), "n", PublicKeyPreference{}, HashPreference{}, 0, nil); err != ErrGroupIDTooLong {
		t.Errorf("NewSettings() with oversized group err = %v, want ErrGroupIDTooLong", err)
	}
}

func TestNewRejectsOversizedNodeName(t *testing.T) {
	if _, err := NewSettings("g", strings.Repeat("n", NameSize+1), PublicKeyPreference{}, HashPreference{}, 0, nil); err != ErrNodeNameTooLong {
		t.Errorf("NewSettings() with oversized name err = %v, want ErrNodeNameTooLong", err)
	}
}

func TestDecodePingTooShortFails(t *testing.T) {
	if _, _, err := DecodePing([]byte{1, 2, 3}); err != ErrShortPing {
		t.Errorf("DecodePing(short) err = %v, want ErrShortPing", err)
	}
}
