// Package derive computes deterministic storage-slot identifiers.
//
// Every record the lotto program owns lives at an address derived from the
// program identity, a namespace tag, and key material. The derivation walks a
// disambiguation byte ("bump") downward from 255 and accepts the first
// candidate that is not a valid edwards25519 point encoding, so a derived
// address can never collide with a naturally occurring signing key. Identical
// inputs yield an identical (address, bump) pair on every node; that is what
// lets the runtime re-authenticate derived identities without stored key
// material.
package derive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Identity is a 32-byte account/slot identifier. User identities are ed25519
// public keys; derived identities are off-curve digests.
type Identity [32]byte

// Program is the engine's own identity: the declared owner of every record
// slot and the root of all derivation paths.
var Program = Identity(sha256.Sum256([]byte("token-factory/lotto/v1")))

const derivedSlotMarker = "DerivedStorageSlot"

var ErrInvalidDerivedKey = errors.New("invalid derived key")

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, id[:])
	return out
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func Parse(s string) (Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return FromBytes(b)
}

func FromBytes(b []byte) (Identity, error) {
	if len(b) != 32 {
		return Identity{}, fmt.Errorf("invalid identity length: got %d want 32", len(b))
	}
	var id Identity
	copy(id[:], b)
	return id, nil
}

// Derive computes the slot address for a derivation path plus the bump byte
// that pushed it off-curve.
func Derive(path ...[]byte) (Identity, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, part := range path {
			h.Write(part)
		}
		h.Write([]byte{uint8(bump)})
		h.Write([]byte(derivedSlotMarker))
		var cand Identity
		copy(cand[:], h.Sum(nil))
		if offCurve(cand) {
			return cand, uint8(bump), nil
		}
	}
	return Identity{}, 0, fmt.Errorf("no viable bump for derivation path")
}

// Verify checks that candidate is exactly the derivation of path and returns
// the bump, or ErrInvalidDerivedKey.
func Verify(candidate Identity, path ...[]byte) (uint8, error) {
	want, bump, err := Derive(path...)
	if err != nil {
		return 0, err
	}
	if want != candidate {
		return 0, ErrInvalidDerivedKey
	}
	return bump, nil
}

// offCurve reports whether b is NOT a canonical edwards25519 point encoding.
// Derived slots must be unreachable by any real keypair.
func offCurve(id Identity) bool {
	_, err := new(edwards25519.Point).SetBytes(id[:])
	return err != nil
}

// Derivation paths. Orderings are part of the wire contract and must not
// change: config and counter paths tag before key material, asset-scoped
// paths key material before tag.

func ConfigPath(round string) [][]byte {
	return [][]byte{Program[:], []byte("config"), []byte(round)}
}

func CounterPath() [][]byte {
	return [][]byte{Program[:], []byte("round")}
}

func VaultPath(asset Identity) [][]byte {
	return [][]byte{Program[:], asset[:], []byte("mint_vault")}
}

func TransferAuthorityPath(asset Identity) [][]byte {
	return [][]byte{Program[:], asset[:], []byte("transfer_auth")}
}

func UserTicketPath(user Identity, round string) [][]byte {
	return [][]byte{Program[:], user[:], []byte("user_info"), []byte(round)}
}
