package engine

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/daniel-kung/token-factory/internal/derive"
)

// The engine sees its host runtime only through these contracts. It performs
// no I/O of its own, never retries, and never suspends: a request runs to
// completion against the supplied services and either fully applies or
// reports exactly one error. Atomicity of the whole instruction is the
// runtime's responsibility.

// Storage is durable keyed storage. Slots have a declared owner and a size
// fixed at allocation.
type Storage interface {
	// Read returns the slot contents, or exists=false for a slot that was
	// never allocated.
	Read(slot derive.Identity) (data []byte, exists bool, err error)
	// Write replaces the slot contents. The byte length must equal the
	// allocated size.
	Write(slot derive.Identity, data []byte) error
	// Allocate creates a zero-filled slot of the given size owned by owner.
	Allocate(slot derive.Identity, size int, owner derive.Identity) error
	// Owner reports the declared owner of an allocated slot.
	Owner(slot derive.Identity) (derive.Identity, bool)
}

// Payments moves the native settlement currency between identities.
type Payments interface {
	Transfer(from, to derive.Identity, amount uint64) error
}

// TokenCustody manages asset custody accounts and authority-gated transfers.
type TokenCustody interface {
	// CreateAccount opens a custody account for asset controlled by authority.
	CreateAccount(account, asset, authority derive.Identity) error
	// Transfer moves amount between custody accounts of the same asset,
	// authorized by the source account's controlling authority.
	Transfer(source, destination, authority derive.Identity, amount uint64) error
}

// Env is everything a single request execution may touch. Now is the
// runtime's deterministic clock in unix seconds (block time, never wall
// clock).
type Env struct {
	Storage Storage
	Pay     Payments
	Tokens  TokenCustody
	Now     uint64
}

// Request is one inbound instruction: an ordered, opcode-specific list of
// account references, the set of identities that co-signed, and the binary
// opcode+payload.
type Request struct {
	Accounts []derive.Identity
	Signers  map[derive.Identity]bool
	Data     []byte
}

// deriveNumber reduces a hash of (now, salt) modulo 1,000,000. Used for both
// the round target and buyer shot generation. Deterministic and replayable by
// construction; it is NOT unpredictable to anyone who can predict the
// timestamp, and that is a documented property, not a defect.
func deriveNumber(now uint64, salt derive.Identity) uint64 {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], now)
	h := sha256.New()
	h.Write(ts[:])
	h.Write(salt[:])
	sum := h.Sum(nil)
	// The first 16 bytes as a big-endian u128, reduced mod 1e6 bytewise.
	var acc uint64
	for _, b := range sum[:16] {
		acc = (acc*256 + uint64(b)) % 1000000
	}
	return acc
}
