package engine

import (
	"errors"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// Validation failures keep distinct sentinels (and distinct wire codes):
// callers need to tell which check failed. The rent-service and
// system-service identity checks are historically separate from the generic
// identity check and stay that way.
var (
	ErrMissingSignature      = errors.New("missing required signature")
	ErrInvalidOwner          = errors.New("invalid record owner")
	ErrInvalidAccountData    = errors.New("invalid account data")
	ErrInvalidIdentity       = errors.New("identity mismatch")
	ErrInvalidRentIdentity   = errors.New("rent service identity mismatch")
	ErrInvalidSystemIdentity = errors.New("system service identity mismatch")
	ErrInvalidInstruction    = errors.New("invalid instruction")
)

// ErrInvalidDerivedKey re-exports the derivation failure so callers can match
// it without importing derive.
var ErrInvalidDerivedKey = derive.ErrInvalidDerivedKey

// Wire error codes. 0 is success; 1 is the catch-all for domain failures
// reported as free-text reasons ("sale not open", "claimed", ...).
const (
	CodeOK uint32 = iota
	CodeDomain
	CodeMissingSignature
	CodeInvalidOwner
	CodeInvalidDerivedKey
	CodeInvalidAccountData
	CodeInvalidRentIdentity
	CodeInvalidSystemIdentity
	CodeInvalidIdentity
	CodeInvalidInstruction
)

// CodeOf maps an execution error to its wire code.
func CodeOf(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrMissingSignature):
		return CodeMissingSignature
	case errors.Is(err, ErrInvalidOwner):
		return CodeInvalidOwner
	case errors.Is(err, derive.ErrInvalidDerivedKey):
		return CodeInvalidDerivedKey
	case errors.Is(err, ErrInvalidAccountData), errors.Is(err, record.ErrInvalidSize), errors.Is(err, record.ErrCorrupt):
		return CodeInvalidAccountData
	case errors.Is(err, ErrInvalidRentIdentity):
		return CodeInvalidRentIdentity
	case errors.Is(err, ErrInvalidSystemIdentity):
		return CodeInvalidSystemIdentity
	case errors.Is(err, ErrInvalidIdentity):
		return CodeInvalidIdentity
	case errors.Is(err, ErrInvalidInstruction):
		return CodeInvalidInstruction
	default:
		return CodeDomain
	}
}
