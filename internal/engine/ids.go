package engine

import (
	"crypto/sha256"

	"github.com/daniel-kung/token-factory/internal/derive"
)

// Well-known service identities referenced positionally by every request.
// Fixed digests of their service tags; the validation layer checks each
// against the opcode's expected position.
var (
	RentService   = derive.Identity(sha256.Sum256([]byte("token-factory/sysvar/rent")))
	SystemService = derive.Identity(sha256.Sum256([]byte("token-factory/service/system")))
	TokenService  = derive.Identity(sha256.Sum256([]byte("token-factory/service/token")))
)

// TicketPrice is the fixed native-currency price per ticket.
const TicketPrice uint64 = 50_000_000

// tierPct is the reward pool split for match tiers 1..6, in percent.
var tierPct = [6]uint64{2, 3, 5, 20, 30, 40}
