package app

import (
	"bytes"
	"testing"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/engine"
	"github.com/daniel-kung/token-factory/internal/record"
)

// A failed tx must leave zero observable state change, even when the engine
// had already allocated a slot before hitting the failure.
func TestAtomicity_FailedBuyLeavesNoTrace(t *testing.T) {
	a := newTestApp(t)
	admin := testEd25519Signer("admin")
	buyer := testEd25519Signer("buyer")
	setupRound(t, a, admin, buyer, 1_000_000)

	// Drain the buyer so the payment fails after the user slot allocation.
	drain := buyer.signedTx(t, "bank/send", map[string]any{
		"from": buyer.id.String(), "to": admin.id.String(),
		"amount": a.st.Balance(buyer.id.String()),
	})
	mustOk(t, deliverOne(t, a, testStart+1, drain))

	before := stateHash(t, a)
	buyerNonce := buyer.nonce

	configSlot := deriveSlot(t, derive.ConfigPath("1")...)
	userSlot := deriveSlot(t, derive.UserTicketPath(buyer.id, "1")...)
	shot := record.Combination{1, 2, 3, 4, 5, 6}
	res := deliverOne(t, a, testStart+2, lottoTx(t, buyer,
		engine.BuyTicketsAccounts(buyer.id, configSlot, userSlot, admin.id),
		engine.Instruction{Op: engine.OpBuyTickets, Buy: &engine.BuyTicketsArgs{Shot: &shot, Num: 1}}))
	if res.Code == 0 {
		t.Fatalf("expected buy to fail")
	}

	if _, ok := a.st.ReadSlot(userSlot.String()); ok {
		t.Fatalf("failed buy left an allocated user slot")
	}
	if got := a.st.NonceMax[buyer.id.String()]; got != buyerNonce {
		t.Fatalf("failed buy bumped nonce: %d want %d", got, buyerNonce)
	}
	if !bytes.Equal(before, stateHash(t, a)) {
		t.Fatalf("failed buy changed app hash")
	}
}

// A failed claim must not mark the ticket claimed or move vault funds.
func TestAtomicity_FailedClaimLeavesNoTrace(t *testing.T) {
	a := newTestApp(t)
	admin := testEd25519Signer("admin")
	buyer := testEd25519Signer("buyer")
	setupRound(t, a, admin, buyer, 1_000_000)

	asset := testAsset()
	configSlot := deriveSlot(t, derive.ConfigPath("1")...)
	userSlot := deriveSlot(t, derive.UserTicketPath(buyer.id, "1")...)
	vault := deriveSlot(t, derive.VaultPath(asset)...)
	auth := deriveSlot(t, derive.TransferAuthorityPath(asset)...)

	shot := roundTarget(t, a, "1")
	mustOk(t, deliverOne(t, a, testStart+1, lottoTx(t, buyer,
		engine.BuyTicketsAccounts(buyer.id, configSlot, userSlot, admin.id),
		engine.Instruction{Op: engine.OpBuyTickets, Buy: &engine.BuyTicketsArgs{Shot: &shot, Num: 1}})))

	before := stateHash(t, a)

	// Claim before close fails; the ticket must stay unclaimed.
	res := deliverOne(t, a, testStart+2, lottoTx(t, buyer,
		engine.ClaimAccounts(buyer.id, configSlot, asset, userSlot, vault, auth, buyer.id),
		engine.Instruction{Op: engine.OpClaim, Claim: &engine.ClaimArgs{Round: 1}}))
	if res.Code != engine.CodeDomain {
		t.Fatalf("claim code=%d log=%q", res.Code, res.Log)
	}

	data, _ := a.st.ReadSlot(userSlot.String())
	user, err := record.DecodeUserTicket(data)
	if err != nil {
		t.Fatalf("decode user ticket: %v", err)
	}
	if user.Claimed {
		t.Fatalf("failed claim marked ticket claimed")
	}
	if !bytes.Equal(before, stateHash(t, a)) {
		t.Fatalf("failed claim changed app hash")
	}
}
