package app

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/engine"
	"github.com/daniel-kung/token-factory/internal/record"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func newTestApp(t *testing.T) *LottoApp {
	t.Helper()
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

// testSigner is a deterministic ed25519 keypair plus a running tx nonce.
type testSigner struct {
	id    derive.Identity
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	nonce uint64
}

func testEd25519Signer(name string) *testSigner {
	seed := sha256.Sum256([]byte("test-signer/" + name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	id := derive.Identity(sha256.Sum256(pub))
	return &testSigner{id: id, priv: priv, pub: pub}
}

func (k *testSigner) signedTx(t *testing.T, typ string, value any) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	k.nonce++
	nonce := strconv.FormatUint(k.nonce, 10)
	signer := k.id.String()
	sig := ed25519.Sign(k.priv, txAuthSignBytesV0(typ, valueBytes, nonce, signer))
	return mustMarshal(t, map[string]any{
		"type":   typ,
		"value":  json.RawMessage(valueBytes),
		"nonce":  nonce,
		"signer": signer,
		"sig":    sig,
	})
}

func (k *testSigner) registerTx(t *testing.T) []byte {
	t.Helper()
	return k.signedTx(t, "auth/register_account", map[string]any{
		"account": k.id.String(),
		"pubKey":  []byte(k.pub),
	})
}

// finalize runs one block of txs at the given unix time and commits it.
func finalize(t *testing.T, a *LottoApp, now int64, txs ...[]byte) *abci.FinalizeBlockResponse {
	t.Helper()
	a.mu.Lock()
	height := a.st.Height + 1
	a.mu.Unlock()
	res, err := a.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{
		Height: height,
		Time:   time.Unix(now, 0),
		Txs:    txs,
	})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if _, err := a.Commit(context.Background(), &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return res
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("tx failed: code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func deliverOne(t *testing.T, a *LottoApp, now int64, tx []byte) *abci.ExecTxResult {
	t.Helper()
	res := finalize(t, a, now, tx)
	if len(res.TxResults) != 1 {
		t.Fatalf("want 1 tx result, got %d", len(res.TxResults))
	}
	return res.TxResults[0]
}

// stateHash hashes state with the height zeroed, so a block of failed txs
// (which still advances height) compares equal.
func stateHash(t *testing.T, a *LottoApp) []byte {
	t.Helper()
	c, err := a.st.Clone()
	if err != nil {
		t.Fatalf("clone state: %v", err)
	}
	c.Height = 0
	return c.AppHash()
}

func identityStrings(ids []derive.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func lottoTx(t *testing.T, k *testSigner, accounts []derive.Identity, in engine.Instruction) []byte {
	t.Helper()
	data, err := in.Encode()
	if err != nil {
		t.Fatalf("encode instruction: %v", err)
	}
	return k.signedTx(t, "lotto/execute", map[string]any{
		"accounts": identityStrings(accounts),
		"data":     data,
	})
}

func testAsset() derive.Identity {
	return derive.Identity(sha256.Sum256([]byte("test-asset")))
}

func deriveSlot(t *testing.T, path ...[]byte) derive.Identity {
	t.Helper()
	slot, _, err := derive.Derive(path...)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	return slot
}

const testStart = int64(1_700_000_000)

// setupRound registers admin+buyer, funds the buyer, configures round 1 with
// the given reward, and mints the reward pool into the vault.
func setupRound(t *testing.T, a *LottoApp, admin, buyer *testSigner, totalReward uint64) {
	t.Helper()
	asset := testAsset()
	configSlot := deriveSlot(t, derive.ConfigPath("1")...)
	counterSlot := deriveSlot(t, derive.CounterPath()...)
	vault := deriveSlot(t, derive.VaultPath(asset)...)
	auth := deriveSlot(t, derive.TransferAuthorityPath(asset)...)

	res := finalize(t, a, testStart,
		admin.registerTx(t),
		buyer.registerTx(t),
		txBytes(t, "bank/mint", map[string]any{"to": buyer.id.String(), "amount": 100 * engine.TicketPrice}),
		lottoTx(t, admin, engine.ConfigureAccounts(admin.id, configSlot, counterSlot, asset, vault, auth), engine.Instruction{
			Op: engine.OpConfigure,
			Configure: &engine.ConfigureArgs{
				Authority:   admin.id,
				ChargeDest:  admin.id,
				Round:       "1",
				StartTime:   uint64(testStart),
				TotalReward: totalReward,
			},
		}),
		txBytes(t, "token/mint", map[string]any{"to": vault.String(), "amount": totalReward}),
		buyer.signedTx(t, "token/open", map[string]any{"owner": buyer.id.String(), "asset": asset.String()}),
	)
	for i, r := range res.TxResults {
		if r.Code != 0 {
			t.Fatalf("setup tx %d failed: code=%d log=%q", i, r.Code, r.Log)
		}
	}
}

func roundTarget(t *testing.T, a *LottoApp, round string) record.Combination {
	t.Helper()
	slot := deriveSlot(t, derive.ConfigPath(round)...)
	data, ok := a.st.ReadSlot(slot.String())
	if !ok {
		t.Fatalf("round %s config missing", round)
	}
	cfg, err := record.DecodeRoundConfig(data)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return record.CombinationFromNumber(cfg.Target)
}

func TestLifecycle_BuyCloseClaim(t *testing.T) {
	a := newTestApp(t)
	admin := testEd25519Signer("admin")
	buyer := testEd25519Signer("buyer")
	const totalReward = uint64(1_000_000)
	setupRound(t, a, admin, buyer, totalReward)

	asset := testAsset()
	configSlot := deriveSlot(t, derive.ConfigPath("1")...)
	counterSlot := deriveSlot(t, derive.CounterPath()...)
	vault := deriveSlot(t, derive.VaultPath(asset)...)
	auth := deriveSlot(t, derive.TransferAuthorityPath(asset)...)
	userSlot := deriveSlot(t, derive.UserTicketPath(buyer.id, "1")...)

	// Buy one full-match ticket.
	shot := roundTarget(t, a, "1")
	res := deliverOne(t, a, testStart+1, lottoTx(t, buyer,
		engine.BuyTicketsAccounts(buyer.id, configSlot, userSlot, admin.id),
		engine.Instruction{Op: engine.OpBuyTickets, Buy: &engine.BuyTicketsArgs{Shot: &shot, Num: 1}}))
	mustOk(t, res)
	ev := findEvent(res.Events, "LottoExecuted")
	if ev == nil {
		t.Fatalf("missing LottoExecuted event")
	}
	if a.st.Balance(admin.id.String()) != engine.TicketPrice {
		t.Fatalf("charge destination balance %d want %d", a.st.Balance(admin.id.String()), engine.TicketPrice)
	}

	// Close round 1.
	nextConfig := deriveSlot(t, derive.ConfigPath("2")...)
	mustOk(t, deliverOne(t, a, testStart+2, lottoTx(t, admin,
		engine.CloseRoundAccounts(admin.id, configSlot, counterSlot, nextConfig),
		engine.Instruction{Op: engine.OpCloseRound})))

	// Claim: sole full-match holder takes the whole 40% pool.
	mustOk(t, deliverOne(t, a, testStart+3, lottoTx(t, buyer,
		engine.ClaimAccounts(buyer.id, configSlot, asset, userSlot, vault, auth, buyer.id),
		engine.Instruction{Op: engine.OpClaim, Claim: &engine.ClaimArgs{Round: 1}})))

	want := totalReward * 40 / 100
	if got := a.st.Tokens[buyer.id.String()].Balance; got != want {
		t.Fatalf("claimed %d want %d", got, want)
	}
	if got := a.st.Tokens[vault.String()].Balance; got != totalReward-want {
		t.Fatalf("vault %d want %d", got, totalReward-want)
	}

	// Second claim fails with a domain code and moves nothing.
	res = deliverOne(t, a, testStart+4, lottoTx(t, buyer,
		engine.ClaimAccounts(buyer.id, configSlot, asset, userSlot, vault, auth, buyer.id),
		engine.Instruction{Op: engine.OpClaim, Claim: &engine.ClaimArgs{Round: 1}}))
	if res.Code != engine.CodeDomain {
		t.Fatalf("second claim code=%d log=%q", res.Code, res.Log)
	}
	if got := a.st.Tokens[buyer.id.String()].Balance; got != want {
		t.Fatalf("second claim moved funds: %d", got)
	}
}

func TestLotto_RequiresRegisteredSigner(t *testing.T) {
	a := newTestApp(t)
	ghost := testEd25519Signer("ghost")
	asset := testAsset()
	configSlot := deriveSlot(t, derive.ConfigPath("1")...)
	counterSlot := deriveSlot(t, derive.CounterPath()...)
	vault := deriveSlot(t, derive.VaultPath(asset)...)
	auth := deriveSlot(t, derive.TransferAuthorityPath(asset)...)

	res := deliverOne(t, a, testStart, lottoTx(t, ghost,
		engine.ConfigureAccounts(ghost.id, configSlot, counterSlot, asset, vault, auth),
		engine.Instruction{Op: engine.OpConfigure, Configure: &engine.ConfigureArgs{
			Authority: ghost.id, ChargeDest: ghost.id, Round: "1",
			StartTime: uint64(testStart), TotalReward: 1,
		}}))
	if res.Code == 0 {
		t.Fatalf("expected unregistered signer to be rejected")
	}
}

func TestLotto_WrongKeySignatureRejected(t *testing.T) {
	a := newTestApp(t)
	alice := testEd25519Signer("alice")
	mallory := testEd25519Signer("mallory")
	mustOk(t, deliverOne(t, a, testStart, alice.registerTx(t)))

	// Mallory signs with her own key but claims alice's identity.
	forged := *mallory
	forged.id = alice.id
	res := deliverOne(t, a, testStart+1, forged.signedTx(t, "token/open", map[string]any{
		"owner": alice.id.String(), "asset": testAsset().String(),
	}))
	if res.Code == 0 {
		t.Fatalf("expected forged signature to be rejected")
	}
}

func TestRegisterAccount_RejectsBadPubKey(t *testing.T) {
	a := newTestApp(t)
	k := testEd25519Signer("short")
	res := deliverOne(t, a, testStart, k.signedTx(t, "auth/register_account", map[string]any{
		"account": k.id.String(),
		"pubKey":  []byte{1, 2, 3},
	}))
	if res.Code == 0 {
		t.Fatalf("expected short pubKey to be rejected")
	}
}

func TestCheckTx_StructuralValidation(t *testing.T) {
	a := newTestApp(t)

	res, err := a.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: []byte("{not json")})
	if err != nil || res.Code == 0 {
		t.Fatalf("malformed tx: res=%+v err=%v", res, err)
	}

	// lotto/execute payloads are instruction-decoded at CheckTx.
	bad := txBytes(t, "lotto/execute", map[string]any{"accounts": []string{}, "data": []byte{0xee}})
	res, err = a.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: bad})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if res.Code != engine.CodeInvalidInstruction {
		t.Fatalf("code=%d want %d", res.Code, engine.CodeInvalidInstruction)
	}

	ok := txBytes(t, "bank/mint", map[string]any{"to": "alice", "amount": 1})
	res, err = a.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: ok})
	if err != nil || res.Code != 0 {
		t.Fatalf("well-formed tx rejected: res=%+v err=%v", res, err)
	}
}

func TestDeliver_UnknownTypeRejected(t *testing.T) {
	a := newTestApp(t)
	res := deliverOne(t, a, testStart, txBytes(t, "lotto/unknown", map[string]any{}))
	if res.Code == 0 {
		t.Fatalf("expected unknown tx type to be rejected")
	}
}

func TestQuery_RoundAndConfig(t *testing.T) {
	a := newTestApp(t)
	admin := testEd25519Signer("admin")
	buyer := testEd25519Signer("buyer")
	setupRound(t, a, admin, buyer, 1_000_000)

	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: "/round"})
	if err != nil || res.Code != 0 {
		t.Fatalf("/round: res=%+v err=%v", res, err)
	}
	var round map[string]uint64
	if err := json.Unmarshal(res.Value, &round); err != nil {
		t.Fatalf("unmarshal /round: %v", err)
	}
	if round["round"] != 1 {
		t.Fatalf("round %d want 1", round["round"])
	}

	res, err = a.Query(context.Background(), &abci.QueryRequest{Path: "/config/1"})
	if err != nil || res.Code != 0 {
		t.Fatalf("/config/1: res=%+v err=%v", res, err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(res.Value, &cfg); err != nil {
		t.Fatalf("unmarshal /config/1: %v", err)
	}
	if cfg["authority"] != admin.id.String() || cfg["closed"] != false {
		t.Fatalf("config view wrong: %v", cfg)
	}

	res, err = a.Query(context.Background(), &abci.QueryRequest{Path: "/config/99"})
	if err != nil || res.Code == 0 {
		t.Fatalf("missing config should fail: res=%+v err=%v", res, err)
	}
}

func TestState_PersistsAcrossRestart(t *testing.T) {
	home := t.TempDir()
	a, err := New(home)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	admin := testEd25519Signer("admin")
	buyer := testEd25519Signer("buyer")
	setupRound(t, a, admin, buyer, 1_000_000)
	wantHash := a.st.AppHash()

	b, err := New(home)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	if string(b.st.AppHash()) != string(wantHash) {
		t.Fatalf("state hash changed across restart")
	}
	info, err := b.Info(context.Background(), &abci.InfoRequest{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.LastBlockHeight != a.st.Height {
		t.Fatalf("height %d want %d", info.LastBlockHeight, a.st.Height)
	}
}
