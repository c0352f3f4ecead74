package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// State is the chain-side world the lotto engine runs against: native
// balances (the payment primitive), token custody accounts, and the keyed
// slot store holding the engine's fixed-layout records.
type State struct {
	Height int64 `json:"height"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection

	Slots  map[string]*Slot         `json:"slots"`
	Tokens map[string]*TokenAccount `json:"tokens"`
}

// Slot is one keyed durable storage slot: a declared owner and fixed-size
// contents. Size is fixed at allocation; writes must match it.
type Slot struct {
	Owner string `json:"owner"`
	Data  []byte `json:"data"` // base64 in JSON
}

// TokenAccount is a custody account for one asset, controlled by Authority.
type TokenAccount struct {
	Asset     string `json:"asset"`
	Authority string `json:"authority"`
	Balance   uint64 `json:"balance"`
}

func NewState() *State {
	return &State{
		Height:      0,
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Slots:       map[string]*Slot{},
		Tokens:      map[string]*TokenAccount{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Slots == nil {
		s.Slots = map[string]*Slot{}
	}
	if s.Tokens == nil {
		s.Tokens = map[string]*TokenAccount{}
	}
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// AppHash hashes a normalized view of state. encoding/json does NOT guarantee
// map key order, so maps are flattened into sorted slices first; every
// validating node must produce the same digest for the same state.
func (s *State) AppHash() []byte {
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type slotKV struct {
		Addr string `json:"addr"`
		Slot *Slot  `json:"slot"`
	}
	type tokenKV struct {
		Addr    string        `json:"addr"`
		Account *TokenAccount `json:"account"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	slots := make([]slotKV, 0, len(s.Slots))
	for k, v := range s.Slots {
		slots = append(slots, slotKV{Addr: k, Slot: v})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Addr < slots[j].Addr })

	tokens := make([]tokenKV, 0, len(s.Tokens))
	for k, v := range s.Tokens {
		tokens = append(tokens, tokenKV{Addr: k, Account: v})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Addr < tokens[j].Addr })

	normalized := struct {
		Height      int64          `json:"height"`
		Accounts    []accountKV    `json:"accounts"`
		AccountKeys []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax    []nonceKV      `json:"nonceMax,omitempty"`
		Slots       []slotKV       `json:"slots"`
		Tokens      []tokenKV      `json:"tokens"`
	}{
		Height:      s.Height,
		Accounts:    accounts,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
		Slots:       slots,
		Tokens:      tokens,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Token custody ----

func (s *State) OpenTokenAccount(addr, asset, authority string) error {
	if _, ok := s.Tokens[addr]; ok {
		return fmt.Errorf("token account exists: %s", addr)
	}
	s.Tokens[addr] = &TokenAccount{Asset: asset, Authority: authority}
	return nil
}

func (s *State) CreditToken(addr string, amount uint64) error {
	ta, ok := s.Tokens[addr]
	if !ok {
		return fmt.Errorf("token account not found: %s", addr)
	}
	if ta.Balance > ^uint64(0)-amount {
		return fmt.Errorf("token balance overflow: have=%d add=%d", ta.Balance, amount)
	}
	ta.Balance += amount
	return nil
}

// TransferToken moves amount between custody accounts of the same asset,
// authorized by the source account's controlling authority.
func (s *State) TransferToken(source, destination, authority string, amount uint64) error {
	src, ok := s.Tokens[source]
	if !ok {
		return fmt.Errorf("token account not found: %s", source)
	}
	dst, ok := s.Tokens[destination]
	if !ok {
		return fmt.Errorf("token account not found: %s", destination)
	}
	if src.Authority != authority {
		return fmt.Errorf("token authority mismatch")
	}
	if src.Asset != dst.Asset {
		return fmt.Errorf("token asset mismatch")
	}
	if src.Balance < amount {
		return fmt.Errorf("insufficient token funds: have=%d need=%d", src.Balance, amount)
	}
	if dst.Balance > ^uint64(0)-amount {
		return fmt.Errorf("token balance overflow: have=%d add=%d", dst.Balance, amount)
	}
	src.Balance -= amount
	dst.Balance += amount
	return nil
}

// ---- Keyed slot store ----

func (s *State) ReadSlot(addr string) ([]byte, bool) {
	slot, ok := s.Slots[addr]
	if !ok {
		return nil, false
	}
	return slot.Data, true
}

func (s *State) AllocateSlot(addr string, size int, owner string) error {
	if _, ok := s.Slots[addr]; ok {
		return fmt.Errorf("slot already allocated: %s", addr)
	}
	s.Slots[addr] = &Slot{Owner: owner, Data: make([]byte, size)}
	return nil
}

func (s *State) WriteSlot(addr string, data []byte) error {
	slot, ok := s.Slots[addr]
	if !ok {
		return fmt.Errorf("slot not allocated: %s", addr)
	}
	if len(data) != len(slot.Data) {
		return fmt.Errorf("slot write size mismatch: got %d want %d", len(data), len(slot.Data))
	}
	slot.Data = append([]byte(nil), data...)
	return nil
}

func (s *State) SlotOwner(addr string) (string, bool) {
	slot, ok := s.Slots[addr]
	if !ok {
		return "", false
	}
	return slot.Owner, true
}
