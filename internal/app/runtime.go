package app

import (
	"fmt"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/state"
)

// Adapters exposing chain state to the engine through its runtime contracts.
// The engine never sees *state.State directly.

type slotStore struct {
	st *state.State
}

func (s slotStore) Read(slot derive.Identity) ([]byte, bool, error) {
	data, ok := s.st.ReadSlot(slot.String())
	return data, ok, nil
}

func (s slotStore) Write(slot derive.Identity, data []byte) error {
	return s.st.WriteSlot(slot.String(), data)
}

func (s slotStore) Allocate(slot derive.Identity, size int, owner derive.Identity) error {
	return s.st.AllocateSlot(slot.String(), size, owner.String())
}

func (s slotStore) Owner(slot derive.Identity) (derive.Identity, bool) {
	ownerHex, ok := s.st.SlotOwner(slot.String())
	if !ok {
		return derive.Identity{}, false
	}
	owner, err := derive.Parse(ownerHex)
	if err != nil {
		return derive.Identity{}, false
	}
	return owner, true
}

type bankLedger struct {
	st *state.State
}

func (b bankLedger) Transfer(from, to derive.Identity, amount uint64) error {
	if err := b.st.Debit(from.String(), amount); err != nil {
		return err
	}
	if err := b.st.Credit(to.String(), amount); err != nil {
		return fmt.Errorf("credit after debit: %w", err)
	}
	return nil
}

type tokenLedger struct {
	st *state.State
}

func (t tokenLedger) CreateAccount(account, asset, authority derive.Identity) error {
	return t.st.OpenTokenAccount(account.String(), asset.String(), authority.String())
}

func (t tokenLedger) Transfer(source, destination, authority derive.Identity, amount uint64) error {
	return t.st.TransferToken(source.String(), destination.String(), authority.String(), amount)
}
