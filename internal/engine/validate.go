package engine

import (
	"fmt"
	"strconv"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// Pure checks over supplied inputs. Each failure carries its specific
// sentinel so dispatch can report a distinct code.

func requireSigner(req Request, id derive.Identity) error {
	if !req.Signers[id] {
		return fmt.Errorf("%w: %s", ErrMissingSignature, id)
	}
	return nil
}

func requireIdentity(got, want derive.Identity) error {
	if got != want {
		return fmt.Errorf("%w: got %s want %s", ErrInvalidIdentity, got, want)
	}
	return nil
}

func requireRentService(got derive.Identity) error {
	if got != RentService {
		return fmt.Errorf("%w: got %s", ErrInvalidRentIdentity, got)
	}
	return nil
}

func requireSystemService(got derive.Identity) error {
	if got != SystemService {
		return fmt.Errorf("%w: got %s", ErrInvalidSystemIdentity, got)
	}
	return nil
}

// requireOwnedBy guards against a record slot that belongs to some other
// program being passed where one of ours is expected.
func requireOwnedBy(st Storage, slot, want derive.Identity) error {
	owner, ok := st.Owner(slot)
	if !ok {
		return fmt.Errorf("%w: slot %s not allocated", ErrInvalidOwner, slot)
	}
	if owner != want {
		return fmt.Errorf("%w: slot %s owned by %s", ErrInvalidOwner, slot, owner)
	}
	return nil
}

func requireDerivation(candidate derive.Identity, path ...[]byte) (uint8, error) {
	bump, err := derive.Verify(candidate, path...)
	if err != nil {
		return 0, fmt.Errorf("%w: slot %s", err, candidate)
	}
	return bump, nil
}

// parseRound validates the canonical text form of a round number.
func parseRound(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid round %q", s)
	}
	if s != strconv.FormatUint(n, 10) {
		return 0, fmt.Errorf("non-canonical round %q", s)
	}
	return n, nil
}

// Record loaders. A missing or mis-sized slot reads as InvalidAccountData.

func loadRoundConfig(st Storage, slot derive.Identity) (*record.RoundConfig, error) {
	data, ok, err := st.Read(slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: round config %s missing", ErrInvalidAccountData, slot)
	}
	return record.DecodeRoundConfig(data)
}

func loadRoundCounter(st Storage, slot derive.Identity) (*record.RoundCounter, error) {
	data, ok, err := st.Read(slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: round counter %s missing", ErrInvalidAccountData, slot)
	}
	return record.DecodeRoundCounter(data)
}

func loadUserTicket(st Storage, slot derive.Identity) (*record.UserTicket, error) {
	data, ok, err := st.Read(slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user ticket %s missing", ErrInvalidAccountData, slot)
	}
	return record.DecodeUserTicket(data)
}

func slotEmpty(st Storage, slot derive.Identity) (bool, error) {
	_, ok, err := st.Read(slot)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
