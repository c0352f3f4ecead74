package engine

import (
	"fmt"
	"strconv"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// processClose is the round pivot: it freezes the current round's allocation
// and, in the same request, opens round+1 with a freshly derived target. The
// round counter increments exactly once because a closed round cannot be
// closed again.
//
// Accounts: signer, config, counter, next config, rent service, system
// service.
func processClose(env Env, req Request) error {
	if len(req.Accounts) != closeAccountLen {
		return fmt.Errorf("close: want %d account references, got %d", closeAccountLen, len(req.Accounts))
	}
	signer := req.Accounts[0]
	configSlot := req.Accounts[1]
	counterSlot := req.Accounts[2]
	nextConfigSlot := req.Accounts[3]

	if err := requireSigner(req, signer); err != nil {
		return err
	}
	if err := requireRentService(req.Accounts[4]); err != nil {
		return err
	}
	if err := requireSystemService(req.Accounts[5]); err != nil {
		return err
	}
	if err := requireOwnedBy(env.Storage, configSlot, derive.Program); err != nil {
		return err
	}

	cfg, err := loadRoundConfig(env.Storage, configSlot)
	if err != nil {
		return err
	}
	if cfg.Authority != signer {
		return fmt.Errorf("invalid authority")
	}
	if cfg.Closed {
		return fmt.Errorf("sale closed")
	}

	if _, err := requireDerivation(counterSlot, derive.CounterPath()...); err != nil {
		return err
	}
	counter, err := loadRoundCounter(env.Storage, counterSlot)
	if err != nil {
		return err
	}

	var allocated uint64
	for t := 0; t < 6; t++ {
		if cfg.Match[t] == 0 {
			continue
		}
		cut, err := mulU64Checked(cfg.TotalReward, tierPct[t], "tier allocation")
		if err != nil {
			return err
		}
		if allocated, err = addU64Checked(allocated, cut/100, "total allocation"); err != nil {
			return err
		}
	}

	nextRound, err := addU64Checked(cfg.Round, 1, "round number")
	if err != nil {
		return err
	}
	nextRoundText := strconv.FormatUint(nextRound, 10)
	if _, err := requireDerivation(nextConfigSlot, derive.ConfigPath(nextRoundText)...); err != nil {
		return err
	}
	nextEmpty, err := slotEmpty(env.Storage, nextConfigSlot)
	if err != nil {
		return err
	}
	if nextEmpty {
		if err := env.Storage.Allocate(nextConfigSlot, record.RoundConfigSize, derive.Program); err != nil {
			return err
		}
	}

	cfg.Closed = true
	cfg.Allocated = allocated

	next := &record.RoundConfig{
		Authority:   cfg.Authority,
		ChargeDest:  cfg.ChargeDest,
		RewardAsset: cfg.RewardAsset,
		Round:       nextRound,
		TotalReward: cfg.TotalReward,
		Target:      deriveNumber(env.Now, derive.Program),
		StartTime:   env.Now,
	}

	if err := env.Storage.Write(configSlot, cfg.Encode()); err != nil {
		return err
	}
	if err := env.Storage.Write(nextConfigSlot, next.Encode()); err != nil {
		return err
	}
	counter.Round++
	return env.Storage.Write(counterSlot, counter.Encode())
}
