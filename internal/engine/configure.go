package engine

import (
	"fmt"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// processConfigure creates (or re-parameterizes) a round: the RoundConfig
// slot, the singleton RoundCounter, and on first configure the reward vault
// custody account controlled by the derived transfer authority.
//
// Accounts: signer, config, counter, reward asset, vault, transfer authority,
// token service, rent service, system service.
func processConfigure(env Env, req Request, args *ConfigureArgs) error {
	if len(req.Accounts) != configureAccountLen {
		return fmt.Errorf("configure: want %d account references, got %d", configureAccountLen, len(req.Accounts))
	}
	signer := req.Accounts[0]
	configSlot := req.Accounts[1]
	counterSlot := req.Accounts[2]
	asset := req.Accounts[3]
	vault := req.Accounts[4]
	transferAuth := req.Accounts[5]

	if err := requireIdentity(req.Accounts[6], TokenService); err != nil {
		return err
	}
	if err := requireRentService(req.Accounts[7]); err != nil {
		return err
	}
	if err := requireSystemService(req.Accounts[8]); err != nil {
		return err
	}
	if err := requireSigner(req, signer); err != nil {
		return err
	}

	round, err := parseRound(args.Round)
	if err != nil {
		return err
	}
	if _, err := requireDerivation(configSlot, derive.ConfigPath(args.Round)...); err != nil {
		return err
	}
	if _, err := requireDerivation(counterSlot, derive.CounterPath()...); err != nil {
		return err
	}
	if _, err := requireDerivation(vault, derive.VaultPath(asset)...); err != nil {
		return err
	}
	if _, err := requireDerivation(transferAuth, derive.TransferAuthorityPath(asset)...); err != nil {
		return err
	}

	empty, err := slotEmpty(env.Storage, configSlot)
	if err != nil {
		return err
	}

	cfg := &record.RoundConfig{}
	if empty {
		if err := env.Storage.Allocate(configSlot, record.RoundConfigSize, derive.Program); err != nil {
			return err
		}
		if err := env.Tokens.CreateAccount(vault, asset, transferAuth); err != nil {
			return err
		}
	} else {
		cfg, err = loadRoundConfig(env.Storage, configSlot)
		if err != nil {
			return err
		}
		if cfg.Authority != signer {
			return fmt.Errorf("invalid authority")
		}
		if err := requireOwnedBy(env.Storage, configSlot, derive.Program); err != nil {
			return err
		}
		if cfg.Closed {
			return fmt.Errorf("sale closed")
		}
	}

	counterEmpty, err := slotEmpty(env.Storage, counterSlot)
	if err != nil {
		return err
	}
	if counterEmpty {
		if err := env.Storage.Allocate(counterSlot, record.RoundCounterSize, derive.Program); err != nil {
			return err
		}
	}

	cfg.Target = deriveNumber(env.Now, derive.Program)
	cfg.Authority = args.Authority
	cfg.ChargeDest = args.ChargeDest
	cfg.RewardAsset = asset
	cfg.Round = round
	cfg.TotalReward = args.TotalReward
	cfg.StartTime = args.StartTime

	if err := env.Storage.Write(configSlot, cfg.Encode()); err != nil {
		return err
	}
	counter := &record.RoundCounter{Round: round}
	return env.Storage.Write(counterSlot, counter.Encode())
}
