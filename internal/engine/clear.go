package engine

import (
	"fmt"

	"github.com/daniel-kung/token-factory/internal/derive"
)

// processClear is the admin sweep: moves an admin-chosen amount out of the
// reward vault. An operational escape hatch, not part of the reward
// distribution; no record is mutated.
//
// Accounts: signer, config, reward asset, vault, transfer authority,
// destination token account, token service, rent service, system service.
func processClear(env Env, req Request, args *ClearArgs) error {
	if len(req.Accounts) != clearAccountLen {
		return fmt.Errorf("clear: want %d account references, got %d", clearAccountLen, len(req.Accounts))
	}
	signer := req.Accounts[0]
	configSlot := req.Accounts[1]
	asset := req.Accounts[2]
	vault := req.Accounts[3]
	transferAuth := req.Accounts[4]
	destination := req.Accounts[5]

	if err := requireSigner(req, signer); err != nil {
		return err
	}
	if err := requireIdentity(req.Accounts[6], TokenService); err != nil {
		return err
	}
	if err := requireRentService(req.Accounts[7]); err != nil {
		return err
	}
	if err := requireSystemService(req.Accounts[8]); err != nil {
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
	if err := requireIdentity(asset, cfg.RewardAsset); err != nil {
		return err
	}
	if _, err := requireDerivation(vault, derive.VaultPath(asset)...); err != nil {
		return err
	}
	if _, err := requireDerivation(transferAuth, derive.TransferAuthorityPath(asset)...); err != nil {
		return err
	}

	return env.Tokens.Transfer(vault, destination, transferAuth, args.Amount)
}
