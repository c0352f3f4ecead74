package engine

import (
	"fmt"
	"strconv"

	"github.com/daniel-kung/token-factory/internal/derive"
)

// processClaim pays out a user's proportional reward for a closed round and
// marks the ticket claimed. Per-tier shares use floor integer division with
// no rounding correction across tiers; truncation is deliberate policy.
//
// Accounts: signer, config, reward asset, user ticket, vault, transfer
// authority, destination token account, token service, rent service, system
// service.
func processClaim(env Env, req Request, args *ClaimArgs) error {
	if len(req.Accounts) != claimAccountLen {
		return fmt.Errorf("claim: want %d account references, got %d", claimAccountLen, len(req.Accounts))
	}
	signer := req.Accounts[0]
	configSlot := req.Accounts[1]
	asset := req.Accounts[2]
	userSlot := req.Accounts[3]
	vault := req.Accounts[4]
	transferAuth := req.Accounts[5]
	destination := req.Accounts[6]

	if err := requireSigner(req, signer); err != nil {
		return err
	}
	if err := requireIdentity(req.Accounts[7], TokenService); err != nil {
		return err
	}
	if err := requireRentService(req.Accounts[8]); err != nil {
		return err
	}
	if err := requireSystemService(req.Accounts[9]); err != nil {
		return err
	}

	roundText := strconv.FormatUint(args.Round, 10)
	if _, err := requireDerivation(userSlot, derive.UserTicketPath(signer, roundText)...); err != nil {
		return err
	}
	if _, err := requireDerivation(configSlot, derive.ConfigPath(roundText)...); err != nil {
		return err
	}
	if _, err := requireDerivation(vault, derive.VaultPath(asset)...); err != nil {
		return err
	}
	if _, err := requireDerivation(transferAuth, derive.TransferAuthorityPath(asset)...); err != nil {
		return err
	}

	cfg, err := loadRoundConfig(env.Storage, configSlot)
	if err != nil {
		return err
	}
	if !cfg.Closed {
		return fmt.Errorf("sale not closed")
	}
	if err := requireIdentity(asset, cfg.RewardAsset); err != nil {
		return err
	}

	user, err := loadUserTicket(env.Storage, userSlot)
	if err != nil {
		return err
	}
	if user.Claimed {
		return fmt.Errorf("claimed")
	}

	var reward uint64
	for t := 0; t < 6; t++ {
		if cfg.Match[t] == 0 {
			continue
		}
		cut, err := mulU64Checked(cfg.TotalReward, tierPct[t], "tier pool")
		if err != nil {
			return err
		}
		share, err := mulU64Checked(cut/100, user.Match[t], "tier share")
		if err != nil {
			return err
		}
		if reward, err = addU64Checked(reward, share/cfg.Match[t], "reward"); err != nil {
			return err
		}
	}

	if err := env.Tokens.Transfer(vault, destination, transferAuth, reward); err != nil {
		return err
	}

	user.Claimed = true
	user.Reward = reward
	encoded, err := user.Encode()
	if err != nil {
		return err
	}
	return env.Storage.Write(userSlot, encoded)
}
