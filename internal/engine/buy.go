package engine

import (
	"fmt"
	"strconv"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// processBuy records a ticket purchase: moves the payment to the round's
// charge destination, resolves the shot combination (buyer-chosen or
// derived), and accrues the shot into the user ticket and round totals,
// including the per-tier match counts against the round target.
//
// Accounts: signer, config, user ticket, charge destination, rent service,
// system service.
func processBuy(env Env, req Request, args *BuyTicketsArgs) error {
	if len(req.Accounts) != buyAccountLen {
		return fmt.Errorf("buy: want %d account references, got %d", buyAccountLen, len(req.Accounts))
	}
	signer := req.Accounts[0]
	configSlot := req.Accounts[1]
	userSlot := req.Accounts[2]
	chargeDest := req.Accounts[3]

	if err := requireSigner(req, signer); err != nil {
		return err
	}
	if err := requireRentService(req.Accounts[4]); err != nil {
		return err
	}
	if err := requireSystemService(req.Accounts[5]); err != nil {
		return err
	}
	if args.Num == 0 {
		return fmt.Errorf("invalid ticket count")
	}

	if err := requireOwnedBy(env.Storage, configSlot, derive.Program); err != nil {
		return err
	}
	cfg, err := loadRoundConfig(env.Storage, configSlot)
	if err != nil {
		return err
	}
	if cfg.StartTime > env.Now || cfg.Closed {
		return fmt.Errorf("sale not open")
	}
	if err := requireIdentity(chargeDest, cfg.ChargeDest); err != nil {
		return err
	}

	roundText := strconv.FormatUint(cfg.Round, 10)
	if _, err := requireDerivation(userSlot, derive.UserTicketPath(signer, roundText)...); err != nil {
		return err
	}

	empty, err := slotEmpty(env.Storage, userSlot)
	if err != nil {
		return err
	}
	user := record.NewUserTicket()
	if empty {
		if err := env.Storage.Allocate(userSlot, record.UserTicketSize, derive.Program); err != nil {
			return err
		}
	} else {
		user, err = loadUserTicket(env.Storage, userSlot)
		if err != nil {
			return err
		}
	}

	price, err := mulU64Checked(TicketPrice, args.Num, "ticket payment")
	if err != nil {
		return err
	}
	if err := env.Pay.Transfer(signer, chargeDest, price); err != nil {
		return err
	}

	var shot record.Combination
	if args.Shot != nil {
		if err := args.Shot.Validate(); err != nil {
			return err
		}
		shot = *args.Shot
	} else {
		shot = record.CombinationFromNumber(deriveNumber(env.Now, signer))
	}

	if _, known := user.Shots[shot]; !known && len(user.Shots) >= record.MaxShotEntries {
		return fmt.Errorf("shot table full")
	}
	if user.Shots[shot], err = addU64Checked(user.Shots[shot], args.Num, "shot count"); err != nil {
		return err
	}

	// Tier accrual: count leading digits matching the round target.
	target := record.CombinationFromNumber(cfg.Target)
	if tier := shot.Matches(target); tier > 0 {
		if user.Match[tier-1], err = addU64Checked(user.Match[tier-1], args.Num, "user tier count"); err != nil {
			return err
		}
		if cfg.Match[tier-1], err = addU64Checked(cfg.Match[tier-1], args.Num, "round tier count"); err != nil {
			return err
		}
	}

	user.Round = cfg.Round
	if user.TotalShots, err = addU64Checked(user.TotalShots, args.Num, "user total shots"); err != nil {
		return err
	}
	if cfg.TotalShots, err = addU64Checked(cfg.TotalShots, args.Num, "round total shots"); err != nil {
		return err
	}

	encoded, err := user.Encode()
	if err != nil {
		return err
	}
	if err := env.Storage.Write(userSlot, encoded); err != nil {
		return err
	}
	return env.Storage.Write(configSlot, cfg.Encode())
}
