package engine

import "github.com/daniel-kung/token-factory/internal/derive"

// Canonical positional account lists per opcode. Clients build requests with
// these; handlers index into Request.Accounts by the same positions.

const (
	configureAccountLen = 9
	buyAccountLen       = 6
	closeAccountLen     = 6
	claimAccountLen     = 10
	clearAccountLen     = 9
)

func ConfigureAccounts(signer, configSlot, counterSlot, asset, vault, transferAuth derive.Identity) []derive.Identity {
	return []derive.Identity{
		signer, configSlot, counterSlot, asset, vault, transferAuth,
		TokenService, RentService, SystemService,
	}
}

func BuyTicketsAccounts(signer, configSlot, userSlot, chargeDest derive.Identity) []derive.Identity {
	return []derive.Identity{
		signer, configSlot, userSlot, chargeDest,
		RentService, SystemService,
	}
}

func CloseRoundAccounts(signer, configSlot, counterSlot, nextConfigSlot derive.Identity) []derive.Identity {
	return []derive.Identity{
		signer, configSlot, counterSlot, nextConfigSlot,
		RentService, SystemService,
	}
}

func ClaimAccounts(signer, configSlot, asset, userSlot, vault, transferAuth, destination derive.Identity) []derive.Identity {
	return []derive.Identity{
		signer, configSlot, asset, userSlot, vault, transferAuth, destination,
		TokenService, RentService, SystemService,
	}
}

func ClearAccounts(signer, configSlot, asset, vault, transferAuth, destination derive.Identity) []derive.Identity {
	return []derive.Identity{
		signer, configSlot, asset, vault, transferAuth, destination,
		TokenService, RentService, SystemService,
	}
}
