package app

import (
	"context"
	"encoding/json"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/engine"
	"github.com/daniel-kung/token-factory/internal/record"
)

// Query paths:
// - /program
// - /round
// - /config/<round>
// - /user/<addr>/<round>
// - /account/<addr>
// - /token/<addr>
func (a *LottoApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/program":
		b, _ := json.Marshal(map[string]string{
			"program": derive.Program.String(),
			"rent":    engine.RentService.String(),
			"system":  engine.SystemService.String(),
			"token":   engine.TokenService.String(),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case path == "/round":
		slot, _, err := derive.Derive(derive.CounterPath()...)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		data, ok := a.st.ReadSlot(slot.String())
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "round counter not found", Height: a.st.Height}, nil
		}
		counter, err := record.DecodeRoundCounter(data)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]uint64{"round": counter.Round})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/config/"):
		round := strings.TrimPrefix(path, "/config/")
		slot, _, err := derive.Derive(derive.ConfigPath(round)...)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		data, ok := a.st.ReadSlot(slot.String())
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "config not found", Height: a.st.Height}, nil
		}
		cfg, err := record.DecodeRoundConfig(data)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(configView(cfg))
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/user/"):
		rest := strings.TrimPrefix(path, "/user/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return &abci.QueryResponse{Code: 1, Log: "want /user/<addr>/<round>", Height: a.st.Height}, nil
		}
		user, err := derive.Parse(parts[0])
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		slot, _, err := derive.Derive(derive.UserTicketPath(user, parts[1])...)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		data, ok := a.st.ReadSlot(slot.String())
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "user ticket not found", Height: a.st.Height}, nil
		}
		ticket, err := record.DecodeUserTicket(data)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(userView(ticket))
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/token/"):
		addr := strings.TrimPrefix(path, "/token/")
		ta, ok := a.st.Tokens[addr]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "token account not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(ta)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func configView(cfg *record.RoundConfig) map[string]any {
	return map[string]any{
		"authority":   cfg.Authority.String(),
		"chargeDest":  cfg.ChargeDest.String(),
		"rewardAsset": cfg.RewardAsset.String(),
		"round":       cfg.Round,
		"totalReward": cfg.TotalReward,
		"allocated":   cfg.Allocated,
		"target":      cfg.Target,
		"startTime":   cfg.StartTime,
		"totalShots":  cfg.TotalShots,
		"match":       cfg.Match,
		"closed":      cfg.Closed,
	}
}

func userView(u *record.UserTicket) map[string]any {
	shots := map[string]uint64{}
	for k, v := range u.Shots {
		shots[k.String()] = v
	}
	return map[string]any{
		"shots":      shots,
		"totalShots": u.TotalShots,
		"round":      u.Round,
		"reward":     u.Reward,
		"claimed":    u.Claimed,
		"match":      u.Match,
	}
}
