package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/daniel-kung/token-factory/internal/codec"
	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/engine"
	"github.com/daniel-kung/token-factory/internal/state"
)

const (
	AppVersion uint64 = 1
)

// LottoApp hosts the lotto engine under CometBFT. The consensus runtime
// supplies ordering, signed requests, and block time; the app supplies the
// engine's storage, payment, and custody services from chain state and
// commits each tx atomically via staged execution.
type LottoApp struct {
	*abci.BaseApplication

	home string

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string) (*LottoApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &LottoApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *LottoApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "lotto (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *LottoApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Structural validation only; auth and state checks run at delivery.
	if env.Type == "lotto/execute" {
		var msg codec.LottoExecuteTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.CheckTxResponse{Code: 1, Log: "bad lotto/execute value"}, nil
		}
		if _, err := engine.DecodeInstruction(msg.Data); err != nil {
			return &abci.CheckTxResponse{Code: engine.CodeOf(err), Log: err.Error()}, nil
		}
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *LottoApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *LottoApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		// Each tx runs against a staged copy; a failed tx leaves zero
		// observable state change.
		staged, err := a.st.Clone()
		if err != nil {
			return nil, fmt.Errorf("stage state: %w", err)
		}
		res := a.deliverTx(staged, txBytes, nowUnix)
		if res.Code == 0 {
			a.st = staged
		}
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *LottoApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *LottoApp) deliverTx(st *state.State, txBytes []byte, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/mint value"}
		}
		if msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing to/amount"}
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/send value"}
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing from/to/amount"}
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := checkAndBumpNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad auth/register_account value"}
		}
		// Lotto signers are 32-byte identities; reject anything else up front.
		if _, err := derive.Parse(msg.Account); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := checkAndBumpNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
		return okEvent("AccountRegistered", map[string]string{
			"account": msg.Account,
		})

	case "token/open":
		var msg codec.TokenOpenTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad token/open value"}
		}
		if _, err := derive.Parse(msg.Owner); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if _, err := derive.Parse(msg.Asset); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := requireAccountAuth(st, env, msg.Owner); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := checkAndBumpNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := st.OpenTokenAccount(msg.Owner, msg.Asset, msg.Owner); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("TokenOpened", map[string]string{
			"owner": msg.Owner,
			"asset": msg.Asset,
		})

	case "token/mint":
		var msg codec.TokenMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad token/mint value"}
		}
		if msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing to/amount"}
		}
		if err := st.CreditToken(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("TokenMinted", map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "lotto/execute":
		var msg codec.LottoExecuteTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad lotto/execute value"}
		}
		signer, err := derive.Parse(env.Signer)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := requireAccountAuth(st, env, env.Signer); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := checkAndBumpNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}

		accounts := make([]derive.Identity, 0, len(msg.Accounts))
		for _, s := range msg.Accounts {
			id, err := derive.Parse(s)
			if err != nil {
				return &abci.ExecTxResult{Code: 1, Log: err.Error()}
			}
			accounts = append(accounts, id)
		}

		execEnv := engine.Env{
			Storage: slotStore{st: st},
			Pay:     bankLedger{st: st},
			Tokens:  tokenLedger{st: st},
			Now:     uint64(nowUnix),
		}
		req := engine.Request{
			Accounts: accounts,
			Signers:  map[derive.Identity]bool{signer: true},
			Data:     msg.Data,
		}
		if err := engine.Execute(execEnv, req); err != nil {
			return &abci.ExecTxResult{Code: engine.CodeOf(err), Log: err.Error()}
		}

		op := "unknown"
		if in, err := engine.DecodeInstruction(msg.Data); err == nil {
			op = in.Op.String()
		}
		return okEvent("LottoExecuted", map[string]string{
			"op":     op,
			"signer": env.Signer,
		})

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
